// Copyright 2019 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lkm

import (
	"sync"

	"github.com/gorquan/rcore/pkg/kvm"
	"github.com/gorquan/rcore/pkg/refs"
)

// State is where in its lifecycle a loaded module is. Removal is
// unsupported (spec.md §1's Non-goals), so PrepareUnload and Unloading
// are reachable only from a future removal implementation; they exist
// now so Module's state field has a complete, documented domain.
type State int

const (
	StateReady State = iota
	StatePrepareUnload
	StateUnloading
)

// Symbol is one exported name this module contributed to the global
// symbol table.
type Symbol struct {
	Name    string
	Address uint64
}

// Module is a successfully loaded kernel module: its parsed metadata,
// the symbols it exported, its mapped image, and the reference count
// that pins it while a driver or file system it registered is in use.
//
// The reference count is built on pkg/refs.AtomicRefCount: the Manager's own load reference is the 1 InitRefs starts at, and
// every Grab/Release pair is one foreign reference on top of it, so
// InUse (count > 1) matches spec.md §4.E's "a module with any foreign
// reference outstanding" without a second, hand-rolled counter.
type Module struct {
	Info     Info
	Exported []Symbol
	VSpace   *kvm.VirtualSpace

	mu    sync.Mutex
	refs  refs.AtomicRefCount
	state State
}

// initRefs gives m its load-owned reference; called once by the Manager
// right after construction.
func (m *Module) initRefs() {
	m.refs.InitRefs()
}

// Grab takes one foreign reference on m (an open file descriptor to one
// of its devices, a mounted file system it provides). Release with
// Release. Mirrors the original's ModuleGuard RAII pattern as an
// explicit pair of calls, since Go has no destructor to hang the
// decrement off of.
func (m *Module) Grab() {
	m.refs.IncRef()
}

// Release drops one foreign reference taken by Grab.
func (m *Module) Release() {
	m.refs.DecRef(nil)
}

// InUse reports whether any foreign reference is outstanding; a future
// removal implementation must refuse while this is true (spec.md §4.E).
func (m *Module) InUse() bool {
	return m.refs.ReadRefs() > 1
}

func (m *Module) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
