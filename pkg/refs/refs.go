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

// Package refs provides an atomic reference-counting primitive. In this
// module its one user is pkg/lkm's Module, whose count pins a loaded
// module while foreign references to it are held.
package refs

import (
	"fmt"

	"github.com/gorquan/rcore/pkg/atomicbitops"
)

// RefCounter is the contract an object sharing its lifetime across
// multiple owners must satisfy. TryIncRef exists separately from IncRef
// because some lookups (e.g. racing against eviction) must be able to
// fail instead of resurrecting a dead object.
type RefCounter interface {
	IncRef()
	TryIncRef() bool
	DecRef()
}

// AtomicRefCount is embedded by value as the first field of a
// RefCounter-satisfying type, mirroring the gvisor refs.AtomicRefCount
// convention.
type AtomicRefCount struct {
	count atomicbitops.Uint32
}

// InitRefs must be called before first use; the initial reference belongs
// to whoever constructs the object.
func (r *AtomicRefCount) InitRefs() {
	r.count.Store(1)
}

// IncRef increments the reference count. Panics if the count was already
// zero: that is a use-after-free in the caller, not a recoverable error.
func (r *AtomicRefCount) IncRef() {
	if r.count.Add(1) <= 1 {
		panic(fmt.Sprintf("IncRef called on referenced object with no references"))
	}
}

// TryIncRef increments the count iff it is currently nonzero.
func (r *AtomicRefCount) TryIncRef() bool {
	for {
		v := r.count.Load()
		if v == 0 {
			return false
		}
		if r.count.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// DecRef decrements the reference count and invokes destroy when it
// reaches zero. destroy may be nil.
func (r *AtomicRefCount) DecRef(destroy func()) {
	switch v := r.count.Add(^uint32(0)); {
	case v == ^uint32(0):
		panic("DecRef below zero")
	case v == 0:
		if destroy != nil {
			destroy()
		}
	}
}

// ReadRefs returns the current count, for tests and diagnostics only.
func (r *AtomicRefCount) ReadRefs() uint32 {
	return r.count.Load()
}
