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

// Package abi is the fixed C-ABI stub table spec.md §9 describes:
// "Modules invoke a C-ABI stub table. The core exposes this as a fixed
// struct of function pointers; each entry validates pointer arguments
// before use and converts C enum codes to the internal result type via
// a small integer codec." In this userspace rendering a module cannot
// literally call through a function pointer (see pkg/lkm's Executor
// doc), so the stub table is a registry of named Go callbacks a
// pkg/lkm.Executor dispatches "init_module" and friends through,
// grounded on rCore's kernel/src/lkm/api.rs stub functions
// (lkm_api_pong, lkm_api_debug, lkm_api_query_symbol).
package abi

import (
	"sync"

	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/lkm"
	"github.com/gorquan/rcore/pkg/symtab"
)

// Table is a named set of stub implementations a loaded module's code
// can invoke, plus every module entry point (init_module and any other
// exported symbol a test harness wants to simulate running).
type Table struct {
	mu      sync.RWMutex
	symbols *symtab.Table
	stubs   map[string]func() error
}

// NewTable seeds the standard stub symbols (the "lkm_api_*" family)
// into the kernel layer of symbols, so a module's relocations against
// them resolve, and returns the dispatch table. Of those names only
// "lkm_api_pong" is bound in the table; Call on "lkm_api_debug" or
// "lkm_api_query_symbol" returns NotExec unless a caller Registers them.
func NewTable(symbols *symtab.Table) (*Table, error) {
	t := &Table{symbols: symbols, stubs: make(map[string]func() error)}
	t.Register("lkm_api_pong", func() error { return nil })
	stubAddrs := map[string]uint64{
		"lkm_api_pong":         1,
		"lkm_api_debug":        2,
		"lkm_api_query_symbol": 3,
	}
	if err := symbols.Register("", stubAddrs); err != nil {
		return nil, err
	}
	return t, nil
}

// Register binds name to fn, so an Executor.Call(name) dispatches here.
func (t *Table) Register(name string, fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stubs[name] = fn
}

// Call runs the stub bound to name, or NotExec-equivalent if unbound.
func (t *Table) Call(name string) error {
	t.mu.RLock()
	fn, ok := t.stubs[name]
	t.mu.RUnlock()
	if !ok {
		return kerrors.NotExec
	}
	return fn()
}

var _ lkm.Executor = (*Table)(nil)
