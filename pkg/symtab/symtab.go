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

// Package symtab is spec.md §4.E's kernel symbol table: the name->address
// directory the LKM loader resolves undefined relocations against. Every
// built-in kernel symbol is registered once at boot; every module that
// loads successfully layers its own exported symbols on top, shadowing
// any built-in or earlier-module symbol of the same name so relocations
// resolved after a reload see the newest definition.
package symtab

import (
	"sync"

	"github.com/gorquan/rcore/pkg/kerrors"
)

// Symbol is one resolvable name in the table.
type Symbol struct {
	Name  string
	Value uint64
	// Owner is the module name that exported this symbol, or "" for a
	// built-in kernel symbol. Used by Remove to drop exactly one
	// module's layer without disturbing symbols shadowed underneath it.
	Owner string
}

// layer is one module's (or the kernel's) set of exported symbols,
// kept as its own map so Remove can drop a whole layer in one pass.
type layer struct {
	name  string
	owner syms
}

func (l *layer) ownerName() string { return l.name }

type syms map[string]uint64

// Table is the process-wide kernel symbol table. Built-in symbols are
// registered under owner "" before any module loads; pkg/boot owns the
// one long-lived instance and hands it to pkg/lkm as a constructor
// argument, per spec.md §9's "inject as handles" guidance for the
// singletons this kernel needs.
type Table struct {
	mu sync.RWMutex
	// stack holds one layer per registration call, in registration
	// order; Lookup walks it newest-first so the most recently loaded
	// module's definition always shadows an older or built-in one.
	stack []*layer
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{}
}

// Register adds a new layer of symbols under owner (a module name, or
// "" for built-ins). Returns kerrors.EntryExist if owner already has a
// registered layer; unregister it first (Remove) to replace it.
func (t *Table) Register(owner string, symbols map[string]uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.stack {
		if l.ownerName() == owner {
			return kerrors.EntryExist
		}
	}
	m := make(syms, len(symbols))
	for k, v := range symbols {
		m[k] = v
	}
	l := &layer{owner: m}
	l.name = owner
	t.stack = append(t.stack, l)
	return nil
}

// Remove drops owner's whole layer. Symbols it shadowed become visible
// again; symbols it exported become unresolved for anyone still
// referencing them (the caller, pkg/lkm, is responsible for refusing to
// unload a module that other modules still depend on via pkg/refs).
func (t *Table) Remove(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, l := range t.stack {
		if l.ownerName() == owner {
			t.stack = append(t.stack[:i], t.stack[i+1:]...)
			return
		}
	}
}

// Lookup resolves name against the newest layer that defines it,
// returning kerrors.UnresolvedSymbol if no layer does.
func (t *Table) Lookup(name string) (Symbol, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.stack) - 1; i >= 0; i-- {
		l := t.stack[i]
		if v, ok := l.owner[name]; ok {
			return Symbol{Name: name, Value: v, Owner: l.name}, nil
		}
	}
	return Symbol{}, kerrors.UnresolvedSymbol
}

// All returns every currently-visible symbol (the ones Lookup would be
// able to resolve), used by "lsmod -s"-style introspection.
func (t *Table) All() []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]bool)
	var out []Symbol
	for i := len(t.stack) - 1; i >= 0; i-- {
		l := t.stack[i]
		for name, v := range l.owner {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Symbol{Name: name, Value: v, Owner: l.name})
		}
	}
	return out
}
