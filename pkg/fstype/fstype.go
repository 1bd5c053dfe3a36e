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

// Package fstype is spec.md §4.B's FS Type Registry: a mapping from a
// file-system-type name ("ramfs", "devtmpfs", a module-provided type) to
// a factory that mounts a concrete file system.
package fstype

import (
	"fmt"
	"sync"

	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// Factory builds a new mounted file system from a source string, mount
// flags, and an opaque data pointer (the third mount(2) argument).
type Factory func(source string, flags uint64, data interface{}) (vfs.FileSystem, error)

// Registry is a process-wide singleton in production (see pkg/boot), but
// is not itself a global: callers construct and inject one, per spec.md
// §9 "Global singletons... inject them as handles held by the kernel's
// root context."
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds name -> factory. There is no inheritance among factories;
// each produces a file system that independently satisfies vfs.FileSystem.
// Re-registering the same name overwrites the previous factory, matching
// how a reloaded module would replace its own type.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Unregister removes name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, name)
}

// Mount looks up name's factory, invokes it, and attaches the resulting
// file system at `at`. Returns the literal "invalid type" failure mode
// spec.md §4.B calls for when name is unregistered.
func (r *Registry) Mount(name, source string, flags uint64, data interface{}, at vfs.MountNode) (*vfs.Mount, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("invalid type %q: %w", name, kerrors.InvalidParam)
	}
	fs, err := factory(source, flags, data)
	if err != nil {
		return nil, err
	}
	return vfs.Attach(at, fs)
}
