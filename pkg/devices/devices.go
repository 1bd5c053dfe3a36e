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

// Package devices is spec.md §4.D's character-device registry: a mapping
// from a major number to an optional owning module handle and the
// operation table a file opened against that major dispatches through.
// Modeled on gVisor's pkg/sentry/devices/memdev registration pattern,
// generalized from a fixed minor-number map to a dynamic registry a
// loaded module can populate and later withdraw from.
package devices

import (
	"context"
	"sync"

	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// HandleID names one open handle against a device's Ops, the way a real
// cdev's file_operations carry an opaque per-open context. Ops.Open mints
// one; every later call against that open passes it back so a device that
// needs per-open state (hellodev's read cursor) can keep it keyed by id
// instead of smuggling it through the caller.
type HandleID uint64

// Ops is the operation table a character device dispatches file
// operations through, grounded on the original kernel's cdev
// FileOperations table. A device that does not support an operation
// should still implement the method and return kerrors.NotSupported.
type Ops interface {
	// Open mints a new HandleID for one open() against this device.
	Open(ctx context.Context) (HandleID, error)

	Read(ctx context.Context, id HandleID, buf []byte) (int, error)
	Write(ctx context.Context, id HandleID, buf []byte) (int, error)
	ReadAt(ctx context.Context, id HandleID, buf []byte, offset int64) (int, error)
	WriteAt(ctx context.Context, id HandleID, buf []byte, offset int64) (int, error)

	Seek(ctx context.Context, id HandleID, offset int64, whence int) (int64, error)
	SetLen(ctx context.Context, id HandleID, size int64) error
	SyncAll(ctx context.Context, id HandleID) error
	SyncData(ctx context.Context, id HandleID) error
	Poll(ctx context.Context, id HandleID) (vfs.PollStatus, error)
	IOControl(ctx context.Context, id HandleID, cmd uint32, arg uintptr) (int, error)

	// Close releases id. Every successful Open must be matched by one
	// Close of the id it returned.
	Close(ctx context.Context, id HandleID) error
}

// Owner identifies who registered a major number, so Unregister can
// refuse to let one module tear down a different module's device, and
// so pkg/lkm can unregister everything registered under a module's name
// when that module's init_module fails.
type Owner string

// KernelOwner is used for devices registered outside of any module
// (memdev, the console).
const KernelOwner Owner = ""

type entry struct {
	owner Owner
	ops   Ops
}

// Registry is the process-wide character-device table. One instance is
// constructed at boot and injected into pkg/lkm and pkg/posix, per
// spec.md §9's guidance against ambient globals.
type Registry struct {
	mu      sync.RWMutex
	byMajor map[uint32]entry
}

// NewRegistry returns an empty device registry.
func NewRegistry() *Registry {
	return &Registry{byMajor: make(map[uint32]entry)}
}

// Register claims major for owner, backed by ops. Returns
// kerrors.EntryExist if major is already claimed.
func (r *Registry) Register(major uint32, owner Owner, ops Ops) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byMajor[major]; exists {
		return kerrors.EntryExist
	}
	r.byMajor[major] = entry{owner: owner, ops: ops}
	return nil
}

// Unregister releases major, if owned by owner. Returns
// kerrors.EntryNotFound if major is unclaimed, or kerrors.Busy if it is
// claimed by a different owner.
func (r *Registry) Unregister(major uint32, owner Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byMajor[major]
	if !ok {
		return kerrors.EntryNotFound
	}
	if e.owner != owner {
		return kerrors.Busy
	}
	delete(r.byMajor, major)
	return nil
}

// UnregisterAll releases every major claimed by owner; pkg/lkm calls it
// with the module's name when a module's init_module fails.
func (r *Registry) UnregisterAll(owner Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for major, e := range r.byMajor {
		if e.owner == owner {
			delete(r.byMajor, major)
		}
	}
}

// Lookup returns the operation table registered for major, or
// kerrors.NoDevice if nothing claims it.
func (r *Registry) Lookup(major uint32) (Ops, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byMajor[major]
	if !ok {
		return nil, kerrors.NoDevice
	}
	return e.ops, nil
}

// Majors lists every currently-registered major, for "lsdev"-style
// introspection.
func (r *Registry) Majors() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, 0, len(r.byMajor))
	for major := range r.byMajor {
		out = append(out, major)
	}
	return out
}

// PackRdev packs a (major, minor) pair into the single rdev value
// Metadata carries for device inodes, using glibc's classic 8-bit-minor
// encoding (matching pkg/devices/memdev's own major<<8|minor convention).
func PackRdev(major, minor uint32) uint32 {
	return major<<8 | (minor & 0xff)
}

// UnpackRdev is PackRdev's inverse.
func UnpackRdev(rdev uint32) (major, minor uint32) {
	return rdev >> 8, rdev & 0xff
}
