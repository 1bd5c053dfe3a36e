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

package vfs

import (
	"sync"

	"github.com/gorquan/rcore/pkg/kerrors"
)

// Attach implements spec.md §4.C's "Mount attach": given a directory
// MountNode at and a FileSystem fs, it creates a new Mount, records at as
// its attachment point, and records (inode_id(at) -> new mount) in at's
// owning mount. A second attach at the same directory is rejected with
// EntryExist.
func Attach(at MountNode, fs FileSystem) (*Mount, error) {
	meta, err := at.Inode.Metadata()
	if err != nil {
		return nil, err
	}
	if meta.Type != Directory {
		return nil, kerrors.NotDir
	}
	m := NewMount(fs)
	if err := at.Mount.attachChild(at.Inode.Ino(), at, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Mount is the Go rendering of spec.md §3's "Mount (VirtualFS)": a concrete
// file system plus a mapping from inode id within this mount to a child
// mount, plus a back-pointer to the mount node where it is attached.
//
// The source material (rCore, Rust) represents the attach back-pointer as
// a weak self-referencing Rc cycle (spec.md §9 "Cyclic references") to
// let a mount produce its own root MountNode without an ownership cycle.
// That problem is specific to reference-counted, non-GC ownership; in Go,
// MountNode is a plain comparable value type (Inode, *Mount), so Root()
// below simply constructs one on demand — there is no cycle to break.
type Mount struct {
	fs FileSystem

	// mu guards children. Many concurrent path resolutions read; mount()
	// and a module registering a file system write.
	mu       sync.RWMutex
	children map[uint64]*Mount

	// attach is this mount's attachment point in its parent mount, or nil
	// for the root mount (spec.md §9 "Uninitialized sentinels": the
	// uninitialized-placeholder root attach point becomes Go's nil).
	attach *MountNode

	rootInoOnce sync.Once
	rootIno     uint64
	rootInoErr  error
}

// RootIno returns the inode id of this mount's root inode, caching the
// first successful lookup — the root's identity cannot change for the
// lifetime of a Mount.
func (m *Mount) RootIno() (uint64, error) {
	m.rootInoOnce.Do(func() {
		root, err := m.fs.Root()
		if err != nil {
			m.rootInoErr = err
			return
		}
		m.rootIno = root.Ino()
	})
	return m.rootIno, m.rootInoErr
}

// NewMount wraps fs as a new, unattached Mount, such as the root mount.
// Attach builds its own Mount for fs and splices it into the parent's
// child-mount map in one step.
func NewMount(fs FileSystem) *Mount {
	return &Mount{fs: fs, children: make(map[uint64]*Mount)}
}

// FS returns the concrete file system this mount wraps.
func (m *Mount) FS() FileSystem { return m.fs }

// Root returns the MountNode for this mount's root inode.
func (m *Mount) Root() (MountNode, error) {
	root, err := m.fs.Root()
	if err != nil {
		return MountNode{}, err
	}
	return MountNode{Inode: root, Mount: m}, nil
}

// AttachPoint returns the parent's side of this mount's boundary, or
// (MountNode{}, false) for the root mount.
func (m *Mount) AttachPoint() (MountNode, bool) {
	if m.attach == nil {
		return MountNode{}, false
	}
	return *m.attach, true
}

// childMount returns the mount attached at inode id ino within m, if any.
func (m *Mount) childMount(ino uint64) (*Mount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	child, ok := m.children[ino]
	return child, ok
}

// attachChild records that child is mounted at the directory with inode
// id ino within m, and sets child's attach pointer to at. Fails EntryExist
// if something is already mounted at ino (spec.md §4.C "A second attach at
// the same directory is rejected").
func (m *Mount) attachChild(ino uint64, at MountNode, child *Mount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.children[ino]; exists {
		return kerrors.EntryExist
	}
	atCopy := at
	child.attach = &atCopy
	m.children[ino] = child
	return nil
}

// detachChild is the inverse of attachChild. Nothing in this tree calls
// it: unmount is not implemented (spec.md lists it as "reserved but not
// required").
func (m *Mount) detachChild(ino uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.children, ino)
}

// MountNode is spec.md §3's INodeContainer: the (concrete inode, owning
// mount) pair the path resolver manipulates. Two MountNodes are equal iff
// they share the same concrete inode AND the same mount — stronger than
// inode-id equality, since the same inode id can appear in different
// mounts.
type MountNode struct {
	Inode INode
	Mount *Mount
}

// Equal implements spec.md §3's MountNode equality.
func (n MountNode) Equal(other MountNode) bool {
	return n.Mount == other.Mount && n.Inode == other.Inode
}

// IsZero reports whether n is the zero MountNode (no inode, no mount).
func (n MountNode) IsZero() bool {
	return n.Mount == nil && n.Inode == nil
}
