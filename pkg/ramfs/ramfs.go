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

// Package ramfs is a concrete, wholly in-memory vfs.FileSystem: the
// default root file system and the one every pkg/vfs test resolves paths
// against. It is a Go rendering of rCore's modules/ramfs, generalized to
// satisfy vfs.INode (symlinks, poll, rdev-bearing nodes, and the rest of
// the contract the distilled spec needs that the original module omitted).
package ramfs

import (
	"context"
	"sync"
	"time"

	"github.com/gorquan/rcore/pkg/atomicbitops"
	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// FS is a ramfs instance. Each mount of "ramfs" gets its own FS, its own
// inode-id space starting at 1 (0 is reserved as "no inode").
type FS struct {
	name    string
	root    *inode
	nextIno atomicbitops.Uint64
}

// New creates an empty ramfs with a root directory.
func New(name string) *FS {
	fs := &FS{name: name}
	fs.root = fs.newInode(vfs.Directory, 0755)
	fs.root.parent = fs.root
	return fs
}

func (fs *FS) Root() (vfs.INode, error) { return fs.root, nil }
func (fs *FS) Sync() error              { return nil }
func (fs *FS) Name() string             { return fs.name }

func (fs *FS) newInode(typ vfs.NodeType, mode uint32) *inode {
	now := time.Now()
	n := &inode{
		fs:  fs,
		ino: fs.nextIno.Add(1),
	}
	n.meta = vfs.Metadata{
		Ino:   n.ino,
		Type:  typ,
		Mode:  mode,
		Nlink: 1,
		ATime: now,
		MTime: now,
		CTime: now,
	}
	if typ == vfs.Directory {
		n.children = make(map[string]*inode)
	}
	return n
}

// entry pairs a directory-entry name with the inode it names, kept in
// insertion order so GetEntry's index is stable within a directory's
// lifetime (spec.md §4.C's reverse lookup depends on this).
type entry struct {
	name  string
	child *inode
}

type inode struct {
	fs *FS

	mu       sync.RWMutex
	ino      uint64
	meta     vfs.Metadata
	content  []byte // for SymLink, the link target bytes
	parent   *inode
	children map[string]*inode
	order    []entry
}

var _ vfs.INode = (*inode)(nil)

func (n *inode) Ino() uint64        { return n.ino }
func (n *inode) FS() vfs.FileSystem { return n.fs }

func (n *inode) Metadata() (vfs.Metadata, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m := n.meta
	m.Size = int64(len(n.content))
	m.BlkSize = 4096
	m.Blocks = (m.Size + 4095) / 4096
	return m, nil
}

func (n *inode) SetMetadata(m vfs.Metadata) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.meta.Mode = m.Mode
	n.meta.UID = m.UID
	n.meta.GID = m.GID
	n.meta.ATime = m.ATime
	n.meta.MTime = m.MTime
	n.meta.CTime = m.CTime
	return nil
}

func (n *inode) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.meta.Type == vfs.Directory {
		return 0, kerrors.IsDir
	}
	if offset < 0 || offset > int64(len(n.content)) {
		return 0, nil
	}
	return copy(buf, n.content[offset:]), nil
}

func (n *inode) WriteAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.meta.Type == vfs.Directory {
		return 0, kerrors.IsDir
	}
	end := offset + int64(len(buf))
	if end > int64(len(n.content)) {
		grown := make([]byte, end)
		copy(grown, n.content)
		n.content = grown
	}
	copy(n.content[offset:end], buf)
	n.meta.MTime = time.Now()
	return len(buf), nil
}

func (n *inode) Resize(size int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.meta.Type != vfs.Regular {
		return kerrors.NotFile
	}
	grown := make([]byte, size)
	copy(grown, n.content)
	n.content = grown
	return nil
}

func (n *inode) Poll() (vfs.PollStatus, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.meta.Type == vfs.Directory {
		return vfs.PollStatus{}, kerrors.IsDir
	}
	return vfs.PollStatus{Readable: true, Writable: true}, nil
}

func (n *inode) Sync() error { return nil }

func (n *inode) IOControl(ctx context.Context, cmd uint32, arg uintptr) (int, error) {
	return 0, kerrors.NotSupported
}

func (n *inode) Lookup(ctx context.Context, name string) (vfs.INode, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.meta.Type != vfs.Directory {
		return nil, kerrors.NotDir
	}
	child, ok := n.children[name]
	if !ok {
		return nil, kerrors.EntryNotFound
	}
	return child, nil
}

func (n *inode) Parent(ctx context.Context) (vfs.INode, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent, nil
}

func (n *inode) GetEntry(ctx context.Context, index int) (vfs.DirEntry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.meta.Type != vfs.Directory {
		return vfs.DirEntry{}, kerrors.NotDir
	}
	switch index {
	case 0:
		return vfs.DirEntry{Name: ".", Ino: n.ino, Type: vfs.Directory}, nil
	case 1:
		return vfs.DirEntry{Name: "..", Ino: n.parent.ino, Type: vfs.Directory}, nil
	default:
		i := index - 2
		if i < 0 || i >= len(n.order) {
			return vfs.DirEntry{}, vfs.ErrNoMoreEntries
		}
		e := n.order[i]
		return vfs.DirEntry{Name: e.name, Ino: e.child.ino, Type: e.child.meta.Type}, nil
	}
}

func (n *inode) Create(ctx context.Context, name string, typ vfs.NodeType, mode uint32) (vfs.INode, error) {
	if name == "." || name == ".." {
		return nil, kerrors.EntryExist
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.meta.Type != vfs.Directory {
		return nil, kerrors.NotDir
	}
	if _, exists := n.children[name]; exists {
		return nil, kerrors.EntryExist
	}
	child := n.fs.newInode(typ, mode)
	child.parent = n
	if typ == vfs.Directory {
		child.meta.Nlink = 2
	}
	n.children[name] = child
	n.order = append(n.order, entry{name: name, child: child})
	return child, nil
}

// CreateSymlink is ramfs-specific (not part of vfs.INode): the generic
// Create takes a type+mode, but a symlink also needs its target text,
// which spec.md §3 does not model as inode content written after
// creation (readlink(2) semantics require the target from creation time).
func (n *inode) CreateSymlink(name, target string) (vfs.INode, error) {
	child, err := n.Create(context.Background(), name, vfs.SymLink, 0777)
	if err != nil {
		return nil, err
	}
	if _, err := child.WriteAt(context.Background(), []byte(target), 0); err != nil {
		return nil, err
	}
	return child, nil
}

// lockAscending acquires a and b's locks in ascending inode-id order to
// avoid the AB/BA deadlock spec.md §5 calls out for ramfs's link/rename
// path.
func lockAscending(a, b *inode) func() {
	if a.ino == b.ino {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if second.ino < first.ino {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func (n *inode) Link(ctx context.Context, name string, target vfs.INode) error {
	other, ok := target.(*inode)
	if !ok || other.fs != n.fs {
		return kerrors.NotSameFs
	}
	unlock := lockAscending(n, other)
	defer unlock()
	if n.meta.Type != vfs.Directory {
		return kerrors.NotDir
	}
	if other.meta.Type == vfs.Directory {
		return kerrors.IsDir
	}
	if _, exists := n.children[name]; exists {
		return kerrors.EntryExist
	}
	n.children[name] = other
	n.order = append(n.order, entry{name: name, child: other})
	other.meta.Nlink++
	return nil
}

func (n *inode) Unlink(ctx context.Context, name string) error {
	if name == "." || name == ".." {
		return kerrors.DirNotEmpty
	}
	n.mu.Lock()
	if n.meta.Type != vfs.Directory {
		n.mu.Unlock()
		return kerrors.NotDir
	}
	child, ok := n.children[name]
	if !ok {
		n.mu.Unlock()
		return kerrors.EntryNotFound
	}
	n.mu.Unlock()

	unlock := lockAscending(n, child)
	defer unlock()
	if child.meta.Type == vfs.Directory && len(child.children) > 0 {
		return kerrors.DirNotEmpty
	}
	delete(n.children, name)
	for i, e := range n.order {
		if e.name == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	child.meta.Nlink--
	return nil
}

func (n *inode) Rename(ctx context.Context, oldName string, newParent vfs.INode, newName string) error {
	dst, ok := newParent.(*inode)
	if !ok || dst.fs != n.fs {
		return kerrors.NotSameFs
	}
	n.mu.RLock()
	child, ok := n.children[oldName]
	n.mu.RUnlock()
	if !ok {
		return kerrors.EntryNotFound
	}
	if oldName == "." || oldName == ".." {
		return kerrors.InvalidParam
	}
	if err := dst.Link(ctx, newName, child); err != nil {
		return err
	}
	if err := n.Unlink(ctx, oldName); err != nil {
		// Best effort rollback; in-memory ramfs cannot fail here in
		// practice since we already validated oldName above.
		_ = dst.Unlink(ctx, newName)
		return err
	}
	return nil
}
