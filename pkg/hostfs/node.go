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

package hostfs

import (
	"context"
	"syscall"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gorquan/rcore/pkg/vfs"
)

// Node is one FUSE tree node, backed by a vfs.MountNode. A Node is created
// for the bridge's root by Mount and for every other node by Lookup,
// Mkdir or Create returning it to the kernel through Inode.NewInode.
//
// root is carried on every Node, not just the bridge's root, so ".."
// traversal (handled by LookupOne the same way the in-kernel resolver
// handles it) stops at the directory the bridge was mounted on rather
// than wherever FUSE happens to ask from.
type Node struct {
	fusefs.Inode
	mnt  vfs.MountNode
	root vfs.MountNode
}

var (
	_ fusefs.InodeEmbedder = (*Node)(nil)
	_ fusefs.NodeGetattrer = (*Node)(nil)
	_ fusefs.NodeSetattrer = (*Node)(nil)
	_ fusefs.NodeLookuper  = (*Node)(nil)
	_ fusefs.NodeOpendirer = (*Node)(nil)
	_ fusefs.NodeReaddirer = (*Node)(nil)
	_ fusefs.NodeMkdirer   = (*Node)(nil)
	_ fusefs.NodeCreater   = (*Node)(nil)
	_ fusefs.NodeUnlinker  = (*Node)(nil)
	_ fusefs.NodeRmdirer   = (*Node)(nil)
	_ fusefs.NodeRenamer   = (*Node)(nil)
	_ fusefs.NodeOpener    = (*Node)(nil)
)

// Getattr reads attributes for an Inode, filling out from the wrapped
// vfs.INode's own Metadata.
func (n *Node) Getattr(ctx context.Context, f fusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	meta, err := n.mnt.Inode.Metadata()
	if err != nil {
		return translateError(err)
	}
	fillAttr(meta, &out.Attr)
	return 0
}

// Setattr applies the size and mtime changes FUSE's setattr(2) path can
// request; uid/gid/mode changes are not part of spec.md's Metadata
// surface and are accepted without effect, the same way a minimal ramfs
// would.
func (n *Node) Setattr(ctx context.Context, f fusefs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.mnt.Inode.Resize(int64(size)); err != nil {
			return translateError(err)
		}
	}
	if mtime, ok := in.GetMTime(); ok {
		meta, err := n.mnt.Inode.Metadata()
		if err != nil {
			return translateError(err)
		}
		meta.MTime = mtime
		if err := n.mnt.Inode.SetMetadata(meta); err != nil {
			return translateError(err)
		}
	}
	meta, err := n.mnt.Inode.Metadata()
	if err != nil {
		return translateError(err)
	}
	fillAttr(meta, &out.Attr)
	return 0
}

// childNode resolves name under n, crossing a kernel mount boundary the
// same way the in-kernel resolver's LookupOne does.
func (n *Node) childNode(ctx context.Context, name string) (vfs.MountNode, syscall.Errno) {
	child, err := vfs.LookupOne(ctx, n.root, n.mnt, name)
	if err != nil {
		return vfs.MountNode{}, translateError(err)
	}
	return child, 0
}

// Lookup finds a direct child of this directory by name.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	child, errno := n.childNode(ctx, name)
	if errno != 0 {
		return nil, errno
	}
	meta, err := child.Inode.Metadata()
	if err != nil {
		return nil, translateError(err)
	}
	fillAttr(meta, &out.Attr)
	childEmbedder := &Node{mnt: child, root: n.root}
	return n.NewInode(ctx, childEmbedder, fusefs.StableAttr{
		Mode: modeFor(meta.Type, meta.Mode),
		Ino:  meta.Ino,
	}), 0
}

// Opendir just checks this node is actually a directory; the listing
// itself happens in Readdir.
func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	meta, err := n.mnt.Inode.Metadata()
	if err != nil {
		return translateError(err)
	}
	if meta.Type != vfs.Directory {
		return syscall.ENOTDIR
	}
	return 0
}

// dirStream walks the wrapped directory's GetEntry sequence one record
// at a time; FUSE pulls the whole stream through HasNext/Next rather
// than getting handed a packed buffer the way pkg/posix.Getdents does.
type dirStream struct {
	ctx   context.Context
	inode vfs.INode
	idx   int
	next  vfs.DirEntry
	err   error
	done  bool
}

func (ds *dirStream) advance() {
	e, err := ds.inode.GetEntry(ds.ctx, ds.idx)
	ds.idx++
	if err != nil {
		if err == vfs.ErrNoMoreEntries {
			ds.done = true
			return
		}
		ds.err = err
		ds.done = true
		return
	}
	ds.next = e
}

func (ds *dirStream) HasNext() bool {
	if ds.done {
		return false
	}
	if ds.next == (vfs.DirEntry{}) {
		ds.advance()
	}
	return !ds.done
}

func (ds *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if ds.err != nil {
		return fuse.DirEntry{}, translateError(ds.err)
	}
	e := ds.next
	ds.next = vfs.DirEntry{}
	return fuse.DirEntry{
		Mode: modeFor(e.Type, 0),
		Name: e.Name,
		Ino:  e.Ino,
	}, 0
}

func (ds *dirStream) Close() {}

var _ fusefs.DirStream = (*dirStream)(nil)

// Readdir streams this directory's entries through a dirStream.
func (n *Node) Readdir(ctx context.Context) (fusefs.DirStream, syscall.Errno) {
	return &dirStream{ctx: ctx, inode: n.mnt.Inode}, 0
}

// Mkdir creates a child directory.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	child, err := n.mnt.Inode.Create(ctx, name, vfs.Directory, mode)
	if err != nil {
		return nil, translateError(err)
	}
	return n.publishChild(ctx, child, out)
}

// Create creates a regular file child and opens it.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fusefs.Inode, fusefs.FileHandle, uint32, syscall.Errno) {
	child, err := n.mnt.Inode.Create(ctx, name, vfs.Regular, mode)
	if err != nil {
		return nil, nil, 0, translateError(err)
	}
	inode, errno := n.publishChild(ctx, child, out)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	return inode, newFileHandle(child), 0, 0
}

// publishChild wraps a newly created vfs.INode as a Node and registers
// it with the kernel, filling out's attributes from its fresh Metadata.
func (n *Node) publishChild(ctx context.Context, child vfs.INode, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	meta, err := child.Metadata()
	if err != nil {
		return nil, translateError(err)
	}
	fillAttr(meta, &out.Attr)
	mnt := vfs.MountNode{Inode: child, Mount: n.mnt.Mount}
	return n.NewInode(ctx, &Node{mnt: mnt, root: n.root}, fusefs.StableAttr{
		Mode: modeFor(meta.Type, meta.Mode),
		Ino:  meta.Ino,
	}), 0
}

// Unlink removes a non-directory child; a directory child fails EISDIR.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	child, err := n.mnt.Inode.Lookup(ctx, name)
	if err != nil {
		return translateError(err)
	}
	meta, err := child.Metadata()
	if err != nil {
		return translateError(err)
	}
	if meta.Type == vfs.Directory {
		return syscall.EISDIR
	}
	return translateError(n.mnt.Inode.Unlink(ctx, name))
}

// Rmdir removes an empty directory child; the wrapped vfs.INode.Unlink
// rejects a non-empty one with kerrors.DirNotEmpty.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return translateError(n.mnt.Inode.Unlink(ctx, name))
}

// Rename moves name from this directory to newName under newParent.
func (n *Node) Rename(ctx context.Context, name string, newParent fusefs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dst, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	return translateError(n.mnt.Inode.Rename(ctx, name, dst.mnt.Inode, newName))
}

// Open returns a fileHandle for reading and writing an already-resolved
// regular file.
func (n *Node) Open(ctx context.Context, flags uint32) (fusefs.FileHandle, uint32, syscall.Errno) {
	meta, err := n.mnt.Inode.Metadata()
	if err != nil {
		return nil, 0, translateError(err)
	}
	if meta.Type == vfs.Directory {
		return nil, 0, syscall.EISDIR
	}
	return newFileHandle(n.mnt.Inode), 0, 0
}

// String satisfies fmt.Stringer for go-fuse's own diagnostic logging,
// matching the convention the rest of the corpus's FUSE bridges follow.
func (n *Node) String() string {
	meta, err := n.mnt.Inode.Metadata()
	if err != nil {
		return "<error>"
	}
	return meta.Type.String()
}
