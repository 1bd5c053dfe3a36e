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

// Package vfs is the composition layer that unifies heterogeneous file
// systems (ramfs, devtmpfs, whatever a loaded module mounts) under one
// rooted tree, and resolves POSIX paths through it, crossing mount
// boundaries and expanding symbolic links as it goes.
//
// The design mirrors gVisor's pkg/sentry/vfs: a Filesystem owns Inodes, a
// path resolver walks a graph of mounted Filesystems, and mount crossing
// is a pure function of (current node, child inode id). Unlike gVisor, this
// package does not separate Dentry from Inode — rCore's concrete file
// systems (ramfs, simple-FS) are entirely in-memory or in-kernel, so there
// is no remote-filesystem case that would make that split pay for itself.
package vfs

import "context"

// NodeType is the type tag stored in Metadata.Type and used to derive the
// high bits of a POSIX stat mode (spec.md §6).
type NodeType uint8

const (
	Regular NodeType = iota
	Directory
	SymLink
	CharDevice
	BlockDevice
	FIFO
	Socket
)

func (t NodeType) String() string {
	switch t {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case SymLink:
		return "symlink"
	case CharDevice:
		return "char-device"
	case BlockDevice:
		return "block-device"
	case FIFO:
		return "fifo"
	case Socket:
		return "socket"
	default:
		return "unknown"
	}
}

// PollStatus reports readiness the way a driver's poll() would; the VFS
// never blocks inside Poll (spec.md §5: "poll is always non-blocking").
type PollStatus struct {
	Readable bool
	Writable bool
	Error    bool
}

// DirEntry is one directory-entry-by-index result, the unit GetEntry
// returns and getdents (pkg/posix) packs into the kernel ABI record.
type DirEntry struct {
	Name string
	Ino  uint64
	Type NodeType
}

// FileSystem is the contract a mounted concrete file system satisfies.
// Two Inodes are "on the same file system" iff FS() returns the same
// FileSystem value; Link/Rename use this for the NotSameFs check.
type FileSystem interface {
	// Root returns the file system's root Inode.
	Root() (INode, error)

	// Sync flushes all dirty state. May be a no-op for purely in-memory
	// file systems such as ramfs.
	Sync() error

	// Name identifies the concrete file system for diagnostics (ls -l
	// device path, lsmod) — not used by path resolution.
	Name() string
}

// INode is the contract every file-system-node implementation satisfies:
// positional read/write, metadata read/write, resize, create child, link,
// unlink, rename, one-level lookup, directory entry-by-index, ioctl,
// sync, poll, and a reference back to the owning file system.
//
// Implementations are ordinary Go values kept alive by whatever refers
// to them (e.g. ramfs reaches each child through its parent directory's
// name map); the VFS itself never frees an INode, it only stops holding
// MountNode values that reference one.
type INode interface {
	// Ino is the inode id within FS(). Stable for the Inode's lifetime.
	Ino() uint64

	// FS returns the owning file system.
	FS() FileSystem

	ReadAt(ctx context.Context, buf []byte, offset int64) (int, error)
	WriteAt(ctx context.Context, buf []byte, offset int64) (int, error)

	Metadata() (Metadata, error)
	SetMetadata(Metadata) error
	Resize(size int64) error

	// Create makes a new child of the given type and returns it. Fails
	// EntryExist if name is already taken.
	Create(ctx context.Context, name string, typ NodeType, mode uint32) (INode, error)

	// Link adds a hard link named name to target within this directory.
	// Fails NotSameFs if target.FS() != this.FS().
	Link(ctx context.Context, name string, target INode) error

	// Unlink removes the entry named name. DirNotEmpty if it names a
	// non-empty directory.
	Unlink(ctx context.Context, name string) error

	// Rename moves the entry named oldName in this directory to newName
	// in newParent. Fails NotSameFs if newParent.FS() != this.FS().
	// ramfs does not replace an existing newName entry (it fails
	// EntryExist) and does not rename directories (it fails IsDir).
	Rename(ctx context.Context, oldName string, newParent INode, newName string) error

	// Lookup is the concrete file system's one-level name lookup, used by
	// the resolver's LookupOne before mount-overlay is applied. Returns
	// EntryNotFound if name does not exist.
	Lookup(ctx context.Context, name string) (INode, error)

	// Parent returns this directory's parent within the same file system;
	// used by the resolver's ".." handling when no mount boundary applies.
	// The root Inode of a FileSystem returns itself.
	Parent(ctx context.Context) (INode, error)

	// GetEntry returns the index'th directory entry (0-based), in a
	// stable order for a given directory generation. io.EOF-equivalent is
	// signalled by returning ErrNoMoreEntries.
	GetEntry(ctx context.Context, index int) (DirEntry, error)

	// IOControl issues a driver-defined control operation; most concrete
	// file systems return NotSupported.
	IOControl(ctx context.Context, cmd uint32, arg uintptr) (int, error)

	Sync() error
	Poll() (PollStatus, error)
}

// ErrNoMoreEntries is returned by GetEntry once index is past the last
// directory entry.
var ErrNoMoreEntries = newSentinel("no more directory entries")

type sentinelErr struct{ msg string }

func (e *sentinelErr) Error() string { return e.msg }

func newSentinel(msg string) error { return &sentinelErr{msg: msg} }
