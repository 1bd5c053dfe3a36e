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

// Package hostfs bridges the kernel's own VFS tree onto the host's FUSE
// interface, so a directory anywhere on the host can be made to show the
// contents of a booted kernel's file-system namespace without involving
// a second kernel or a network protocol.
//
// Every FUSE node wraps a vfs.MountNode (the same (Inode, Mount) pair the
// path resolver manipulates) and forwards each FUSE operation to the
// corresponding vfs.INode method, translating kerrors.Kind values to
// syscall.Errno at the boundary the same way pkg/posix does for the
// in-process syscall surface.
package hostfs

import (
	"context"
	"syscall"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// translateError maps a kerrors.Kind-wrapping error to the syscall.Errno
// FUSE expects every node operation to return. Nil errors map to 0 (OK).
func translateError(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return syscall.Errno(kerrors.Errno(err))
}

// modeFor returns the S_IFMT bits for typ, combined with mode's
// permission bits to produce a full POSIX st_mode value.
func modeFor(typ vfs.NodeType, mode uint32) uint32 {
	perm := mode & 0o7777
	switch typ {
	case vfs.Directory:
		return syscall.S_IFDIR | perm
	case vfs.SymLink:
		return syscall.S_IFLNK | perm
	case vfs.CharDevice:
		return syscall.S_IFCHR | perm
	case vfs.BlockDevice:
		return syscall.S_IFBLK | perm
	case vfs.FIFO:
		return syscall.S_IFIFO | perm
	case vfs.Socket:
		return syscall.S_IFSOCK | perm
	default:
		return syscall.S_IFREG | perm
	}
}

// fillAttr populates out from meta, the way every Getattr/Lookup/Create
// response must before returning to the kernel.
func fillAttr(meta vfs.Metadata, out *fuse.Attr) {
	out.Ino = meta.Ino
	out.Size = uint64(meta.Size)
	out.Blocks = uint64(meta.Blocks)
	out.Mode = modeFor(meta.Type, meta.Mode)
	out.Nlink = meta.Nlink
	out.Uid = meta.UID
	out.Gid = meta.GID
	out.Rdev = meta.Rdev
	out.Atime = uint64(meta.ATime.Unix())
	out.Mtime = uint64(meta.MTime.Unix())
	out.Ctime = uint64(meta.CTime.Unix())
	if meta.BlkSize > 0 {
		out.Blksize = uint32(meta.BlkSize)
	} else {
		out.Blksize = 4096
	}
}

// childType maps the FUSE Mknod/Create "is this a directory" question
// onto vfs.NodeType; hostfs only creates regular files and directories
// through the FUSE surface, matching spec.md's own Create operation.
func childType(mode uint32) vfs.NodeType {
	if mode&syscall.S_IFDIR != 0 {
		return vfs.Directory
	}
	return vfs.Regular
}

// Mount starts serving root at mountpoint until the returned server is
// unmounted or stopped. debug, when true, enables go-fuse's own request
// tracing (fuse.MountOptions.Debug), matching the library's own wiring
// convention rather than inventing a parallel logging path.
func Mount(ctx context.Context, mountpoint string, root vfs.MountNode, debug bool) (*fuse.Server, error) {
	node := &Node{mnt: root, root: root}
	opts := &fusefs.Options{
		MountOptions: fuse.MountOptions{
			Debug:      debug,
			FsName:     root.Mount.FS().Name(),
			Name:       "rcorefs",
			AllowOther: false,
		},
	}
	server, err := fusefs.Mount(mountpoint, node, opts)
	if err != nil {
		return nil, err
	}
	return server, nil
}
