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

// Package posix is spec.md §6's system-call surface: stat, getdents,
// readv/writev, sendfile/copy_file_range, and poll/ppoll/select, layered
// on top of pkg/vfs's INode and ResolveResult. Grounded on gVisor's
// pkg/abi/linux stat/dirent/iovec layouts and pkg/sentry/fsimpl's
// handle-level read/write forwarding, adapted from gVisor's full Linux
// ABI surface down to the subset spec.md names.
package posix

import (
	"github.com/gorquan/rcore/pkg/vfs"
)

// File type bits packed into Stat.Mode's upper bits, per spec.md §6.
const (
	ModeFIFO    = 0o010000
	ModeChar    = 0o020000
	ModeDir     = 0o040000
	ModeBlock   = 0o060000
	ModeRegular = 0o100000
	ModeSymlink = 0o120000
	ModeSocket  = 0o140000

	modePermMask = 0o007777
)

func typeBits(t vfs.NodeType) uint32 {
	switch t {
	case vfs.FIFO:
		return ModeFIFO
	case vfs.CharDevice:
		return ModeChar
	case vfs.Directory:
		return ModeDir
	case vfs.BlockDevice:
		return ModeBlock
	case vfs.SymLink:
		return ModeSymlink
	case vfs.Socket:
		return ModeSocket
	default:
		return ModeRegular
	}
}

// Stat is the x86-64 struct stat layout spec.md §6 documents: dev, ino,
// nlink, mode, uid, gid, padding, rdev, size, blksize, blocks, and three
// (seconds, nanoseconds) timestamp pairs, matching glibc's x86_64 layout
// field-for-field so a caller can binary.Write this directly into a
// user-supplied stat buffer.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Nlink   uint64
	Mode    uint32
	UID     uint32
	GID     uint32
	pad0    uint32
	Rdev    uint64
	Size    int64
	BlkSize int64
	Blocks  int64

	ATimeSec  int64
	ATimeNsec int64
	MTimeSec  int64
	MTimeNsec int64
	CTimeSec  int64
	CTimeNsec int64

	reserved [3]int64
}

// StatFromMetadata derives the syscall-boundary Stat from a file system's
// internal Metadata, encoding the node type into Mode's top bits per
// spec.md §6's {fifo, char, dir, block, regular, symlink, socket} table.
func StatFromMetadata(m vfs.Metadata) Stat {
	return Stat{
		Dev:       m.Dev,
		Ino:       m.Ino,
		Nlink:     uint64(m.Nlink),
		Mode:      typeBits(m.Type) | (m.Mode & modePermMask),
		UID:       m.UID,
		GID:       m.GID,
		Rdev:      uint64(m.Rdev),
		Size:      m.Size,
		BlkSize:   int64(m.BlkSize),
		Blocks:    m.Blocks,
		ATimeSec:  m.ATime.Unix(),
		ATimeNsec: int64(m.ATime.Nanosecond()),
		MTimeSec:  m.MTime.Unix(),
		MTimeNsec: int64(m.MTime.Nanosecond()),
		CTimeSec:  m.CTime.Unix(),
		CTimeNsec: int64(m.CTime.Nanosecond()),
	}
}
