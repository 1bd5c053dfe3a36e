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

import "time"

// Metadata is the file-system-independent attribute set spec.md §3
// describes: device id, inode id, size, block size/count, three
// timestamps, type, mode bits, hard-link count, uid, gid, and rdev for
// device nodes. pkg/posix.Stat is derived from this on the syscall
// boundary.
type Metadata struct {
	Dev     uint64
	Ino     uint64
	Size    int64
	BlkSize int32
	Blocks  int64

	ATime time.Time
	MTime time.Time
	CTime time.Time

	Type NodeType
	Mode uint32 // permission bits only; Type is carried separately
	Nlink uint32
	UID   uint32
	GID   uint32

	// Rdev packs major:minor for CharDevice/BlockDevice nodes, using the
	// same packing pkg/devices.PackRdev/UnpackRdev use.
	Rdev uint32
}
