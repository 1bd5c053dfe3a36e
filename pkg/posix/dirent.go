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

package posix

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/gorquan/rcore/pkg/vfs"
)

// direntHeaderLen is the fixed portion of one getdents record: an 8-byte
// inode, an 8-byte cookie, a 16-bit record length, and an 8-bit type,
// before the null-terminated name (spec.md §6).
const direntHeaderLen = 8 + 8 + 2 + 1

func directoryType(t vfs.NodeType) uint8 {
	switch t {
	case vfs.Directory:
		return 4
	case vfs.CharDevice:
		return 2
	case vfs.BlockDevice:
		return 6
	case vfs.FIFO:
		return 1
	case vfs.Socket:
		return 12
	case vfs.SymLink:
		return 10
	default:
		return 8 // DT_REG
	}
}

// recordLen is the record length for name, rounded up to a multiple of 8
// as spec.md §6 requires.
func recordLen(name string) uint16 {
	raw := direntHeaderLen + len(name) + 1 // +1 for the null terminator
	return uint16((raw + 7) &^ 7)
}

// Getdents fills buf with as many directory-entry records, starting at
// cookie (an opaque GetEntry index), as fit, stopping before a record
// that would overflow buf. It returns the number of bytes written and
// the cookie a follow-up call should resume from. next == cookie with
// n == 0 means the directory is exhausted.
func Getdents(ctx context.Context, dir vfs.INode, buf []byte, cookie uint64) (n int, next uint64, err error) {
	index := int(cookie)
	off := 0
	for {
		entry, err := dir.GetEntry(ctx, index)
		if errors.Is(err, vfs.ErrNoMoreEntries) {
			return off, uint64(index), nil
		}
		if err != nil {
			return off, uint64(index), err
		}
		rl := recordLen(entry.Name)
		if off+int(rl) > len(buf) {
			if off == 0 {
				return 0, cookie, errTooSmall
			}
			return off, uint64(index), nil
		}
		record := buf[off : off+int(rl)]
		binary.LittleEndian.PutUint64(record[0:], entry.Ino)
		binary.LittleEndian.PutUint64(record[8:], uint64(index+1))
		binary.LittleEndian.PutUint16(record[16:], rl)
		record[18] = directoryType(entry.Type)
		copy(record[direntHeaderLen:], entry.Name)
		// The name's terminator and the padding up to the record
		// boundary are zeroed explicitly, since buf may hold stale bytes.
		for i := direntHeaderLen + len(entry.Name); i < int(rl); i++ {
			record[i] = 0
		}

		off += int(rl)
		index++
	}
}

var errTooSmall = errors.New("posix: destination buffer too small for one directory entry")
