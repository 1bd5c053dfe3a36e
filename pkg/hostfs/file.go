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

	"github.com/gorquan/rcore/pkg/posix"
	"github.com/gorquan/rcore/pkg/vfs"
)

// fileHandle adapts a posix.Handle to FUSE's FileHandle interfaces. It
// reuses the same pread/pwrite-at-offset surface pkg/posix already
// serializes through Handle's mutex, rather than keeping a second,
// independent position cursor for the FUSE side.
type fileHandle struct {
	h *posix.Handle
}

func newFileHandle(node vfs.INode) *fileHandle {
	return &fileHandle{h: posix.NewHandle(node)}
}

var (
	_ fusefs.FileHandle  = (*fileHandle)(nil)
	_ fusefs.FileReader  = (*fileHandle)(nil)
	_ fusefs.FileWriter  = (*fileHandle)(nil)
	_ fusefs.FileFlusher = (*fileHandle)(nil)
	_ fusefs.FileFsyncer = (*fileHandle)(nil)
)

// Read satisfies FileReader by delegating to Pread, since FUSE always
// supplies an explicit offset and keeps its own notion of file position.
func (f *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := f.h.Pread(ctx, dest, off)
	if err != nil {
		return nil, translateError(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write satisfies FileWriter by delegating to Pwrite.
func (f *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := f.h.Pwrite(ctx, data, off)
	if err != nil {
		return uint32(n), translateError(err)
	}
	return uint32(n), 0
}

// Flush and Fsync both reduce to the underlying Inode's Sync, since
// concrete file systems here are either purely in-memory or already
// durable on every write.
func (f *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return translateError(f.h.Close(ctx))
}

func (f *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return translateError(f.h.Node().Sync())
}
