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
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// anonFS is the one-off FileSystem every anonymous pipe inode claims as
// its owner, so Link/Rename's same-filesystem check correctly refuses to
// treat two pipe ends (or a pipe and a real file) as linkable, matching
// spec.md §9's singleton anonymous-filesystem handle.
type anonFS struct{}

func (anonFS) Root() (vfs.INode, error) { return nil, kerrors.NotSupported }
func (anonFS) Sync() error              { return nil }
func (anonFS) Name() string             { return "pipefs" }

var anonFilesystem anonFS

var pipeInoCounter struct {
	mu sync.Mutex
	n  uint64
}

func nextPipeIno() uint64 {
	pipeInoCounter.mu.Lock()
	defer pipeInoCounter.mu.Unlock()
	pipeInoCounter.n++
	return pipeInoCounter.n
}

// pipeInode is the shared buffer backing both ends of one pipe. Per
// spec.md's S5 scenario, writes queue bytes FIFO-style and a read after
// the write end has closed returns 0 rather than blocking.
type pipeInode struct {
	ino uint64

	mu         sync.Mutex
	buf        bytes.Buffer
	writClosed bool
}

func (p *pipeInode) Ino() uint64        { return p.ino }
func (p *pipeInode) FS() vfs.FileSystem { return anonFilesystem }

func (p *pipeInode) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() == 0 {
		if p.writClosed {
			return 0, nil
		}
		return 0, kerrors.Again
	}
	return p.buf.Read(buf)
}

func (p *pipeInode) WriteAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writClosed {
		return 0, kerrors.DeviceError
	}
	return p.buf.Write(buf)
}

func (p *pipeInode) Metadata() (vfs.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return vfs.Metadata{
		Ino:   p.ino,
		Size:  int64(p.buf.Len()),
		Type:  vfs.FIFO,
		Nlink: 1,
		MTime: time.Now(),
	}, nil
}

func (p *pipeInode) SetMetadata(vfs.Metadata) error { return kerrors.NotSupported }
func (p *pipeInode) Resize(int64) error             { return kerrors.NotSupported }

func (p *pipeInode) Create(ctx context.Context, name string, typ vfs.NodeType, mode uint32) (vfs.INode, error) {
	return nil, kerrors.NotDir
}
func (p *pipeInode) Link(ctx context.Context, name string, target vfs.INode) error {
	return kerrors.NotDir
}
func (p *pipeInode) Unlink(ctx context.Context, name string) error { return kerrors.NotDir }
func (p *pipeInode) Rename(ctx context.Context, oldName string, newParent vfs.INode, newName string) error {
	return kerrors.NotDir
}
func (p *pipeInode) Lookup(ctx context.Context, name string) (vfs.INode, error) {
	return nil, kerrors.NotDir
}
func (p *pipeInode) Parent(ctx context.Context) (vfs.INode, error) { return p, nil }
func (p *pipeInode) GetEntry(ctx context.Context, index int) (vfs.DirEntry, error) {
	return vfs.DirEntry{}, vfs.ErrNoMoreEntries
}
func (p *pipeInode) IOControl(ctx context.Context, cmd uint32, arg uintptr) (int, error) {
	return 0, kerrors.NotSupported
}
func (p *pipeInode) Sync() error { return nil }

func (p *pipeInode) Poll() (vfs.PollStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return vfs.PollStatus{
		Readable: p.buf.Len() > 0 || p.writClosed,
		Writable: !p.writClosed,
	}, nil
}

// pipeEnd wraps the shared pipeInode to give the read end and write end
// distinct Close behavior: closing the write end marks the pipe drained
// so a blocked or future reader sees EOF (0) rather than Again forever.
type pipeEnd struct {
	*pipeInode
	write bool
}

// Close marks the write end closed; the read end's Close is a no-op
// since the shared buffer has nothing further to release.
func (e *pipeEnd) Close() {
	if !e.write {
		return
	}
	e.mu.Lock()
	e.writClosed = true
	e.mu.Unlock()
}

// Pipe creates two anonymous-inode handles with opposing read/write
// options, per spec.md §6. Calling the returned closeWrite marks the
// write end closed; the handles' own Close methods do not.
func Pipe() (read *Handle, write *Handle, closeWrite func()) {
	shared := &pipeInode{ino: nextPipeIno()}
	we := &pipeEnd{pipeInode: shared, write: true}
	return NewHandle(shared), NewHandle(shared), we.Close
}
