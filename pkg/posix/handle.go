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
	"sync"

	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// Whence selects lseek's origin.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Handle is an open file description: an INode plus the owning position
// state spec.md §5 says is "owned by one caller at a time" — Handle
// serializes every positional operation on itself with a mutex so two
// goroutines sharing one fd (as after a hypothetical dup) cannot
// interleave a read and a seek.
//
// A Handle opened against a character-device inode also carries a
// driver reference (ops/devID): every method checks for one first and
// forwards to the driver's operation table, falling through to the
// inode's own methods only when no driver is attached. A plain
// NewHandle never sets ops, so file and directory inodes are unaffected.
type Handle struct {
	mu   sync.Mutex
	node vfs.INode
	pos  int64

	ops   devices.Ops
	devID devices.HandleID
}

// NewHandle opens node as a fresh handle positioned at offset 0,
// dispatching directly to node's own methods. Use Open instead when node
// might be a character-device inode.
func NewHandle(node vfs.INode) *Handle {
	return &Handle{node: node}
}

// Open opens node as a fresh handle. A vfs.CharDevice inode is resolved
// against reg by its rdev's major number and the resulting Handle
// forwards every operation to the driver's operation table; any other
// inode type behaves exactly like NewHandle. Returns kerrors.NoDevice if
// the inode's major claims no registered driver.
func Open(ctx context.Context, node vfs.INode, reg *devices.Registry) (*Handle, error) {
	meta, err := node.Metadata()
	if err != nil {
		return nil, err
	}
	if meta.Type != vfs.CharDevice {
		return NewHandle(node), nil
	}
	major, _ := devices.UnpackRdev(meta.Rdev)
	ops, err := reg.Lookup(major)
	if err != nil {
		return nil, err
	}
	id, err := ops.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &Handle{node: node, ops: ops, devID: id}, nil
}

// Node returns the underlying INode, for stat/ioctl/poll call sites that
// need it directly.
func (h *Handle) Node() vfs.INode { return h.node }

// Read advances the handle's position by the number of bytes read.
func (h *Handle) Read(ctx context.Context, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ops != nil {
		n, err := h.ops.Read(ctx, h.devID, buf)
		h.pos += int64(n)
		return n, err
	}
	n, err := h.node.ReadAt(ctx, buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// Write advances the handle's position by the number of bytes written.
func (h *Handle) Write(ctx context.Context, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ops != nil {
		n, err := h.ops.Write(ctx, h.devID, buf)
		h.pos += int64(n)
		return n, err
	}
	n, err := h.node.WriteAt(ctx, buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// Pread/Pwrite bypass and do not update the handle's position, per their
// POSIX definition.
func (h *Handle) Pread(ctx context.Context, buf []byte, offset int64) (int, error) {
	if h.ops != nil {
		return h.ops.ReadAt(ctx, h.devID, buf, offset)
	}
	return h.node.ReadAt(ctx, buf, offset)
}

func (h *Handle) Pwrite(ctx context.Context, buf []byte, offset int64) (int, error) {
	if h.ops != nil {
		return h.ops.WriteAt(ctx, h.devID, buf, offset)
	}
	return h.node.WriteAt(ctx, buf, offset)
}

// Readv reads into each vector in order, starting from the handle's
// current position, advancing it by the total bytes actually read. All
// vectors are validated before any transfer happens.
func (h *Handle) Readv(ctx context.Context, iovs []IOVec) (int, error) {
	if err := validateIOVecs(iovs); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, v := range iovs {
		var n int
		var err error
		if h.ops != nil {
			n, err = h.ops.Read(ctx, h.devID, v.Base)
		} else {
			n, err = h.node.ReadAt(ctx, v.Base, h.pos)
		}
		total += n
		h.pos += int64(n)
		if err != nil {
			return total, err
		}
		if n < len(v.Base) {
			break
		}
	}
	return total, nil
}

// Writev writes each vector in order, starting from the handle's current
// position, advancing it by the total bytes actually written. All
// vectors are validated before any transfer happens.
func (h *Handle) Writev(ctx context.Context, iovs []IOVec) (int, error) {
	if err := validateIOVecs(iovs); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, v := range iovs {
		var n int
		var err error
		if h.ops != nil {
			n, err = h.ops.Write(ctx, h.devID, v.Base)
		} else {
			n, err = h.node.WriteAt(ctx, v.Base, h.pos)
		}
		total += n
		h.pos += int64(n)
		if err != nil {
			return total, err
		}
		if n < len(v.Base) {
			break
		}
	}
	return total, nil
}

// Lseek repositions the handle per whence, rejecting a negative result.
// A driver-backed handle forwards the whole operation to the driver,
// which owns whether seeking means anything for its device.
func (h *Handle) Lseek(offset int64, whence Whence) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ops != nil {
		newPos, err := h.ops.Seek(context.Background(), h.devID, offset, int(whence))
		if err != nil {
			return 0, err
		}
		h.pos = newPos
		return newPos, nil
	}
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = h.pos
	case SeekEnd:
		meta, err := h.node.Metadata()
		if err != nil {
			return 0, err
		}
		base = meta.Size
	default:
		return 0, kerrors.InvalidParam
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, kerrors.InvalidParam
	}
	h.pos = newPos
	return newPos, nil
}

// IOControl forwards to the driver if attached, otherwise to the
// underlying INode.
func (h *Handle) IOControl(ctx context.Context, cmd uint32, arg uintptr) (int, error) {
	if h.ops != nil {
		return h.ops.IOControl(ctx, h.devID, cmd, arg)
	}
	return h.node.IOControl(ctx, cmd, arg)
}

// poll reports readiness through the driver if attached, otherwise
// through the underlying INode; pollOnce in poll.go uses this instead of
// reaching into node directly so device-backed handles participate in
// poll/select too.
func (h *Handle) poll(ctx context.Context) (vfs.PollStatus, error) {
	if h.ops != nil {
		return h.ops.Poll(ctx, h.devID)
	}
	return h.node.Poll()
}

// Close releases the handle. A driver-backed handle's Close tells the
// driver to free its HandleID; otherwise it syncs the inode. The fd
// table itself is a boot/process concern outside this package.
func (h *Handle) Close(ctx context.Context) error {
	if h.ops != nil {
		return h.ops.Close(ctx, h.devID)
	}
	return h.node.Sync()
}
