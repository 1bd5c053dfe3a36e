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
	"errors"
	"testing"

	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/ramfs"
	"github.com/gorquan/rcore/pkg/vfs"
)

// echoDevice is a minimal devices.Ops fake that records what it was
// asked to do, to prove Handle forwards to the driver rather than the
// backing inode.
type echoDevice struct {
	closed bool
}

func (d *echoDevice) Open(ctx context.Context) (devices.HandleID, error) { return 7, nil }
func (d *echoDevice) Close(ctx context.Context, id devices.HandleID) error {
	d.closed = true
	return nil
}
func (d *echoDevice) Read(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	return copy(buf, "from-driver"), nil
}
func (d *echoDevice) ReadAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return d.Read(ctx, id, buf)
}
func (d *echoDevice) Write(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	return len(buf), nil
}
func (d *echoDevice) WriteAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return d.Write(ctx, id, buf)
}
func (d *echoDevice) Seek(ctx context.Context, id devices.HandleID, offset int64, whence int) (int64, error) {
	return offset, nil
}
func (d *echoDevice) SetLen(ctx context.Context, id devices.HandleID, size int64) error { return nil }
func (d *echoDevice) SyncAll(ctx context.Context, id devices.HandleID) error            { return nil }
func (d *echoDevice) SyncData(ctx context.Context, id devices.HandleID) error           { return nil }
func (d *echoDevice) Poll(ctx context.Context, id devices.HandleID) (vfs.PollStatus, error) {
	return vfs.PollStatus{Readable: true}, nil
}
func (d *echoDevice) IOControl(ctx context.Context, id devices.HandleID, cmd uint32, arg uintptr) (int, error) {
	return int(cmd), nil
}

func newDeviceNode(t *testing.T) vfs.INode {
	t.Helper()
	fs := ramfs.New("test")
	root, err := fs.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	node, err := root.Create(context.Background(), "dev0", vfs.CharDevice, 0644)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return node
}

func TestOpenForwardsCharDeviceToRegisteredDriver(t *testing.T) {
	ctx := context.Background()
	node := newDeviceNode(t)
	major, _ := devices.UnpackRdev(0) // this inode's rdev is the ramfs default, 0
	reg := devices.NewRegistry()
	drv := &echoDevice{}
	if err := reg.Register(major, devices.KernelOwner, drv); err != nil {
		t.Fatalf("Register: %v", err)
	}

	h, err := Open(ctx, node, reg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := make([]byte, 32)
	n, err := h.Read(ctx, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("from-driver")) {
		t.Fatalf("Read = %q, want %q (a device open must forward to the driver, not the inode)", buf[:n], "from-driver")
	}

	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !drv.closed {
		t.Fatalf("Close did not reach the driver")
	}
}

func TestOpenMissingMajorIsNoDevice(t *testing.T) {
	node := newDeviceNode(t)
	reg := devices.NewRegistry()
	if _, err := Open(context.Background(), node, reg); !errors.Is(err, kerrors.NoDevice) {
		t.Fatalf("err = %v, want NoDevice", err)
	}
}

func TestOpenOnRegularFileBypassesRegistry(t *testing.T) {
	ctx := context.Background()
	fs := ramfs.New("test")
	root, _ := fs.Root()
	node, err := root.Create(ctx, "f", vfs.Regular, 0644)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := node.WriteAt(ctx, []byte("hi"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// A nil registry must never be consulted for a non-device inode.
	h, err := Open(ctx, node, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 2)
	if _, err := h.Read(ctx, buf); err != nil || string(buf) != "hi" {
		t.Fatalf("Read = (%q, %v), want (hi, nil)", buf, err)
	}
}
