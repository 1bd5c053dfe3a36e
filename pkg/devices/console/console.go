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

// Package console is the kernel's built-in console character device. It
// backs /dev/console with a real host pty pair (github.com/kr/pty), and
// puts the host side of that pty into raw mode through
// github.com/containerd/console so a kernelctl session attached to it
// behaves like a real serial console rather than a line-buffered pipe.
package console

import (
	"context"
	"io"
	"os"
	"sync"

	ctrconsole "github.com/containerd/console"
	"github.com/kr/pty"

	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// ConsoleMajor is this device's major number within a devices.Registry.
const ConsoleMajor = 4

// Console is the kernel-owned console device. Reads pull from the pty
// master's output (what a process behind the console wrote), writes push
// to the pty master's input (what a process behind the console reads).
type Console struct {
	mu     sync.Mutex
	master *os.File
	slave  *os.File
	raw    ctrconsole.Console
}

// New opens a host pty pair and arms the master side for raw I/O. The
// slave end is exposed via SlaveName for a host process (a simulated
// login shell, or a test harness) to open directly.
func New() (*Console, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, kerrors.DeviceError
	}
	raw, err := ctrconsole.ConsoleFromFile(master)
	if err != nil {
		slave.Close()
		master.Close()
		return nil, kerrors.DeviceError
	}
	if err := raw.SetRaw(); err != nil {
		slave.Close()
		master.Close()
		return nil, kerrors.DeviceError
	}
	return &Console{master: master, slave: slave, raw: raw}, nil
}

// SlaveName is the pty slave's path, e.g. "/dev/pts/4".
func (c *Console) SlaveName() string { return c.slave.Name() }

// Shutdown resets the master's terminal state and closes both ends, for
// use when the pty pair itself is being torn down (not a per-open close,
// which is the devices.Ops Close below).
func (c *Console) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.raw.Reset()
	err1 := c.master.Close()
	err2 := c.slave.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

var _ devices.Ops = (*Console)(nil)

// Open always succeeds with the same handle id: every opener shares the
// one underlying pty, the way opening /dev/console twice on a real
// system shares the one controlling terminal rather than allocating a
// second one.
func (c *Console) Open(ctx context.Context) (devices.HandleID, error) { return 0, nil }

func (c *Console) Close(ctx context.Context, id devices.HandleID) error { return nil }

func (c *Console) Read(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	c.mu.Lock()
	master := c.master
	c.mu.Unlock()
	n, err := master.Read(buf)
	if err != nil && err != io.EOF {
		return n, kerrors.DeviceError
	}
	return n, nil
}

func (c *Console) ReadAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return c.Read(ctx, id, buf)
}

func (c *Console) Write(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	c.mu.Lock()
	master := c.master
	c.mu.Unlock()
	n, err := master.Write(buf)
	if err != nil {
		return n, kerrors.DeviceError
	}
	return n, nil
}

func (c *Console) WriteAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return c.Write(ctx, id, buf)
}

func (c *Console) Seek(ctx context.Context, id devices.HandleID, offset int64, whence int) (int64, error) {
	return 0, kerrors.NotSupported
}

func (c *Console) SetLen(ctx context.Context, id devices.HandleID, size int64) error {
	return kerrors.NotSupported
}

func (c *Console) SyncAll(ctx context.Context, id devices.HandleID) error  { return nil }
func (c *Console) SyncData(ctx context.Context, id devices.HandleID) error { return nil }

func (c *Console) Poll(ctx context.Context, id devices.HandleID) (vfs.PollStatus, error) {
	return vfs.PollStatus{Readable: true, Writable: true}, nil
}

func (c *Console) IOControl(ctx context.Context, id devices.HandleID, cmd uint32, arg uintptr) (int, error) {
	return 0, kerrors.NotSupported
}

// Register installs c into reg under the kernel owner.
func Register(reg *devices.Registry, c *Console) error {
	return reg.Register(ConsoleMajor, devices.KernelOwner, c)
}
