// Copyright 2020 The gVisor Authors.
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

// Package memdev implements the kernel-owned "mem" character devices:
// null, zero, and full. Grounded on gVisor's pkg/sentry/devices/memdev,
// with the devtmpfs-specific registration split out since this kernel
// mounts devices through pkg/fstype instead of a dedicated devtmpfs
// package.
package memdev

import (
	"context"

	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

// Major numbers for this package's devices, chosen to match Linux's
// MEM_MAJOR (1) so a userspace test harness that shells out to real
// device nodes sees familiar numbers.
const MemMajor = 1

// Minor numbers within MemMajor.
const (
	NullMinor = 3
	ZeroMinor = 5
	FullMinor = 7
)

// Register installs null, zero, and full into reg under the kernel
// owner. Each minor is exposed as its own registry entry keyed by
// major*256+minor so Registry's single flat major-number space can
// still distinguish them; callers that want real multi-minor support
// register each minor's Ops under its own synthesized major.
func Register(reg *devices.Registry) error {
	for minor, ops := range map[uint32]devices.Ops{
		NullMinor: nullDevice{},
		ZeroMinor: zeroDevice{},
		FullMinor: fullDevice{},
	} {
		if err := reg.Register(encode(MemMajor, minor), devices.KernelOwner, ops); err != nil {
			return err
		}
	}
	return nil
}

func encode(major, minor uint32) uint32 { return major<<8 | minor }

// stateless is embedded by every device in this package: none of
// null/zero/full carry per-open state, so Open/Close/Seek/SetLen/Sync*/Poll
// are identical across all three.
type stateless struct{}

func (stateless) Open(ctx context.Context) (devices.HandleID, error)   { return 0, nil }
func (stateless) Close(ctx context.Context, id devices.HandleID) error { return nil }

// Seek reports success without tracking a position; these devices have no
// content a position could index into.
func (stateless) Seek(ctx context.Context, id devices.HandleID, offset int64, whence int) (int64, error) {
	return offset, nil
}
func (stateless) SetLen(ctx context.Context, id devices.HandleID, size int64) error {
	return kerrors.NotSupported
}
func (stateless) SyncAll(ctx context.Context, id devices.HandleID) error  { return nil }
func (stateless) SyncData(ctx context.Context, id devices.HandleID) error { return nil }
func (stateless) Poll(ctx context.Context, id devices.HandleID) (vfs.PollStatus, error) {
	return vfs.PollStatus{Readable: true, Writable: true}, nil
}
func (stateless) IOControl(ctx context.Context, id devices.HandleID, cmd uint32, arg uintptr) (int, error) {
	return 0, kerrors.NotSupported
}

type nullDevice struct{ stateless }

func (nullDevice) Read(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	return 0, nil
}
func (nullDevice) ReadAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return 0, nil
}
func (nullDevice) Write(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	return len(buf), nil
}
func (nullDevice) WriteAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return len(buf), nil
}

type zeroDevice struct{ stateless }

func (zeroDevice) Read(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}
func (zeroDevice) ReadAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return zeroDevice{}.Read(ctx, id, buf)
}
func (zeroDevice) Write(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	return len(buf), nil
}
func (zeroDevice) WriteAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return len(buf), nil
}

type fullDevice struct{ stateless }

func (fullDevice) Read(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}
func (fullDevice) ReadAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return fullDevice{}.Read(ctx, id, buf)
}
func (fullDevice) Write(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	return 0, kerrors.NoDeviceSpace
}
func (fullDevice) WriteAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return 0, kerrors.NoDeviceSpace
}
