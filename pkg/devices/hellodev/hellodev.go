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

// Package hellodev is the reference demo character device a loadable
// module registers to prove the LKM path end to end: every read cycles
// through a fixed sentence one byte at a time, regardless of the caller's
// buffer size or read offset. It is a direct port of rCore's
// kernel/src/lkm/hello_device.rs sample device.
package hellodev

import (
	"context"
	"sync"

	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/vfs"
)

const sentence = "The essence of human is repeater.\n"

// cursor is one open handle's position in the repeating sentence. Each
// Open call allocates a fresh cursor keyed by its HandleID, matching the
// original's per-open Internal allocation.
type cursor struct {
	mu  sync.Mutex
	pos int
}

// New returns a factory producing a fresh cursor on every Open, suitable
// for devices.Registry.Register under a module-owned major number.
func New() devices.Ops {
	return &factory{cursors: make(map[devices.HandleID]*cursor)}
}

type factory struct {
	mu      sync.Mutex
	nextID  devices.HandleID
	cursors map[devices.HandleID]*cursor
}

func (f *factory) Open(ctx context.Context) (devices.HandleID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.cursors[id] = &cursor{}
	return id, nil
}

func (f *factory) Close(ctx context.Context, id devices.HandleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cursors[id]; !ok {
		return kerrors.NoDevice
	}
	delete(f.cursors, id)
	return nil
}

func (f *factory) get(id devices.HandleID) (*cursor, error) {
	f.mu.Lock()
	c, ok := f.cursors[id]
	f.mu.Unlock()
	if !ok {
		return nil, kerrors.NoDevice
	}
	return c, nil
}

func (f *factory) Read(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	c, err := f.get(id)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range buf {
		buf[i] = sentence[c.pos]
		c.pos++
		if c.pos == len(sentence) {
			c.pos = 0
		}
	}
	return len(buf), nil
}

func (f *factory) ReadAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return f.Read(ctx, id, buf)
}

func (f *factory) Write(ctx context.Context, id devices.HandleID, buf []byte) (int, error) {
	return 0, kerrors.NotSupported
}

func (f *factory) WriteAt(ctx context.Context, id devices.HandleID, buf []byte, offset int64) (int, error) {
	return 0, kerrors.NotSupported
}

func (f *factory) Seek(ctx context.Context, id devices.HandleID, offset int64, whence int) (int64, error) {
	return 0, kerrors.NotSupported
}

func (f *factory) SetLen(ctx context.Context, id devices.HandleID, size int64) error {
	return kerrors.NotSupported
}

func (f *factory) SyncAll(ctx context.Context, id devices.HandleID) error  { return nil }
func (f *factory) SyncData(ctx context.Context, id devices.HandleID) error { return nil }

func (f *factory) Poll(ctx context.Context, id devices.HandleID) (vfs.PollStatus, error) {
	if _, err := f.get(id); err != nil {
		return vfs.PollStatus{}, err
	}
	return vfs.PollStatus{Readable: true}, nil
}

func (f *factory) IOControl(ctx context.Context, id devices.HandleID, cmd uint32, arg uintptr) (int, error) {
	return 0, kerrors.NotSupported
}
