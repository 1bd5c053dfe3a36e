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

package memdev

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/kerrors"
)

func lookup(t *testing.T, reg *devices.Registry, minor uint32) devices.Ops {
	t.Helper()
	ops, err := reg.Lookup(encode(MemMajor, minor))
	if err != nil {
		t.Fatalf("Lookup(minor=%d): %v", minor, err)
	}
	return ops
}

func TestRegisterInstallsAllThreeMinors(t *testing.T) {
	reg := devices.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	lookup(t, reg, NullMinor)
	lookup(t, reg, ZeroMinor)
	lookup(t, reg, FullMinor)
}

func TestNullDevice(t *testing.T) {
	ctx := context.Background()
	reg := devices.NewRegistry()
	Register(reg)
	d := lookup(t, reg, NullMinor)
	id, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := make([]byte, 16)
	n, err := d.Read(ctx, id, buf)
	if err != nil || n != 0 {
		t.Fatalf("Read() = (%d, %v), want (0, nil)", n, err)
	}
	n, err = d.Write(ctx, id, []byte("discarded"))
	if err != nil || n != len("discarded") {
		t.Fatalf("Write() = (%d, %v), want (%d, nil)", n, err, len("discarded"))
	}
}

func TestZeroDevice(t *testing.T) {
	ctx := context.Background()
	reg := devices.NewRegistry()
	Register(reg)
	d := lookup(t, reg, ZeroMinor)
	id, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := bytes.Repeat([]byte{0xff}, 32)
	n, err := d.Read(ctx, id, buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read() = (%d, %v), want (%d, nil)", n, err, len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %#x, want 0", i, b)
		}
	}
	if n, err := d.Write(ctx, id, []byte("ignored")); err != nil || n != len("ignored") {
		t.Fatalf("Write() = (%d, %v), want (%d, nil)", n, err, len("ignored"))
	}
}

func TestFullDevice(t *testing.T) {
	ctx := context.Background()
	reg := devices.NewRegistry()
	Register(reg)
	d := lookup(t, reg, FullMinor)
	id, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := bytes.Repeat([]byte{0xff}, 8)
	n, err := d.Read(ctx, id, buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read() = (%d, %v), want (%d, nil)", n, err, len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("full device did not zero-fill the read buffer")
		}
	}
	if _, err := d.Write(ctx, id, []byte("x")); !errors.Is(err, kerrors.NoDeviceSpace) {
		t.Fatalf("Write() err = %v, want NoDeviceSpace", err)
	}
}

func TestEncodePacksMajorAndMinor(t *testing.T) {
	if got, want := encode(MemMajor, NullMinor), MemMajor<<8|uint32(NullMinor); got != want {
		t.Fatalf("encode(%d, %d) = %#x, want %#x", MemMajor, NullMinor, got, want)
	}
}
