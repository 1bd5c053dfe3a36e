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

package hellodev

import (
	"context"
	"errors"
	"testing"

	"github.com/gorquan/rcore/pkg/kerrors"
)

func TestReadBeforeOpenIsNoDevice(t *testing.T) {
	d := New()
	if _, err := d.Read(context.Background(), 99, make([]byte, 1)); !errors.Is(err, kerrors.NoDevice) {
		t.Fatalf("err = %v, want NoDevice", err)
	}
}

func TestReadCyclesThroughSentenceRegardlessOfBufferSize(t *testing.T) {
	ctx := context.Background()
	d := New()
	id, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	total := len(sentence)*2 + 3
	got := make([]byte, 0, total)
	for len(got) < total {
		buf := make([]byte, 7)
		n, err := d.Read(ctx, id, buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	got = got[:total]

	for i, b := range got {
		want := sentence[i%len(sentence)]
		if b != want {
			t.Fatalf("byte %d = %q, want %q", i, b, want)
		}
	}
}

func TestEachOpenGetsItsOwnCursor(t *testing.T) {
	ctx := context.Background()
	d := New()
	first, _ := d.Open(ctx)
	d.Read(ctx, first, make([]byte, len(sentence)+5))

	second, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 3)
	if _, err := d.Read(ctx, second, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != sentence[:3] {
		t.Fatalf("Read from a fresh open = %q, want %q", buf, sentence[:3])
	}
}

func TestWriteAndIOControlAreUnsupported(t *testing.T) {
	ctx := context.Background()
	d := New()
	id, _ := d.Open(ctx)
	if _, err := d.Write(ctx, id, []byte("x")); !errors.Is(err, kerrors.NotSupported) {
		t.Fatalf("Write err = %v, want NotSupported", err)
	}
	if _, err := d.IOControl(ctx, id, 0, 0); !errors.Is(err, kerrors.NotSupported) {
		t.Fatalf("IOControl err = %v, want NotSupported", err)
	}
}

func TestCloseInvalidatesHandle(t *testing.T) {
	ctx := context.Background()
	d := New()
	id, _ := d.Open(ctx)
	if err := d.Close(ctx, id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.Read(ctx, id, make([]byte, 1)); !errors.Is(err, kerrors.NoDevice) {
		t.Fatalf("Read after Close err = %v, want NoDevice", err)
	}
}
