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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/ramfs"
	"github.com/gorquan/rcore/pkg/vfs"
)

func TestStatFromMetadataEncodesTypeAndPermissions(t *testing.T) {
	m := vfs.Metadata{
		Dev: 1, Ino: 42, Size: 100, BlkSize: 4096, Blocks: 1,
		Type: vfs.CharDevice, Mode: 0644, Nlink: 2, UID: 1000, GID: 1000, Rdev: 0x0105,
		ATime: time.Unix(10, 20), MTime: time.Unix(30, 40), CTime: time.Unix(50, 60),
	}
	s := StatFromMetadata(m)

	if s.Mode != ModeChar|0644 {
		t.Fatalf("Mode = %o, want %o", s.Mode, ModeChar|0644)
	}
	if s.Ino != 42 || s.Nlink != 2 || s.UID != 1000 || s.GID != 1000 {
		t.Fatalf("unexpected identity fields: %+v", s)
	}
	if s.Rdev != 0x0105 {
		t.Fatalf("Rdev = %x, want %x", s.Rdev, 0x0105)
	}
	if s.ATimeSec != 10 || s.ATimeNsec != 20 {
		t.Fatalf("ATime = (%d, %d), want (10, 20)", s.ATimeSec, s.ATimeNsec)
	}
	if s.MTimeSec != 30 || s.CTimeSec != 50 {
		t.Fatalf("unexpected MTime/CTime seconds: %+v", s)
	}
}

func TestStatFromMetadataDefaultsToRegular(t *testing.T) {
	s := StatFromMetadata(vfs.Metadata{Type: vfs.Regular, Mode: 0600})
	if s.Mode != ModeRegular|0600 {
		t.Fatalf("Mode = %o, want %o", s.Mode, ModeRegular|0600)
	}
}

func newDirWithChildren(t *testing.T, names ...string) (vfs.INode, *ramfs.FS) {
	t.Helper()
	fs := ramfs.New("testfs")
	root, err := fs.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	for _, name := range names {
		if _, err := root.Create(context.Background(), name, vfs.Regular, 0644); err != nil {
			t.Fatalf("Create(%q): %v", name, err)
		}
	}
	return root, fs
}

func TestGetdentsListsDotDotDotAndChildren(t *testing.T) {
	dir, _ := newDirWithChildren(t, "a", "bb")
	buf := make([]byte, 4096)
	n, next, err := Getdents(context.Background(), dir, buf, 0)
	if err != nil {
		t.Fatalf("Getdents: %v", err)
	}
	if n == 0 {
		t.Fatal("Getdents wrote 0 bytes for a non-empty directory")
	}

	names := decodeNames(t, buf[:n])
	want := []string{".", "..", "a", "bb"}
	if len(names) != len(want) {
		t.Fatalf("got %d names %v, want %d %v", len(names), names, len(want), want)
	}
	for i, w := range want {
		if names[i] != w {
			t.Fatalf("names[%d] = %q, want %q", i, names[i], w)
		}
	}

	// The directory is now exhausted; calling again from next must report
	// zero bytes written and an unchanged cookie.
	n2, next2, err := Getdents(context.Background(), dir, buf, next)
	if err != nil || n2 != 0 || next2 != next {
		t.Fatalf("follow-up Getdents = (%d, %d, %v), want (0, %d, nil)", n2, next2, err, next)
	}
}

func TestGetdentsResumesAcrossSmallBuffers(t *testing.T) {
	dir, _ := newDirWithChildren(t, "one", "two", "three")

	var all []string
	var cookie uint64
	for {
		buf := make([]byte, direntHeaderLen+16) // room for exactly one record of these names
		n, next, err := Getdents(context.Background(), dir, buf, cookie)
		if err != nil {
			t.Fatalf("Getdents: %v", err)
		}
		if n == 0 {
			break
		}
		all = append(all, decodeNames(t, buf[:n])...)
		cookie = next
	}

	want := []string{".", "..", "one", "two", "three"}
	if len(all) != len(want) {
		t.Fatalf("got %v, want %v", all, want)
	}
	for i, w := range want {
		if all[i] != w {
			t.Fatalf("all[%d] = %q, want %q", i, all[i], w)
		}
	}
}

func TestGetdentsTooSmallForOneRecordFails(t *testing.T) {
	dir, _ := newDirWithChildren(t)
	buf := make([]byte, 2)
	_, _, err := Getdents(context.Background(), dir, buf, 0)
	if !errors.Is(err, errTooSmall) {
		t.Fatalf("err = %v, want errTooSmall", err)
	}
}

// decodeNames walks raw getdents records out of buf, validating the
// record-length framing along the way.
func decodeNames(t *testing.T, buf []byte) []string {
	t.Helper()
	var names []string
	off := 0
	for off < len(buf) {
		if off+direntHeaderLen > len(buf) {
			t.Fatalf("truncated record header at offset %d", off)
		}
		rl := int(buf[off+16]) | int(buf[off+17])<<8
		if rl == 0 || rl%8 != 0 {
			t.Fatalf("record length %d at offset %d is not a positive multiple of 8", rl, off)
		}
		name := string(buf[off+direntHeaderLen : off+rl])
		name = strings.TrimRight(name, "\x00")
		names = append(names, name)
		off += rl
	}
	return names
}

func newFileHandle(t *testing.T, content string) *Handle {
	t.Helper()
	fs := ramfs.New("testfs")
	root, err := fs.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	node, err := root.Create(context.Background(), "f", vfs.Regular, 0644)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if content != "" {
		if _, err := node.WriteAt(context.Background(), []byte(content), 0); err != nil {
			t.Fatalf("WriteAt: %v", err)
		}
	}
	return NewHandle(node)
}

func TestHandleReadWriteAdvancesPosition(t *testing.T) {
	h := newFileHandle(t, "")
	ctx := context.Background()
	n, err := h.Write(ctx, []byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v), want (5, nil)", n, err)
	}
	n, err = h.Write(ctx, []byte(" world"))
	if err != nil || n != 6 {
		t.Fatalf("Write = (%d, %v), want (6, nil)", n, err)
	}

	if _, err := h.Lseek(0, SeekSet); err != nil {
		t.Fatalf("Lseek: %v", err)
	}
	buf := make([]byte, 11)
	n, err = h.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "hello world" {
		t.Fatalf("Read = (%q, %v), want (%q, nil)", buf[:n], err, "hello world")
	}
}

func TestHandlePreadPwriteDoNotMovePosition(t *testing.T) {
	h := newFileHandle(t, "0123456789")
	ctx := context.Background()
	buf := make([]byte, 4)
	if _, err := h.Pread(ctx, buf, 2); err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if string(buf) != "2345" {
		t.Fatalf("Pread = %q, want 2345", buf)
	}
	// Position should still be 0 since only Pread was used.
	n, err := h.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "0123" {
		t.Fatalf("Read after Pread = %q, want 0123", buf[:n])
	}
}

func TestHandleLseekOrigins(t *testing.T) {
	h := newFileHandle(t, "0123456789")
	if pos, err := h.Lseek(3, SeekSet); err != nil || pos != 3 {
		t.Fatalf("Lseek SeekSet = (%d, %v), want (3, nil)", pos, err)
	}
	if pos, err := h.Lseek(2, SeekCur); err != nil || pos != 5 {
		t.Fatalf("Lseek SeekCur = (%d, %v), want (5, nil)", pos, err)
	}
	if pos, err := h.Lseek(0, SeekEnd); err != nil || pos != 10 {
		t.Fatalf("Lseek SeekEnd = (%d, %v), want (10, nil)", pos, err)
	}
	if _, err := h.Lseek(-100, SeekSet); !errors.Is(err, kerrors.InvalidParam) {
		t.Fatalf("Lseek negative result err = %v, want InvalidParam", err)
	}
}

func TestHandleReadvWritevValidatesBeforeTransfer(t *testing.T) {
	h := newFileHandle(t, "")
	ctx := context.Background()
	if _, err := h.Writev(ctx, nil); !errors.Is(err, kerrors.InvalidParam) {
		t.Fatalf("Writev(nil) err = %v, want InvalidParam", err)
	}
	if _, err := h.Writev(ctx, []IOVec{{Base: nil}}); !errors.Is(err, kerrors.InvalidParam) {
		t.Fatalf("Writev(nil Base) err = %v, want InvalidParam", err)
	}

	n, err := h.Writev(ctx, []IOVec{{Base: []byte("ab")}, {Base: []byte("cde")}})
	if err != nil || n != 5 {
		t.Fatalf("Writev = (%d, %v), want (5, nil)", n, err)
	}

	if _, err := h.Lseek(0, SeekSet); err != nil {
		t.Fatalf("Lseek: %v", err)
	}
	b1 := make([]byte, 2)
	b2 := make([]byte, 3)
	n, err = h.Readv(ctx, []IOVec{{Base: b1}, {Base: b2}})
	if err != nil || n != 5 {
		t.Fatalf("Readv = (%d, %v), want (5, nil)", n, err)
	}
	if string(b1) != "ab" || string(b2) != "cde" {
		t.Fatalf("Readv vectors = %q, %q, want ab, cde", b1, b2)
	}
}

func TestSendFileNilOffsetUsesHandlePosition(t *testing.T) {
	ctx := context.Background()
	src := newFileHandle(t, "hello world")
	dst := newFileHandle(t, "")

	n, err := SendFile(ctx, dst, src, nil, 5)
	if err != nil || n != 5 {
		t.Fatalf("SendFile = (%d, %v), want (5, nil)", n, err)
	}
	buf := make([]byte, 5)
	if _, err := dst.Pread(ctx, buf, 0); err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("dst content = %q, want hello", buf)
	}

	// The source handle's own position should have advanced by 5, so a
	// second nil-offset SendFile continues from "  world" onward... but
	// src content is "hello world" so the next 6 bytes are " world".
	n, err = SendFile(ctx, dst, src, nil, 6)
	if err != nil || n != 6 {
		t.Fatalf("second SendFile = (%d, %v), want (6, nil)", n, err)
	}
}

func TestCopyFileRangeAdvancesIndependentOffsets(t *testing.T) {
	ctx := context.Background()
	src := newFileHandle(t, "abcdefgh")
	dst := newFileHandle(t, "")

	in := int64(2)  // "cdefgh"
	out := int64(1) // leave dst[0] untouched
	n, err := CopyFileRange(ctx, dst, src, &in, &out, 4)
	if err != nil || n != 4 {
		t.Fatalf("CopyFileRange = (%d, %v), want (4, nil)", n, err)
	}
	if in != 6 || out != 5 {
		t.Fatalf("offsets after copy = (%d, %d), want (6, 5)", in, out)
	}
	buf := make([]byte, 5)
	if _, err := dst.Pread(ctx, buf, 0); err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if string(buf[1:]) != "cdef" {
		t.Fatalf("dst content = %q, want [?]cdef", buf)
	}
}

func TestPollReturnsReadyImmediately(t *testing.T) {
	h := newFileHandle(t, "data")
	ev := &PollEvent{Handle: h, Readable: true}
	n, err := Poll([]*PollEvent{ev}, 0)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || !ev.RReady {
		t.Fatalf("Poll ready = %d (RReady=%v), want 1 (true)", n, ev.RReady)
	}
}

func TestPollTimesOutWhenNeverReady(t *testing.T) {
	read, _, closeWrite := Pipe()
	defer closeWrite()
	ev := &PollEvent{Handle: read, Readable: true}
	start := time.Now()
	n, err := Poll([]*PollEvent{ev}, 20)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("Poll ready = %d, want 0 (nothing written)", n)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("Poll returned too quickly to have honored the timeout")
	}
}

func TestPipeWriteReadThenCloseReturnsEOF(t *testing.T) {
	ctx := context.Background()
	read, write, closeWrite := Pipe()

	n, err := write.Write(ctx, []byte("ping"))
	if err != nil || n != 4 {
		t.Fatalf("Write = (%d, %v), want (4, nil)", n, err)
	}

	buf := make([]byte, 4)
	n, err = read.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("Read = (%q, %v), want (ping, nil)", buf[:n], err)
	}

	// No data queued and the write end is still open: a read must report
	// Again rather than a false EOF.
	if _, err := read.Read(ctx, buf); !errors.Is(err, kerrors.Again) {
		t.Fatalf("Read on empty open pipe err = %v, want Again", err)
	}

	closeWrite()
	n, err = read.Read(ctx, buf)
	if err != nil || n != 0 {
		t.Fatalf("Read after close = (%d, %v), want (0, nil)", n, err)
	}

	if _, err := write.Write(ctx, []byte("x")); !errors.Is(err, kerrors.DeviceError) {
		t.Fatalf("Write after close err = %v, want DeviceError", err)
	}
}
