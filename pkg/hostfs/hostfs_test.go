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
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/ramfs"
	"github.com/gorquan/rcore/pkg/vfs"
)

func newRootNode(t *testing.T) (*Node, vfs.MountNode) {
	t.Helper()
	fs := ramfs.New("testfs")
	m := vfs.NewMount(fs)
	root, err := m.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	return &Node{mnt: root, root: root}, root
}

func TestGetattrReportsDirectoryType(t *testing.T) {
	n, _ := newRootNode(t)
	var out fuse.AttrOut
	if errno := n.Getattr(context.Background(), nil, &out); errno != 0 {
		t.Fatalf("Getattr: errno %v", errno)
	}
	if out.Attr.Mode&syscall.S_IFDIR == 0 {
		t.Fatalf("expected S_IFDIR bit set, mode=%#o", out.Attr.Mode)
	}
}

func TestMkdirCreateUnlinkViaRawInode(t *testing.T) {
	n, root := newRootNode(t)
	ctx := context.Background()

	child, err := root.Inode.Create(ctx, "sub", vfs.Directory, 0755)
	if err != nil {
		t.Fatalf("Create dir: %v", err)
	}
	subMnt := vfs.MountNode{Inode: child, Mount: root.Mount}
	sub := &Node{mnt: subMnt, root: n.root}

	meta, err := sub.mnt.Inode.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Type != vfs.Directory {
		t.Fatalf("expected directory, got %v", meta.Type)
	}

	if errno := n.Unlink(ctx, "sub"); errno == 0 {
		t.Fatalf("Unlink of a directory should fail, got OK")
	}
	if errno := n.Rmdir(ctx, "sub"); errno != 0 {
		t.Fatalf("Rmdir: errno %v", errno)
	}
}

func TestReaddirListsChildren(t *testing.T) {
	n, root := newRootNode(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := root.Inode.Create(ctx, name, vfs.Regular, 0644); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	stream, errno := n.Readdir(ctx)
	if errno != 0 {
		t.Fatalf("Readdir: errno %v", errno)
	}
	defer stream.Close()

	seen := map[string]bool{}
	for stream.HasNext() {
		e, errno := stream.Next()
		if errno != 0 {
			t.Fatalf("Next: errno %v", errno)
		}
		seen[e.Name] = true
	}
	for _, want := range []string{".", "..", "a", "b", "c"} {
		if !seen[want] {
			t.Fatalf("missing entry %q in %v", want, seen)
		}
	}
}

func TestFileHandleWriteThenReadRoundTrips(t *testing.T) {
	_, root := newRootNode(t)
	ctx := context.Background()
	file, err := root.Inode.Create(ctx, "greeting", vfs.Regular, 0644)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	fh := newFileHandle(file)
	payload := []byte("hello hostfs")
	if n, errno := fh.Write(ctx, payload, 0); errno != 0 || int(n) != len(payload) {
		t.Fatalf("Write: n=%d errno=%v", n, errno)
	}

	buf := make([]byte, len(payload))
	res, errno := fh.Read(ctx, buf, 0)
	if errno != 0 {
		t.Fatalf("Read: errno %v", errno)
	}
	got, status := res.Bytes(buf)
	if status != fuse.OK {
		t.Fatalf("ReadResult.Bytes: status %v", status)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestSetattrResizesFile(t *testing.T) {
	_, root := newRootNode(t)
	ctx := context.Background()
	file, err := root.Inode.Create(ctx, "truncated", vfs.Regular, 0644)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	n := &Node{mnt: vfs.MountNode{Inode: file, Mount: root.Mount}, root: root}

	var in fuse.SetAttrIn
	in.Valid = fuse.FATTR_SIZE
	in.Size = 42
	var out fuse.AttrOut
	if errno := n.Setattr(ctx, nil, &in, &out); errno != 0 {
		t.Fatalf("Setattr: errno %v", errno)
	}
	if out.Attr.Size != 42 {
		t.Fatalf("got size %d, want 42", out.Attr.Size)
	}
}

func TestTranslateErrorMapsKnownKinds(t *testing.T) {
	if errno := translateError(nil); errno != 0 {
		t.Fatalf("nil error should map to 0, got %v", errno)
	}
	if errno := translateError(kerrors.EntryNotFound); errno != syscall.ENOENT {
		t.Fatalf("EntryNotFound should map to ENOENT, got %v", errno)
	}
	if errno := translateError(kerrors.NotDir); errno != syscall.ENOTDIR {
		t.Fatalf("NotDir should map to ENOTDIR, got %v", errno)
	}
}

func TestModeForCombinesTypeAndPermissionBits(t *testing.T) {
	mode := modeFor(vfs.Directory, 0755)
	if mode&syscall.S_IFMT != syscall.S_IFDIR {
		t.Fatalf("expected S_IFDIR, got %#o", mode&syscall.S_IFMT)
	}
	if mode&0o7777 != 0755 {
		t.Fatalf("expected perm bits 0755, got %#o", mode&0o7777)
	}
}
