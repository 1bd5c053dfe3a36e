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

package ramfs

import (
	"context"
	"testing"

	"github.com/gorquan/rcore/pkg/vfs"
)

func TestCreateInitializesNlink(t *testing.T) {
	ctx := context.Background()
	fs := New("test")
	root, err := fs.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	file, err := root.Create(ctx, "f", vfs.Regular, 0644)
	if err != nil {
		t.Fatalf("Create(f): %v", err)
	}
	meta, err := file.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Nlink != 1 {
		t.Fatalf("new regular file Nlink = %d, want 1", meta.Nlink)
	}

	dir, err := root.Create(ctx, "d", vfs.Directory, 0755)
	if err != nil {
		t.Fatalf("Create(d): %v", err)
	}
	meta, err = dir.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Nlink != 2 {
		t.Fatalf("new directory Nlink = %d, want 2", meta.Nlink)
	}
}

func TestRenamePreservesNlink(t *testing.T) {
	ctx := context.Background()
	fs := New("test")
	root, err := fs.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	file, err := root.Create(ctx, "f", vfs.Regular, 0644)
	if err != nil {
		t.Fatalf("Create(f): %v", err)
	}

	if err := root.Rename(ctx, "f", root, "g"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	meta, err := file.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Nlink != 1 {
		t.Fatalf("renamed file Nlink = %d, want 1", meta.Nlink)
	}
}
