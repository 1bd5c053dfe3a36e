// Copyright 2018 The gVisor Authors.
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

package boot

import (
	"context"
	"sync"
	"testing"

	"github.com/gorquan/rcore/pkg/bootconfig"
	"github.com/gorquan/rcore/pkg/devices/memdev"
)

func testConfig() *bootconfig.Config {
	return &bootconfig.Config{
		NCPUs: 4,
		Arena: bootconfig.Region{Start: 0x40000000, Size: 1 << 24},
		Mounts: []bootconfig.Mount{
			{FSType: "ramfs", Source: "tmp", Target: "/tmp"},
		},
	}
}

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	cfg := testConfig()
	root, err := New(context.Background(), Info{LoadBase: 0x100000}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return root
}

func TestNewWiresEverySubsystem(t *testing.T) {
	k := newTestKernel(t)
	if k.Arena == nil || k.Symbols == nil || k.Devices == nil || k.FSTypes == nil || k.Modules == nil {
		t.Fatalf("subsystem left nil: %+v", k)
	}
	if k.Root.IsZero() {
		t.Fatal("root mount node is zero value")
	}
}

func TestNewRegistersMemdevMajor(t *testing.T) {
	k := newTestKernel(t)
	if _, err := k.Devices.Lookup(uint32(memdev.MemMajor)<<8 | memdev.NullMinor); err != nil {
		t.Fatalf("Lookup(null device): %v", err)
	}
}

func TestNewAppliesManifestMounts(t *testing.T) {
	k := newTestKernel(t)
	// /tmp was created as a mount target by the manifest; it must be
	// present under the root and be a directory.
	child, err := k.Root.Inode.Lookup(context.Background(), "tmp")
	if err != nil {
		t.Fatalf("Lookup(tmp): %v", err)
	}
	meta, err := child.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Type.String() != "directory" {
		t.Fatalf("tmp node type = %v, want directory", meta.Type)
	}
}

func TestDoubleInitOfSameStepPanics(t *testing.T) {
	k := &Kernel{}
	if err := k.onceInit("x", func() error { return nil }); err != nil {
		t.Fatalf("first onceInit: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("second onceInit of the same step did not panic")
		}
	}()
	_ = k.onceInit("x", func() error { return nil })
}

func TestReleaseAPsRunsEveryApplicationCPU(t *testing.T) {
	k := newTestKernel(t)
	var mu sync.Mutex
	seen := map[int]bool{}
	err := k.ReleaseAPs(context.Background(), func(ctx context.Context, cpu int) error {
		mu.Lock()
		seen[cpu] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("ReleaseAPs: %v", err)
	}
	if len(seen) != k.NCPUs-1 {
		t.Fatalf("ReleaseAPs reached %d APs, want %d", len(seen), k.NCPUs-1)
	}
	for cpu := 1; cpu < k.NCPUs; cpu++ {
		if !seen[cpu] {
			t.Fatalf("AP %d was never released", cpu)
		}
	}
}

func TestReleaseAPsCalledTwicePanics(t *testing.T) {
	k := newTestKernel(t)
	if err := k.ReleaseAPs(context.Background(), func(context.Context, int) error { return nil }); err != nil {
		t.Fatalf("first ReleaseAPs: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("second ReleaseAPs did not panic")
		}
	}()
	_ = k.ReleaseAPs(context.Background(), func(context.Context, int) error { return nil })
}

func TestInsertModuleRejectsInvalidImage(t *testing.T) {
	k := newTestKernel(t)
	if _, err := k.InsertModule([]byte("not an ELF file")); err == nil {
		t.Fatal("InsertModule succeeded on garbage input, want error")
	}
}
