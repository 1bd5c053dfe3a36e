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

package kvm

import (
	"errors"
	"sync"
	"testing"

	"github.com/gorquan/rcore/pkg/kerrors"
)

type stubFrames struct{ n uint64 }

func (f *stubFrames) AllocFrame() (uint64, error) { f.n++; return f.n, nil }
func (f *stubFrames) FreeFrame(phys uint64)        {}

type stubMapper struct{ mapped map[uint64]bool }

func newStubMapper() *stubMapper { return &stubMapper{mapped: make(map[uint64]bool)} }

func (m *stubMapper) MapPage(virt, phys uint64, attrs PageAttrs) error {
	m.mapped[virt] = true
	return nil
}

func (m *stubMapper) UnmapPage(virt uint64) error {
	delete(m.mapped, virt)
	return nil
}

type failingMapper struct {
	*stubMapper
	failAfter int
}

func (m *failingMapper) MapPage(virt, phys uint64, attrs PageAttrs) error {
	if m.failAfter == 0 {
		return kerrors.NoMem
	}
	m.failAfter--
	return m.stubMapper.MapPage(virt, phys, attrs)
}

func TestArenaAllocRoundsToPage(t *testing.T) {
	a := NewArena(0x1000, 4*PageSize)
	vs, err := a.Alloc(1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if vs.Size() != PageSize {
		t.Fatalf("Size() = %d, want %d", vs.Size(), PageSize)
	}
	if vs.Base() != 0x1000 {
		t.Fatalf("Base() = %#x, want %#x", vs.Base(), 0x1000)
	}
}

func TestArenaAllocExhaustion(t *testing.T) {
	a := NewArena(0, 2*PageSize)
	if _, err := a.Alloc(2 * PageSize); err != nil {
		t.Fatalf("first Alloc: %v", err)
	}
	if _, err := a.Alloc(PageSize); !errors.Is(err, kerrors.NoMem) {
		t.Fatalf("second Alloc err = %v, want NoMem", err)
	}
}

func TestArenaAllocZeroSize(t *testing.T) {
	a := NewArena(0, PageSize)
	if _, err := a.Alloc(0); !errors.Is(err, kerrors.InvalidParam) {
		t.Fatalf("Alloc(0) err = %v, want InvalidParam", err)
	}
}

func TestArenaFreeAndReuse(t *testing.T) {
	a := NewArena(0, 2*PageSize)
	vs1, err := a.Alloc(PageSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := vs1.Release(1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	vs2, err := a.Alloc(2 * PageSize)
	if err != nil {
		t.Fatalf("Alloc after free did not see the coalesced range: %v", err)
	}
	if vs2.Base() != 0 {
		t.Fatalf("Base() = %#x, want 0", vs2.Base())
	}
}

func TestArenaFreeCoalescesNeighbors(t *testing.T) {
	a := NewArena(0, 3*PageSize)
	vs1, _ := a.Alloc(PageSize)
	vs2, _ := a.Alloc(PageSize)
	vs3, _ := a.Alloc(PageSize)

	vs1.Release(1)
	vs3.Release(1)
	vs2.Release(1)

	vs, err := a.Alloc(3 * PageSize)
	if err != nil {
		t.Fatalf("three freed adjacent ranges did not coalesce into one: %v", err)
	}
	if vs.Base() != 0 {
		t.Fatalf("Base() = %#x, want 0", vs.Base())
	}
}

func TestVirtualSpaceAddAreaMapsEveryPage(t *testing.T) {
	a := NewArena(0, 4*PageSize)
	vs, err := a.Alloc(2 * PageSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	mapper := newStubMapper()
	if err := vs.AddArea(0, 2*PageSize, PageAttrs{Writable: true}, mapper, &stubFrames{}); err != nil {
		t.Fatalf("AddArea: %v", err)
	}
	if len(mapper.mapped) != 2 {
		t.Fatalf("mapped %d pages, want 2", len(mapper.mapped))
	}
	if !mapper.mapped[vs.Base()] || !mapper.mapped[vs.Base()+PageSize] {
		t.Fatalf("expected pages at base and base+PageSize to be mapped")
	}
}

func TestVirtualSpaceAddAreaRollsBackOnFailure(t *testing.T) {
	a := NewArena(0, 4*PageSize)
	vs, err := a.Alloc(3 * PageSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	mapper := &failingMapper{stubMapper: newStubMapper(), failAfter: 1}
	err = vs.AddArea(0, 3*PageSize, PageAttrs{}, mapper, &stubFrames{})
	if err == nil {
		t.Fatalf("expected AddArea to fail on its second page")
	}
	if len(mapper.mapped) != 0 {
		t.Fatalf("a failed AddArea left %d pages mapped, want 0", len(mapper.mapped))
	}
}

func TestVirtualSpaceReleaseIsIdempotent(t *testing.T) {
	a := NewArena(0, PageSize)
	vs, err := a.Alloc(PageSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	mapper := newStubMapper()
	if err := vs.AddArea(0, PageSize, PageAttrs{}, mapper, &stubFrames{}); err != nil {
		t.Fatalf("AddArea: %v", err)
	}
	if err := vs.Release(2); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := vs.Release(2); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if len(mapper.mapped) != 0 {
		t.Fatalf("Release left %d pages mapped", len(mapper.mapped))
	}
	if _, err := a.Alloc(PageSize); err != nil {
		t.Fatalf("Release did not return the range to the arena: %v", err)
	}
}

func TestShootdownFansOutToEveryCPU(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]bool)
	orig := invalidateRange
	invalidateRange = func(cpu int, start, size uint64) error {
		mu.Lock()
		seen[cpu] = true
		mu.Unlock()
		return nil
	}
	defer func() { invalidateRange = orig }()

	if err := shootdown(4, 0, PageSize); err != nil {
		t.Fatalf("shootdown: %v", err)
	}
	if len(seen) != 4 {
		t.Fatalf("shootdown reached %d CPUs, want 4", len(seen))
	}
}
