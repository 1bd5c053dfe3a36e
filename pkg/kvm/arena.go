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

// Package kvm is spec.md §4.A's Kernel-VM Arena: it hands out page-aligned
// ranges inside a reserved high-half region for module images and other
// in-kernel allocations that need a stable virtual address. The frame
// allocator and page-table primitives that back a VirtualSpace's mappings
// are out of this spec's scope (spec.md §1); FrameAllocator and
// PageMapper below are the interfaces this package requires of them.
package kvm

import (
	"sync"

	"github.com/google/btree"

	"github.com/gorquan/rcore/pkg/kerrors"
)

// PageSize is the page granularity every allocation is rounded to.
const PageSize = 4096

// FrameAllocator is the out-of-scope physical frame allocator collaborator
// (spec.md §1): it hands out a physical page and takes one back.
type FrameAllocator interface {
	AllocFrame() (phys uint64, err error)
	FreeFrame(phys uint64)
}

// PageMapper is the out-of-scope page-table-primitives collaborator: it
// installs or removes one page-table entry.
type PageMapper interface {
	MapPage(virt, phys uint64, attrs PageAttrs) error
	UnmapPage(virt uint64) error
}

// PageAttrs are the permission bits a VirtualArea maps its pages with.
type PageAttrs struct {
	Writable   bool
	Executable bool
}

// freeRange is a half-open [Start, End) range of free bytes, ordered by
// Start so the btree gives us an address-ordered free list that Alloc
// scans linearly for a first fit, with easy neighbor lookups for
// coalescing.
type freeRange struct {
	Start, End uint64
}

func (r freeRange) Less(than btree.Item) bool {
	return r.Start < than.(freeRange).Start
}

func roundUp(size, align uint64) uint64 {
	return (size + align - 1) &^ (align - 1)
}

// Arena hands out non-overlapping page-aligned ranges inside [base,
// base+size). The free-range tree gives a bump-style allocator buddy-like
// reuse without buddy-sized bucket rounding: any implementation is
// acceptable to spec.md §4.A provided it never double-allocates.
type Arena struct {
	base, size uint64

	mu   sync.Mutex
	free *btree.BTree
}

// NewArena reserves [base, base+size) for Alloc to carve ranges from. size
// must already be page-aligned; spec.md §4.A requires size >= 512 GiB for
// the real kernel-VM region, but tests use far smaller arenas.
func NewArena(base, size uint64) *Arena {
	a := &Arena{base: base, size: size, free: btree.New(32)}
	a.free.ReplaceOrInsert(freeRange{Start: base, End: base + size})
	return a
}

// Alloc returns a VirtualSpace covering ceil(size/PageSize) pages, or
// NoMem if the arena has no range large enough.
func (a *Arena) Alloc(size uint64) (*VirtualSpace, error) {
	if size == 0 {
		return nil, kerrors.InvalidParam
	}
	need := roundUp(size, PageSize)

	a.mu.Lock()
	defer a.mu.Unlock()

	var found *freeRange
	a.free.Ascend(func(item btree.Item) bool {
		r := item.(freeRange)
		if r.End-r.Start >= need {
			f := r
			found = &f
			return false
		}
		return true
	})
	if found == nil {
		return nil, kerrors.NoMem
	}
	a.free.Delete(*found)
	allocStart := found.Start
	if leftover := found.End - (allocStart + need); leftover > 0 {
		a.free.ReplaceOrInsert(freeRange{Start: allocStart + need, End: found.End})
	}

	return &VirtualSpace{arena: a, base: allocStart, size: need}, nil
}

// free_ returns [start, start+size) to the arena, coalescing with
// adjacent free ranges so long-running loaders don't fragment the arena
// into unusably small holes.
func (a *Arena) free_(start, size uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := freeRange{Start: start, End: start + size}

	// Merge with the range ending exactly at r.Start, if any.
	a.free.DescendLessOrEqual(freeRange{Start: r.Start}, func(item btree.Item) bool {
		cand := item.(freeRange)
		if cand.End == r.Start {
			a.free.Delete(cand)
			r.Start = cand.Start
		}
		return false
	})
	// Merge with the range starting exactly at r.End, if any.
	a.free.AscendGreaterOrEqual(freeRange{Start: r.End}, func(item btree.Item) bool {
		cand := item.(freeRange)
		if cand.Start == r.End {
			a.free.Delete(cand)
			r.End = cand.End
		}
		return false
	})

	a.free.ReplaceOrInsert(r)
}
