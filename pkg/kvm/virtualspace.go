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
	"sync"

	"golang.org/x/sync/errgroup"
)

// VirtualArea is one mapped sub-range of a VirtualSpace, carrying the page
// attributes it was mapped with.
type VirtualArea struct {
	Start, End uint64
	Attrs      PageAttrs
}

// VirtualSpace is a scoped handle over one Arena allocation (spec.md
// §3/§4.A). Adding an area maps every page in it through the caller's
// FrameAllocator and PageMapper; Release unmaps every area on every exit
// path and returns the range to the arena, then issues a cross-CPU TLB
// shootdown for the unmapped range.
type VirtualSpace struct {
	arena *Arena
	base  uint64
	size  uint64

	mu       sync.Mutex
	areas    []VirtualArea
	mapper   PageMapper
	frames   FrameAllocator
	released bool
}

// Base is the start of this allocation within the arena's region.
func (vs *VirtualSpace) Base() uint64 { return vs.base }

// Size is this allocation's page-rounded byte length.
func (vs *VirtualSpace) Size() uint64 { return vs.size }

// AddArea maps [vs.Base()+offset, vs.Base()+offset+length) with attrs,
// allocating one physical frame per page from frames and installing the
// mapping through mapper. On any failure partway through, the pages
// already mapped in this call are unmapped and freed before returning, so
// a partially-applied segment never becomes part of the VirtualSpace.
func (vs *VirtualSpace) AddArea(offset, length uint64, attrs PageAttrs, mapper PageMapper, frames FrameAllocator) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	start := vs.base + offset
	end := start + roundUp(length, PageSize)

	mapped := make([]uint64, 0, (end-start)/PageSize)
	physOf := make([]uint64, 0, (end-start)/PageSize)
	rollback := func() {
		for i, va := range mapped {
			mapper.UnmapPage(va)
			frames.FreeFrame(physOf[i])
		}
	}
	for va := start; va < end; va += PageSize {
		phys, err := frames.AllocFrame()
		if err != nil {
			rollback()
			return err
		}
		if err := mapper.MapPage(va, phys, attrs); err != nil {
			frames.FreeFrame(phys)
			rollback()
			return err
		}
		mapped = append(mapped, va)
		physOf = append(physOf, phys)
	}

	vs.mapper = mapper
	vs.frames = frames
	vs.areas = append(vs.areas, VirtualArea{Start: start, End: end, Attrs: attrs})
	return nil
}

// Release unmaps every mapped page on every area, returns the range to the
// owning arena, and issues a TLB shootdown across ncpus CPUs for the
// unmapped range. Safe to call more than once; only the first call does
// work. Always called on a failed module load so the loader never leaves
// mapped pages behind (spec.md §7).
func (vs *VirtualSpace) Release(ncpus int) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.released {
		return nil
	}
	vs.released = true

	for _, area := range vs.areas {
		for va := area.Start; va < area.End; va += PageSize {
			if vs.mapper != nil {
				vs.mapper.UnmapPage(va)
			}
		}
	}
	vs.areas = nil
	vs.arena.free_(vs.base, vs.size)
	return shootdown(ncpus, vs.base, vs.size)
}

// shootdown fans out a TLB invalidation to ncpus CPUs concurrently. In
// this userspace kernel there is no real cross-CPU IPI to send; the fan-out
// exists so pkg/boot's multi-CPU bring-up has a genuine consumer to notify,
// matching spec.md §4.A's "a cross-CPU TLB-shootdown is issued for the
// unmapped range."
func shootdown(ncpus int, start, size uint64) error {
	if ncpus <= 0 {
		ncpus = 1
	}
	var g errgroup.Group
	for cpu := 0; cpu < ncpus; cpu++ {
		cpu := cpu
		g.Go(func() error {
			return invalidateRange(cpu, start, size)
		})
	}
	return g.Wait()
}

// invalidateRange is the per-CPU half of shootdown; overridable by tests.
var invalidateRange = func(cpu int, start, size uint64) error {
	return nil
}
