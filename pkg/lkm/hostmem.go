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

package lkm

import (
	"sync"

	"github.com/gorquan/rcore/pkg/kvm"
)

// activeImages backs every live module's mapped image with an ordinary
// Go byte slice, keyed by the VirtualSpace's arena-assigned base. The
// original loader patches relocations by writing directly through a
// raw `base+offset` pointer into real process memory it just mapped;
// a userspace rendering of this kernel has no business poking
// unsafe.Pointer arithmetic at addresses an arena handed out as mere
// bookkeeping numbers, so every "address" in this package is an index
// into the matching entry here instead of a real pointer.
var activeImages = struct {
	mu     sync.Mutex
	byBase map[uint64][]byte
}{byBase: make(map[uint64][]byte)}

func newImageBuffer(base, size uint64) []byte {
	buf := make([]byte, size)
	activeImages.mu.Lock()
	activeImages.byBase[base] = buf
	activeImages.mu.Unlock()
	return buf
}

func imageBuffer(base uint64) ([]byte, bool) {
	activeImages.mu.Lock()
	defer activeImages.mu.Unlock()
	buf, ok := activeImages.byBase[base]
	return buf, ok
}

func releaseImageBuffer(base uint64) {
	activeImages.mu.Lock()
	delete(activeImages.byBase, base)
	activeImages.mu.Unlock()
}

// hostFrames is the FrameAllocator this package satisfies kvm.VirtualSpace
// with. Physical frames are pure bookkeeping here (backing storage is
// activeImages, not real pages), so this just hands out unique counter
// values.
type hostFrames struct{}

var frameCounter uint64Counter

func (hostFrames) AllocFrame() (uint64, error) {
	return frameCounter.next(), nil
}

func (hostFrames) FreeFrame(phys uint64) {}

type uint64Counter struct {
	mu sync.Mutex
	n  uint64
}

func (c *uint64Counter) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// hostMapper is the PageMapper this package satisfies kvm.VirtualSpace
// with. It does no real mapping; mapSegments copies segment bytes
// directly into the module's activeImages buffer once AddArea has
// recorded the area.
type hostMapper struct{}

func (hostMapper) MapPage(virt, phys uint64, attrs kvm.PageAttrs) error { return nil }
func (hostMapper) UnmapPage(virt uint64) error                         { return nil }
