// Copyright 2021 The gVisor Authors.
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

// Package atomicbitops gives the counters used for module-use-count
// bookkeeping (pkg/refs) and ramfs inode-id allocation a named type instead of
// a bare uint32, so that "this field is only ever touched atomically" is
// visible at the declaration site.
package atomicbitops

import "sync/atomic"

// Uint32 is a uint32 that must only be accessed atomically.
type Uint32 struct {
	v uint32
}

func (u *Uint32) Load() uint32          { return atomic.LoadUint32(&u.v) }
func (u *Uint32) Store(val uint32)      { atomic.StoreUint32(&u.v, val) }
func (u *Uint32) Add(delta uint32) uint32 { return atomic.AddUint32(&u.v, delta) }
func (u *Uint32) Sub(delta uint32) uint32 { return atomic.AddUint32(&u.v, ^(delta - 1)) }
func (u *Uint32) CompareAndSwap(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&u.v, old, new)
}

// Uint64 is the 64-bit counterpart, used for inode-id allocation.
type Uint64 struct {
	v uint64
}

func (u *Uint64) Load() uint64            { return atomic.LoadUint64(&u.v) }
func (u *Uint64) Store(val uint64)        { atomic.StoreUint64(&u.v, val) }
func (u *Uint64) Add(delta uint64) uint64 { return atomic.AddUint64(&u.v, delta) }
