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

import "context"

// copyChunkSize bounds one read/write round trip inside SendFile and
// CopyFileRange, so a huge count argument cannot force an unbounded
// single allocation.
const copyChunkSize = 64 * 1024

// readChunk reads through offset when it is a caller-supplied *int64
// (read-modify-write, per spec.md §6: "non-null offset pointers are
// read-modify-write") and through the handle's own position when it is
// nil.
func readChunk(ctx context.Context, h *Handle, offset *int64, buf []byte) (int, error) {
	if offset == nil {
		return h.Read(ctx, buf)
	}
	n, err := h.Pread(ctx, buf, *offset)
	*offset += int64(n)
	return n, err
}

func writeChunk(ctx context.Context, h *Handle, offset *int64, buf []byte) (int, error) {
	if offset == nil {
		return h.Write(ctx, buf)
	}
	n, err := h.Pwrite(ctx, buf, *offset)
	*offset += int64(n)
	return n, err
}

// copyLoop is SendFile and CopyFileRange's shared bounded copy: it reads
// and writes in copyChunkSize pieces until count bytes have moved, the
// source is exhausted, or an error occurs.
func copyLoop(ctx context.Context, dst, src *Handle, inOffset, outOffset *int64, count int) (int, error) {
	buf := make([]byte, copyChunkSize)
	moved := 0
	for moved < count {
		want := count - moved
		if want > len(buf) {
			want = len(buf)
		}
		n, err := readChunk(ctx, src, inOffset, buf[:want])
		if n > 0 {
			wn, werr := writeChunk(ctx, dst, outOffset, buf[:n])
			moved += wn
			if werr != nil {
				return moved, werr
			}
			if wn < n {
				return moved, nil
			}
		}
		if err != nil {
			if n == 0 {
				return moved, nil
			}
			return moved, err
		}
		if n == 0 {
			break
		}
	}
	return moved, nil
}

// SendFile copies up to count bytes from src to dst. A nil inOffset/
// outOffset reads/writes through the handle's own position; a non-nil
// one is advanced in place.
func SendFile(ctx context.Context, dst, src *Handle, inOffset *int64, count int) (int, error) {
	return copyLoop(ctx, dst, src, inOffset, nil, count)
}

// CopyFileRange copies up to count bytes from src to dst, each side with
// its own independently-advanced offset pointer.
func CopyFileRange(ctx context.Context, dst, src *Handle, inOffset, outOffset *int64, count int) (int, error) {
	return copyLoop(ctx, dst, src, inOffset, outOffset, count)
}
