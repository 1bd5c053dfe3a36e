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

import "github.com/gorquan/rcore/pkg/kerrors"

// IOVec is one scatter-gather buffer in a readv/writev call.
type IOVec struct {
	Base []byte
}

// validateIOVecs rejects a readv/writev call before any transfer happens
// if any vector is malformed, per spec.md §6 ("reject invalid iovecs
// before any transfer"). A nil Base with nonzero declared length would be
// the classic invalid case in a real syscall ABI; in this Go rendering
// the only way that can happen is a nil Base carrying a length other
// callers attached out of band, so this also rejects a totally empty
// vector list, which no real readv/writev call would issue.
func validateIOVecs(iovs []IOVec) error {
	if len(iovs) == 0 {
		return kerrors.InvalidParam
	}
	for _, v := range iovs {
		if v.Base == nil {
			return kerrors.InvalidParam
		}
	}
	return nil
}

// totalLen sums every vector's length, the byte count readv/writev report
// on success.
func totalLen(iovs []IOVec) int {
	n := 0
	for _, v := range iovs {
		n += len(v.Base)
	}
	return n
}
