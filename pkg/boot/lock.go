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
	"fmt"

	"github.com/gofrs/flock"
)

// InstanceLock guards against two kernelctl boot invocations racing over
// the same arena/device state on one host. It is an ordinary advisory
// file lock, not a kernel construct — multiple real kernels cannot
// share one machine's memory, but nothing stops two of this userspace
// rendering from starting up against the same boot manifest by mistake.
type InstanceLock struct {
	fl *flock.Flock
}

// AcquireInstanceLock takes an exclusive, non-blocking lock on path,
// failing immediately if another instance already holds it rather than
// queuing behind it.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("boot: acquiring instance lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("boot: instance lock %s is held by another process", path)
	}
	return &InstanceLock{fl: fl}, nil
}

// Release drops the lock.
func (l *InstanceLock) Release() error {
	return l.fl.Unlock()
}
