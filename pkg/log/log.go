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

// Package log is the kernel's dmesg-style logging facility. It exposes the
// leveled, printf-style surface the rest of this module calls into, backed
// by logrus and a bounded ring buffer so "dmesg" can replay recent lines.
package log

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ringSize bounds how many formatted lines "dmesg" can replay.
const ringSize = 1024

var (
	mu     sync.Mutex
	ring   [ringSize]string
	next   int
	filled bool
	base   = logrus.New()
)

func init() {
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func record(line string) {
	mu.Lock()
	ring[next] = line
	next = (next + 1) % ringSize
	if next == 0 {
		filled = true
	}
	mu.Unlock()
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	record(line)
	base.Debug(line)
}

// Infof logs at info level.
func Infof(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	record(line)
	base.Info(line)
}

// Warningf logs at warning level.
func Warningf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	record(line)
	base.Warn(line)
}

// Infof-but-fatal: the boot sequencer uses this for violated invariants
// (double-init, a second ReleaseAPs) that should never be reachable by
// caller input.
func Panicf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	record(line)
	base.Panic(line)
}

// SetLevel adjusts verbosity: debug true enables Debugf output.
func SetLevel(debug bool) {
	if debug {
		base.SetLevel(logrus.DebugLevel)
		return
	}
	base.SetLevel(logrus.InfoLevel)
}

// Dmesg returns the ring buffer's contents in chronological order, the way
// `dmesg` replays the kernel log.
func Dmesg() []string {
	mu.Lock()
	defer mu.Unlock()
	if !filled {
		out := make([]string, next)
		copy(out, ring[:next])
		return out
	}
	out := make([]string, ringSize)
	copy(out, ring[next:])
	copy(out[ringSize-next:], ring[:next])
	return out
}
