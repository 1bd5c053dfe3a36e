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

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// infiniteTimeoutMs is spec.md §5's "very large sentinel value (≥ 2^31
// ms)" meaning no deadline at all.
const infiniteTimeoutMs = 1 << 31

// PollEvent is one entry in a poll/ppoll/select set: which readiness a
// caller asked about for Handle, and what the last check found.
type PollEvent struct {
	Handle   *Handle
	Readable bool
	Writable bool

	RReady bool
	WReady bool
	EReady bool
}

// pollOnce checks every event's underlying INode once, without blocking
// (spec.md §5: "poll is always non-blocking"), and returns how many
// events became ready.
func pollOnce(events []*PollEvent) (int, error) {
	ready := 0
	for _, e := range events {
		status, err := e.Handle.poll(context.Background())
		if err != nil {
			return ready, err
		}
		e.RReady = e.Readable && status.Readable
		e.WReady = e.Writable && status.Writable
		e.EReady = status.Error
		if e.RReady || e.WReady || e.EReady {
			ready++
		}
	}
	return ready, nil
}

var errNotReady = errors.New("posix: no event ready yet")

// Poll implements poll/ppoll/select's shared wait loop: it re-checks
// every event's readiness with an exponentially backed-off spin,
// bounded by timeoutMs (spec.md §5's "monotonic clock has advanced past
// the deadline"), returning as soon as any event is ready. timeoutMs == 0
// checks once and returns immediately, matching poll(2)'s "return
// instantly" zero-timeout case rather than backoff's own "0 means no
// limit" convention. A negative or ≥ 2^31 timeoutMs waits indefinitely.
func Poll(events []*PollEvent, timeoutMs int64) (int, error) {
	if timeoutMs == 0 {
		n, err := pollOnce(events)
		if err != nil {
			return 0, err
		}
		return n, nil
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if timeoutMs > 0 && timeoutMs < infiniteTimeoutMs {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Microsecond
	b.MaxInterval = 10 * time.Millisecond
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0 // ctx, not the policy, owns the deadline

	var lastErr error
	op := func() error {
		n, err := pollOnce(events)
		if err != nil {
			lastErr = err
			return nil // stop retrying; a driver error is not "not ready yet"
		}
		if n > 0 {
			return nil
		}
		return errNotReady
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil && !errors.Is(err, errNotReady) {
		return 0, err
	}
	if lastErr != nil {
		return 0, lastErr
	}
	return countReady(events), nil
}

func countReady(events []*PollEvent) int {
	n := 0
	for _, e := range events {
		if e.RReady || e.WReady || e.EReady {
			n++
		}
	}
	return n
}
