// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so that
// timestamp assignment and timeout handling can be tested
// deterministically. Production code accepts a Clock and is wired with
// Real(); tests wire Fake() and drive time with Advance.
package clock

import "time"

// Clock abstracts the parts of the time package this project uses.
// Anything that assigns receipt timestamps, waits on a deadline, or
// runs on an interval takes a Clock instead of calling the time
// package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Stop releases the underlying
// timer; it does not close C.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No ticks are delivered after Stop
// returns.
func (t *Ticker) Stop() { t.stop() }
