// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called, which fires every pending After, Sleep, and
// ticker waiter whose deadline falls within the advance, in deadline
// order.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	f := &FakeClock{now: initial}
	f.changed = sync.NewCond(&f.mu)
	return f
}

// FakeClock is a deterministic Clock for tests. Goroutines that call
// After, Sleep, or NewTicker register a waiter; WaitForTimers lets the
// test block until those registrations have happened before advancing,
// removing the race between "goroutine reaches its select" and "test
// moves time forward".
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
	period   time.Duration // non-zero for tickers; reschedules on fire
	stopped  bool
}

// Now returns the frozen current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a one-shot waiter due at now+d. If d <= 0 the
// returned channel receives immediately.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, &waiter{deadline: f.now.Add(d), ch: ch})
	f.changed.Broadcast()
	return ch
}

// NewTicker registers a periodic waiter. Panics if d <= 0, matching
// time.NewTicker.
func (f *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{deadline: f.now.Add(d), ch: ch, period: d}
	f.waiters = append(f.waiters, w)
	f.changed.Broadcast()

	return &Ticker{
		C: ch,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks until the clock advances past now+d.
func (f *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-f.After(d)
}

// Advance moves the clock forward by d. Expired waiters fire in
// deadline order; tickers reschedule and may fire once per elapsed
// period. Channel sends are non-blocking, so an unread tick is
// dropped rather than deadlocking the test.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	target := f.now
	f.mu.Unlock()

	for {
		due := f.takeExpired(target)
		if len(due) == 0 {
			return
		}
		slices.SortFunc(due, func(a, b *waiter) int {
			return a.deadline.Compare(b.deadline)
		})
		for _, w := range due {
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

// takeExpired removes waiters due at or before target from the pending
// list, rescheduling tickers for their next period.
func (f *FakeClock) takeExpired(target time.Time) []*waiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due, keep []*waiter
	for _, w := range f.waiters {
		switch {
		case w.stopped:
		case w.deadline.After(target):
			keep = append(keep, w)
		default:
			due = append(due, w)
			if w.period > 0 {
				w.deadline = w.deadline.Add(w.period)
				keep = append(keep, w)
			}
		}
	}
	f.waiters = keep
	return due
}

// WaitForTimers blocks until at least n waiters are pending. Call
// this after starting the goroutine under test and before Advance.
func (f *FakeClock) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.changed.Wait()
	}
}

// PendingCount returns the number of active pending waiters.
func (f *FakeClock) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

func (f *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range f.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
