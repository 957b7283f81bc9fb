// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by tests: bounded channel
// receives so a broken synchronization path fails the test instead of
// hanging it, and unique identifier generation for fixtures.
package testutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

// failer is the subset of *testing.T these helpers need.
type failer interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test. Use this instead of a bare channel receive so a test that
// never gets its value reports a failure rather than hanging.
func RequireReceive[T any](t failer, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a value: %s", msg)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, msg)
	}
	panic("unreachable")
}

// RequireNoReceive asserts that nothing arrives on ch within wait.
// Used to verify that suppressed deliveries (duplicate order results,
// late responses for cancelled orders) do not reach a waiter.
func RequireNoReceive[T any](t failer, ch <-chan T, wait time.Duration, msg string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v: %s", v, msg)
	case <-time.After(wait):
	}
}

// RequireClosed waits for ch to close (or yield a value) within
// timeout, or fails the test.
func RequireClosed(t failer, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for close: %s", timeout, msg)
	}
}

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with a process-wide increasing N, for
// tests that need distinguishable correlation ids or topic names.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
