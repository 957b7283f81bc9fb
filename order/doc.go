// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package order correlates transport orders dispatched on the cell bus
// with the asynchronous results the master publishes for them.
//
// The Tracker owns the full order lifecycle. Trigger publishes an
// order request stamped with a fresh correlation id and blocks until
// the matching result arrives, the order's deadline passes, or the
// caller's context ends. Every order resolves exactly once, into one
// of the terminal states Completed, Failed, Cancelled, or TimedOut;
// anything arriving for an already-resolved order is counted and
// discarded.
//
// Cancellation is optimistic and local-first: Cancel marks the order
// Cancelled immediately and only then publishes a best-effort cancel
// command. A result that loses the race against a local cancellation
// never resurrects the order.
package order
