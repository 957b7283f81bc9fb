// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package state holds the process-wide snapshot of the cell: a
// concurrent last-value cache of envelopes keyed by entity identity,
// plus the order records the correlation tracker mirrors in for query
// purposes.
//
// Writes are last-write-wins on Envelope.ReceivedAt. A write older
// than the stored value is rejected rather than applied, which guards
// against out-of-order delivery across reconnects and retained-message
// replay. Entries are never deleted — the physical cell has a finite
// identity space — and the store itself is constructed once at process
// start and passed by reference to the listener, tracker, and facade.
//
// Lock discipline: a single RWMutex guards the maps, held only for the
// map operation itself. Nothing in this package performs I/O or blocks
// while holding it; the optional snapshot file copies the contents
// under the read lock and encodes after releasing it.
package state
