// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package cell is the synchronous query and command surface over the
// live cell snapshot and the order tracker. It is what an agent or
// tool layer calls: box and module lookups, layout queries, order
// dispatch and cancellation, and failure diagnosis.
//
// Queries read the snapshot store only and never block on the bus.
// "Not found" is a distinct outcome, reported as ErrNotFound, so
// callers can tell an empty cell from a broken one.
package cell
