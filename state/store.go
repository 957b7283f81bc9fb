// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warecell-foundation/warecell/wire"
)

// Category partitions the store by entity family. Keys are only
// meaningful within a category: box ids, module namespaces, region
// indices, log topics.
type Category string

const (
	// Boxes holds per-box envelopes keyed by box id.
	Boxes Category = "boxes"
	// Fiducials holds per-marker envelopes keyed by marker id.
	Fiducials Category = "fiducials"
	// Modules holds per-module envelopes keyed by namespace.
	Modules Category = "modules"
	// Regions holds layout regions keyed by index in the broadcast.
	Regions Category = "regions"
	// Master holds the master heartbeat under a single fixed key.
	Master Category = "master"
	// Logs holds master log lines and transport responses keyed by
	// their full topic.
	Logs Category = "logs"
)

// MasterKey is the single key used within the Master category.
const MasterKey = "master"

// OrderState is the lifecycle state of a tracked order. Pending is
// the only non-terminal state; no transition leaves a terminal state.
type OrderState string

const (
	OrderPending   OrderState = "pending"
	OrderCompleted OrderState = "completed"
	OrderFailed    OrderState = "failed"
	OrderCancelled OrderState = "cancelled"
	OrderTimedOut  OrderState = "timed_out"
)

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool { return s != "" && s != OrderPending }

// OrderRecord is the queryable view of one order: its state, the
// envelope that decided it (or a synthesized one for cancellations and
// timeouts), and when the order was dispatched.
type OrderRecord struct {
	CorrelationID string
	State         OrderState
	Envelope      wire.Envelope
	CreatedAt     time.Time
}

// Store is the concurrent snapshot of the cell. The zero value is not
// usable; construct with New.
type Store struct {
	mu        sync.RWMutex
	entries   map[Category]map[string]wire.Envelope
	orders    map[string]OrderRecord
	lastOrder OrderRecord
	hasLast   bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[Category]map[string]wire.Envelope),
		orders:  make(map[string]OrderRecord),
	}
}

// Put stores env under (category, key) unless an envelope with a later
// ReceivedAt is already present. Returns false when the write was
// rejected as stale. Equal timestamps overwrite, so a reprocessed
// message converges on the same value.
func (s *Store) Put(category Category, key string, env wire.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.entries[category]
	if bucket == nil {
		bucket = make(map[string]wire.Envelope)
		s.entries[category] = bucket
	}
	if current, ok := bucket[key]; ok && current.ReceivedAt.After(env.ReceivedAt) {
		return false
	}
	bucket[key] = env
	return true
}

// Get returns the current envelope for (category, key).
func (s *Store) Get(category Category, key string) (wire.Envelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.entries[category][key]
	return env, ok
}

// List returns every envelope in a category in deterministic key
// order. Numeric keys compare as numbers so box "10" follows box "9";
// tool output over the facade is reproducible run to run.
func (s *Store) List(category Category) []wire.Envelope {
	type pair struct {
		key string
		env wire.Envelope
	}

	s.mu.RLock()
	bucket := s.entries[category]
	pairs := make([]pair, 0, len(bucket))
	for key, env := range bucket {
		pairs = append(pairs, pair{key, env})
	}
	s.mu.RUnlock()

	slices.SortFunc(pairs, func(a, b pair) int { return compareKeys(a.key, b.key) })

	out := make([]wire.Envelope, len(pairs))
	for i, p := range pairs {
		out[i] = p.env
	}
	return out
}

// compareKeys orders two store keys, comparing numerically when both
// parse as integers.
func compareKeys(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// PutOrder stores an order record under its correlation id. A record
// that is locally Cancelled is frozen: the bus has no ordering
// guarantee between a cancel and an in-flight result, and an
// operator-intended cancellation must not be overwritten by a
// straggling success. Returns false when the write was refused.
func (s *Store) PutOrder(record OrderRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.orders[record.CorrelationID]; ok {
		if current.State == OrderCancelled && record.State != OrderCancelled {
			return false
		}
	}
	s.orders[record.CorrelationID] = record
	return true
}

// Order returns the record for a correlation id.
func (s *Store) Order(correlationID string) (OrderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.orders[correlationID]
	return record, ok
}

// Orders returns every order record, newest first by the deciding
// envelope's receipt time.
func (s *Store) Orders() []OrderRecord {
	s.mu.RLock()
	out := make([]OrderRecord, 0, len(s.orders))
	for _, record := range s.orders {
		out = append(out, record)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b OrderRecord) int {
		if c := b.Envelope.ReceivedAt.Compare(a.Envelope.ReceivedAt); c != 0 {
			return c
		}
		return strings.Compare(a.CorrelationID, b.CorrelationID)
	})
	return out
}

// SetLastOrder overwrites the single most-recently-resolved-order
// slot. Called by the tracker on every terminal resolution.
func (s *Store) SetLastOrder(record OrderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOrder = record
	s.hasLast = true
}

// LastOrder returns the most recently resolved order, if any order has
// resolved this process lifetime.
func (s *Store) LastOrder() (OrderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastOrder, s.hasLast
}
