// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/warecell-foundation/warecell/bus"
	"github.com/warecell-foundation/warecell/lib/clock"
	"github.com/warecell-foundation/warecell/state"
	"github.com/warecell-foundation/warecell/wire"
)

const (
	// DefaultTimeout bounds how long Trigger waits for a result before
	// resolving the order TimedOut.
	DefaultTimeout = 60 * time.Second

	// DefaultSenderID identifies this process in order-family headers.
	DefaultSenderID = "OrderGenerator"
)

// ErrNothingToCancel is returned by Cancel when the correlation id is
// unknown or the order already reached a terminal state.
var ErrNothingToCancel = errors.New("order: nothing to cancel")

// Command describes one transport order: move CargoBox from
// StartingModule to Goal.
type Command struct {
	StartingModule wire.ModulePose
	Goal           wire.ModulePose
	CargoBox       wire.Box
}

// Config configures a Tracker. Conn and Store are required; everything
// else has a sensible default.
type Config struct {
	Conn  bus.Conn
	Store *state.Store

	// Clock drives deadlines and header timestamps. Nil means the
	// real clock.
	Clock clock.Clock

	// Timeout is the per-order resolution deadline. Zero means
	// DefaultTimeout; Trigger never waits unbounded.
	Timeout time.Duration

	// SenderID is stamped into outgoing headers. Empty means
	// DefaultSenderID.
	SenderID string

	// RequestTopic and CancelTopic override the publish topics, for
	// tests and nonstandard cells.
	RequestTopic string
	CancelTopic  string

	Logger *slog.Logger
}

// entry is the in-flight bookkeeping for one dispatched order. The
// state field is the exactly-once guard: whichever path flips it off
// Pending owns the resolution and sends the final record on done.
type entry struct {
	state     state.OrderState
	createdAt time.Time
	done      chan state.OrderRecord
}

// Tracker dispatches transport orders and resolves them against
// results delivered from the bus. It implements bus.OrderSink.
type Tracker struct {
	conn         bus.Conn
	store        *state.Store
	clock        clock.Clock
	logger       *slog.Logger
	timeout      time.Duration
	senderID     string
	requestTopic string
	cancelTopic  string

	mu     sync.Mutex
	orders map[string]*entry

	duplicates atomic.Uint64
	foreign    atomic.Uint64
	cancelAcks atomic.Uint64
}

// NewTracker validates cfg and returns a ready Tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("order: config missing bus connection")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("order: config missing state store")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SenderID == "" {
		cfg.SenderID = DefaultSenderID
	}
	if cfg.RequestTopic == "" {
		cfg.RequestTopic = wire.TopicOrderRequest
	}
	if cfg.CancelTopic == "" {
		cfg.CancelTopic = wire.TopicOrderCancel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{
		conn:         cfg.Conn,
		store:        cfg.Store,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		timeout:      cfg.Timeout,
		senderID:     cfg.SenderID,
		requestTopic: cfg.RequestTopic,
		cancelTopic:  cfg.CancelTopic,
		orders:       make(map[string]*entry),
	}, nil
}

// Trigger publishes cmd as an order request and blocks until the order
// resolves. The returned record is terminal: Completed or Failed from
// a bus result, TimedOut when the deadline passes first, or Cancelled
// when ctx ends or a concurrent Cancel wins. A non-nil error means the
// wait was cut short (dispatch failure or ctx); the record still
// reflects the order's final state.
func (t *Tracker) Trigger(ctx context.Context, cmd Command) (state.OrderRecord, error) {
	id := uuid.NewString()
	now := t.clock.Now()

	req := wire.OrderRequest{
		Header: wire.Header{
			Timestamp:     unixSeconds(now),
			SenderID:      t.senderID,
			CorrelationID: id,
		},
		StartingModule: cmd.StartingModule,
		Goal:           cmd.Goal,
		CargoBox:       cmd.CargoBox,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return state.OrderRecord{}, fmt.Errorf("order: encoding request: %w", err)
	}

	t.mu.Lock()
	if _, exists := t.orders[id]; exists {
		t.mu.Unlock()
		panic("order: correlation id collision")
	}
	e := &entry{
		state:     state.OrderPending,
		createdAt: now,
		done:      make(chan state.OrderRecord, 1),
	}
	t.orders[id] = e
	t.mu.Unlock()

	t.store.PutOrder(state.OrderRecord{
		CorrelationID: id,
		State:         state.OrderPending,
		Envelope: wire.Envelope{
			Topic:      t.requestTopic,
			Kind:       wire.KindOrderRequest,
			Payload:    req,
			ReceivedAt: now,
		},
		CreatedAt: now,
	})

	if err := t.conn.Publish(ctx, t.requestTopic, bus.QoSOrder, false, payload); err != nil {
		t.resolveLocal(id, state.OrderFailed, "dispatch failed")
		return <-e.done, fmt.Errorf("order: publishing request: %w", err)
	}
	t.logger.Info("order dispatched",
		"correlation_id", id,
		"timeout", t.timeout)

	select {
	case record := <-e.done:
		return record, nil
	case <-t.clock.After(t.timeout):
		t.resolveLocal(id, state.OrderTimedOut, "timeout")
		return <-e.done, nil
	case <-ctx.Done():
		// Best-effort cancel; a concurrent resolution makes this a
		// no-op and the record below reflects whoever won.
		if _, err := t.Cancel(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, ErrNothingToCancel) {
			t.logger.Warn("cancel after context end failed",
				"correlation_id", id,
				"error", err)
		}
		return <-e.done, ctx.Err()
	}
}

// Cancel resolves a pending order as Cancelled and publishes a cancel
// command for it. The local transition is authoritative: it happens
// before the publish, and succeeds even when the publish does not.
// Terminal or unknown orders return ErrNothingToCancel.
func (t *Tracker) Cancel(ctx context.Context, correlationID string) (state.OrderRecord, error) {
	record, ok := t.resolveLocal(correlationID, state.OrderCancelled, "cancelled")
	if !ok {
		return state.OrderRecord{}, ErrNothingToCancel
	}

	cmd := wire.OrderCancel{
		Header: wire.Header{
			Timestamp:     unixSeconds(t.clock.Now()),
			SenderID:      t.senderID,
			CorrelationID: correlationID,
		},
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return record, fmt.Errorf("order: encoding cancel: %w", err)
	}
	if err := t.conn.Publish(ctx, t.cancelTopic, bus.QoSOrder, false, payload); err != nil {
		t.logger.Warn("cancel command not delivered",
			"correlation_id", correlationID,
			"error", err)
	}
	t.logger.Info("order cancelled", "correlation_id", correlationID)
	return record, nil
}

// Deliver consumes one order result envelope from the bus. Results for
// a pending local order resolve it; results for an already-terminal
// local order are duplicates and are discarded; results for orders
// this process never dispatched are recorded as observed foreign
// traffic.
func (t *Tracker) Deliver(env wire.Envelope) {
	result, ok := env.Payload.(wire.OrderResult)
	if !ok {
		t.logger.Debug("ignoring non-result delivery", "topic", env.Topic)
		return
	}
	id := result.Header.CorrelationID
	st := state.OrderCompleted
	if !result.Success {
		st = state.OrderFailed
	}

	t.mu.Lock()
	e, tracked := t.orders[id]
	if tracked {
		if e.state.Terminal() {
			t.mu.Unlock()
			t.duplicates.Add(1)
			t.logger.Debug("discarding result for resolved order",
				"correlation_id", id,
				"result_success", result.Success)
			return
		}
		e.state = st
		t.mu.Unlock()

		record := state.OrderRecord{
			CorrelationID: id,
			State:         st,
			Envelope:      env,
			CreatedAt:     e.createdAt,
		}
		t.store.PutOrder(record)
		t.store.SetLastOrder(record)
		t.logger.Info("order resolved",
			"correlation_id", id,
			"state", st,
			"info", result.Info)
		e.done <- record
		return
	}
	t.mu.Unlock()

	record := state.OrderRecord{
		CorrelationID: id,
		State:         st,
		Envelope:      env,
		CreatedAt:     env.ReceivedAt,
	}
	if !t.store.PutOrder(record) {
		t.duplicates.Add(1)
		return
	}
	t.store.SetLastOrder(record)
	t.foreign.Add(1)
	t.logger.Debug("recorded foreign order result",
		"correlation_id", id,
		"state", st)
}

// DeliverCancelAck consumes a cancel acknowledgement. Acks carry no
// state transition (cancellation already settled locally) so they are
// only counted.
func (t *Tracker) DeliverCancelAck(env wire.Envelope) {
	ack, ok := env.Payload.(wire.OrderCancelAck)
	if !ok {
		return
	}
	t.cancelAcks.Add(1)
	t.logger.Debug("cancel acknowledged",
		"correlation_id", ack.Header.CorrelationID)
}

// resolveLocal flips a pending order to the given terminal state with
// a synthesized result envelope. It reports false when the order is
// unknown or already terminal, in which case nothing changes.
func (t *Tracker) resolveLocal(id string, st state.OrderState, info string) (state.OrderRecord, bool) {
	t.mu.Lock()
	e, ok := t.orders[id]
	if !ok || e.state.Terminal() {
		t.mu.Unlock()
		return state.OrderRecord{}, false
	}
	e.state = st
	t.mu.Unlock()

	now := t.clock.Now()
	result := wire.OrderResult{
		Header: wire.Header{
			Timestamp:     unixSeconds(now),
			SenderID:      t.senderID,
			CorrelationID: id,
		},
		Success: false,
		Info:    info,
	}
	record := state.OrderRecord{
		CorrelationID: id,
		State:         st,
		Envelope: wire.Envelope{
			Topic:      wire.TopicOrderResponse + "/" + id,
			Kind:       wire.KindOrderResult,
			Payload:    result,
			ReceivedAt: now,
		},
		CreatedAt: e.createdAt,
	}
	t.store.PutOrder(record)
	t.store.SetLastOrder(record)
	e.done <- record
	return record, true
}

// Stats is a point-in-time snapshot of the tracker's counters.
type Stats struct {
	// Duplicates counts results discarded because their order was
	// already terminal.
	Duplicates uint64

	// Foreign counts results recorded for orders dispatched by some
	// other bus client.
	Foreign uint64

	// CancelAcks counts acknowledged cancel commands.
	CancelAcks uint64
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Duplicates: t.duplicates.Load(),
		Foreign:    t.foreign.Load(),
		CancelAcks: t.cancelAcks.Load(),
	}
}

func unixSeconds(at time.Time) float64 {
	return float64(at.UnixNano()) / float64(time.Second)
}
