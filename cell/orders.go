// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package cell

import (
	"context"
	"errors"
	"fmt"

	"github.com/warecell-foundation/warecell/order"
	"github.com/warecell-foundation/warecell/state"
	"github.com/warecell-foundation/warecell/wire"
)

// defaultCargoBox stands in when the requested box is not in the
// snapshot: the order still carries a plausible cargo descriptor so
// the master can validate against what it finds on the module.
func defaultCargoBox(id int) wire.Box {
	if id < 0 {
		id = 7
	}
	return wire.Box{ID: id, Color: "red", Type: "small"}
}

// TriggerOrder resolves from and to against the module snapshot,
// attaches the cargo box (from the box snapshot when known), and
// dispatches a transport order, blocking until it resolves. Unknown
// modules are ErrNotFound; an unknown box falls back to a default
// cargo descriptor rather than refusing the order.
func (s *Service) TriggerOrder(ctx context.Context, from, to string, boxID int) (state.OrderRecord, error) {
	startModule, err := s.FindModule(from)
	if err != nil {
		return state.OrderRecord{}, err
	}
	goalModule, err := s.FindModule(to)
	if err != nil {
		return state.OrderRecord{}, err
	}

	box, err := s.FindBox(boxID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return state.OrderRecord{}, err
		}
		box = defaultCargoBox(boxID)
	}

	s.logger.Info("dispatching transport order",
		"from", from,
		"to", to,
		"box_id", box.ID)
	return s.tracker.Trigger(ctx, order.Command{
		StartingModule: startModule,
		Goal:           goalModule,
		CargoBox:       box,
	})
}

// CancelOrder cancels a pending order. Terminal or unknown orders
// return order.ErrNothingToCancel.
func (s *Service) CancelOrder(ctx context.Context, correlationID string) (state.OrderRecord, error) {
	return s.tracker.Cancel(ctx, correlationID)
}

// Order returns the record for one correlation id.
func (s *Service) Order(correlationID string) (state.OrderRecord, error) {
	record, ok := s.store.Order(correlationID)
	if !ok {
		return state.OrderRecord{}, fmt.Errorf("cell: order %q: %w", correlationID, ErrNotFound)
	}
	return record, nil
}

// ListOrders returns every order record seen this process lifetime,
// newest first.
func (s *Service) ListOrders() []state.OrderRecord {
	return s.store.Orders()
}

// LastOrder returns the most recently resolved order.
func (s *Service) LastOrder() (state.OrderRecord, error) {
	record, ok := s.store.LastOrder()
	if !ok {
		return state.OrderRecord{}, fmt.Errorf("cell: last order: %w", ErrNotFound)
	}
	return record, nil
}
