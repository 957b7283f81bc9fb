// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package cell

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/warecell-foundation/warecell/lib/clock"
	"github.com/warecell-foundation/warecell/order"
	"github.com/warecell-foundation/warecell/state"
)

// ErrNotFound marks a query whose subject is absent from the current
// snapshot. Distinct from a failure: the snapshot may simply not have
// seen the entity yet.
var ErrNotFound = errors.New("cell: not found")

const (
	// DefaultMasterStaleAfter is how long a master heartbeat stays
	// fresh. Past it the master is reported offline regardless of what
	// the last heartbeat said.
	DefaultMasterStaleAfter = 30 * time.Second

	// DefaultDirectHopLimit is the centre distance (mm) under which a
	// transport path is a single uArm hop instead of a turtlebot leg.
	DefaultDirectHopLimit = 500.0
)

// Config configures a Service. Store and Tracker are required.
type Config struct {
	Store   *state.Store
	Tracker *order.Tracker

	// Clock is used for staleness checks. Nil means the real clock.
	Clock clock.Clock

	// MasterStaleAfter overrides DefaultMasterStaleAfter.
	MasterStaleAfter time.Duration

	// DirectHopLimit overrides DefaultDirectHopLimit, in millimetres.
	DirectHopLimit float64

	Logger *slog.Logger
}

// Service answers queries from the snapshot store and forwards order
// commands to the tracker. All methods are safe for concurrent use.
type Service struct {
	store          *state.Store
	tracker        *order.Tracker
	clock          clock.Clock
	logger         *slog.Logger
	staleAfter     time.Duration
	directHopLimit float64
}

// New validates cfg and returns a ready Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cell: config missing state store")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("cell: config missing order tracker")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.MasterStaleAfter <= 0 {
		cfg.MasterStaleAfter = DefaultMasterStaleAfter
	}
	if cfg.DirectHopLimit <= 0 {
		cfg.DirectHopLimit = DefaultDirectHopLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:          cfg.Store,
		tracker:        cfg.Tracker,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		staleAfter:     cfg.MasterStaleAfter,
		directHopLimit: cfg.DirectHopLimit,
	}, nil
}
