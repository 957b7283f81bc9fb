// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/warecell-foundation/warecell/lib/clock"
	"github.com/warecell-foundation/warecell/state"
	"github.com/warecell-foundation/warecell/wire"
)

// OrderSink receives the order-family envelopes the listener routes
// away from the snapshot store. Implemented by the correlation
// tracker; declared here so this package does not depend on it.
type OrderSink interface {
	// Deliver hands over an OrderResult envelope.
	Deliver(env wire.Envelope)
	// DeliverCancelAck hands over an OrderCancelAck envelope.
	DeliverCancelAck(env wire.Envelope)
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Conn is the bus connection to subscribe on.
	Conn Conn
	// Store receives normalized entity state.
	Store *state.Store
	// Orders receives order results and cancel acks. Optional: a
	// listener without a tracker (the watch binary) counts and drops
	// them.
	Orders OrderSink
	// Topics are the subscription filters. Empty means DefaultTopics.
	Topics []string
	// Clock stamps envelope receipt times. Nil means the real clock.
	Clock clock.Clock
	// Logger is used for per-message diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// DefaultTopics is the standard subscription set for a full view of
// the cell.
var DefaultTopics = []string{
	wire.TopicBoxes,
	wire.TopicInventoryBoxes,
	wire.TopicFiducials,
	wire.TopicModules,
	wire.TopicRegions,
	wire.TopicMasterState,
	wire.TopicMasterLogs + "#",
	"base_01/+/transport/response",
	wire.TopicOrderResponse + "/#",
	wire.TopicOrderCancelAck + "/#",
}

// Listener is the background flow that turns raw bus traffic into
// snapshot state. Start it once; it stays subscribed until the
// connection closes.
type Listener struct {
	conn       Conn
	store      *state.Store
	orders     OrderSink
	topics     []string
	normalizer *wire.Normalizer
	logger     *slog.Logger

	received  atomic.Uint64
	malformed atomic.Uint64
	stale     atomic.Uint64
}

// NewListener validates the config and returns an unstarted Listener.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Conn == nil {
		return nil, fmt.Errorf("bus: listener requires a Conn")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("bus: listener requires a Store")
	}
	topics := config.Topics
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		conn:       config.Conn,
		store:      config.Store,
		orders:     config.Orders,
		topics:     topics,
		normalizer: wire.NewNormalizer(config.Clock),
		logger:     logger,
	}, nil
}

// Start subscribes every configured topic. Message handling runs on
// the connection's dispatch goroutine from then on.
func (l *Listener) Start(ctx context.Context) error {
	for _, topic := range l.topics {
		qos := QoSFeed
		switch wire.Route(topicFilterBase(topic)) {
		case wire.KindOrderResult, wire.KindOrderCancelAck:
			qos = QoSOrder
		}
		if err := l.conn.Subscribe(ctx, topic, qos, l.handle); err != nil {
			return err
		}
	}
	l.logger.Info("listener subscribed", "topics", len(l.topics))
	return nil
}

// topicFilterBase strips a trailing wildcard level from a filter so
// it can be routed like a concrete topic.
func topicFilterBase(filter string) string {
	for _, suffix := range []string{"/#", "/+"} {
		if len(filter) > len(suffix) && filter[len(filter)-len(suffix):] == suffix {
			return filter[:len(filter)-len(suffix)]
		}
	}
	return filter
}

// handle processes one raw message. It never returns an error and
// never panics on payload content: malformed input from the bus is
// counted and dropped.
func (l *Listener) handle(msg Message) {
	l.received.Add(1)

	env, err := l.normalizer.Normalize(msg.Topic, msg.Payload)
	if err != nil {
		l.malformed.Add(1)
		l.logger.Debug("dropping malformed message", "topic", msg.Topic, "error", err)
		return
	}

	switch payload := env.Payload.(type) {
	case wire.BoxDetection:
		for _, box := range payload.Boxes {
			l.put(state.Boxes, strconv.Itoa(box.ID), env.With(box))
		}
	case wire.FiducialDetection:
		for _, fiducial := range payload.Fiducials {
			l.put(state.Fiducials, strconv.Itoa(fiducial.ID), env.With(fiducial))
		}
	case wire.ModulePoses:
		for _, module := range payload.Modules {
			l.put(state.Modules, module.Namespace, env.With(module))
		}
	case wire.RegionMap:
		for i, region := range payload.Regions {
			l.put(state.Regions, strconv.Itoa(i), env.With(region))
		}
	case wire.MasterState:
		l.put(state.Master, state.MasterKey, env)
	case wire.LogMessage:
		l.put(state.Logs, env.Topic, env)
	case wire.OrderResult:
		if l.orders == nil {
			l.logger.Debug("no order sink; dropping order result", "topic", env.Topic)
			return
		}
		l.orders.Deliver(env)
	case wire.OrderCancelAck:
		if l.orders == nil {
			return
		}
		l.orders.DeliverCancelAck(env)
	case wire.OrderRequest:
		// Observed command traffic. Order records belong to the
		// dispatching tracker, so requests carry no state here.
		l.logger.Debug("observed order request",
			"topic", env.Topic,
			"correlation_id", payload.Header.CorrelationID)
	default:
		// Unreachable while the normalizer's kind set and this switch
		// stay in step.
		l.malformed.Add(1)
	}
}

func (l *Listener) put(category state.Category, key string, env wire.Envelope) {
	if !l.store.Put(category, key, env) {
		l.stale.Add(1)
	}
}

// Stats is a point-in-time copy of the listener's diagnostic counters.
type Stats struct {
	// Received counts every message delivered to the listener.
	Received uint64
	// Malformed counts messages dropped at normalization.
	Malformed uint64
	// Stale counts store writes rejected as older than current state.
	Stale uint64
}

// Stats returns the current counter values.
func (l *Listener) Stats() Stats {
	return Stats{
		Received:  l.received.Load(),
		Malformed: l.malformed.Load(),
		Stale:     l.stale.Load(),
	}
}
