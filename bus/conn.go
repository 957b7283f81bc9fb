// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import "context"

// QoS levels used on the cell bus. Detection feeds are fire-and-forget;
// order-family messages use at-least-once so a result is not lost to a
// dropped packet (the tracker discards duplicates).
const (
	QoSFeed  byte = 0
	QoSOrder byte = 1
)

// Message is one raw bus message as delivered to a subscriber.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Handler consumes one message. Handlers run on the connection's
// dispatch goroutine and must not block indefinitely.
type Handler func(msg Message)

// Conn is the publish/subscribe surface of the cell bus.
type Conn interface {
	// Publish sends payload on topic. The call returns when the
	// broker has accepted the message (per qos) or ctx ends.
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error

	// Subscribe registers handler for every message matching filter
	// (MQTT semantics: "+" one level, "#" remainder).
	Subscribe(ctx context.Context, filter string, qos byte, handler Handler) error

	// Close tears the connection down. Pending handlers may still run.
	Close()
}
