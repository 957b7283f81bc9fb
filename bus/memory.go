// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Conn with MQTT topic-filter semantics.
// Delivery is synchronous: Publish invokes every matching handler
// before returning, which makes tests deterministic. Handlers may
// publish from within a delivery (a mock order handler replying to a
// request) — Memory holds no locks while running handlers.
//
// Retained messages are replayed to later subscribers, matching
// broker behavior for the retained detection feeds.
type Memory struct {
	mu            sync.Mutex
	subscriptions []subscription
	retained      map[string][]byte
}

type subscription struct {
	filter  string
	handler Handler
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{retained: make(map[string][]byte)}
}

// Publish implements Conn. The qos parameter is accepted for
// interface compatibility; in-process delivery is always exact.
func (m *Memory) Publish(_ context.Context, topic string, _ byte, retain bool, payload []byte) error {
	m.mu.Lock()
	if retain {
		m.retained[topic] = append([]byte(nil), payload...)
	}
	var matched []Handler
	for _, sub := range m.subscriptions {
		if MatchFilter(sub.filter, topic) {
			matched = append(matched, sub.handler)
		}
	}
	m.mu.Unlock()

	msg := Message{Topic: topic, Payload: payload, Retained: false}
	for _, handler := range matched {
		handler(msg)
	}
	return nil
}

// Subscribe implements Conn. Retained messages matching the filter
// are delivered immediately, before Subscribe returns.
func (m *Memory) Subscribe(_ context.Context, filter string, _ byte, handler Handler) error {
	m.mu.Lock()
	m.subscriptions = append(m.subscriptions, subscription{filter: filter, handler: handler})
	var replay []Message
	for topic, payload := range m.retained {
		if MatchFilter(filter, topic) {
			replay = append(replay, Message{Topic: topic, Payload: payload, Retained: true})
		}
	}
	m.mu.Unlock()

	for _, msg := range replay {
		handler(msg)
	}
	return nil
}

// Close implements Conn. Subsequent publishes deliver to nothing.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = nil
}

// MatchFilter reports whether an MQTT topic filter matches a topic:
// "+" matches exactly one level, "#" (final level only) matches the
// topic remainder, including the empty remainder.
func MatchFilter(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, level := range filterLevels {
		if level == "#" {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
