// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus connects the process to the cell's MQTT broker and runs
// the background listener that keeps the snapshot store current.
//
// [Conn] is the narrow publish/subscribe surface the rest of the
// repository programs against. [DialMQTT] returns the production
// implementation (eclipse paho, auto-reconnecting); [NewMemory]
// returns an in-process broker with the same topic-filter semantics,
// used by tests and by the mock binaries when pointed at each other.
//
// [Listener] is the single background flow of the system: it
// subscribes the configured topic families, normalizes every raw
// message through wire.Normalizer, fans detection frames out into
// per-entity store writes, and hands order results and cancel acks to
// the correlation tracker. Malformed payloads and stale writes are
// counted and dropped; nothing a producer publishes can terminate the
// listener.
package bus
