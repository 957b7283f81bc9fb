// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the normalized unit of bus state (the
// [Envelope]) and the translation from raw MQTT messages into it.
//
// The cell publishes JSON documents on a fixed set of topic families:
// box and fiducial detections, module poses, region maps, master
// status and log lines, order results, and order-cancel
// acknowledgements. A [Normalizer] maps a topic to its [Kind] through
// a fixed routing table and decodes the payload against that kind's
// schema, stamping the result with the local receipt time. Malformed
// payloads are an error for the caller to count and drop — producers
// on the bus are not under this process's control, so decode failures
// are expected traffic, never fatal.
//
// Envelopes are immutable once constructed. An update to an entity is
// a new Envelope; nothing in this repository mutates a payload in
// place. The command types published by this process (order requests
// and cancels) live here too, so the tracker and the mock order
// handler share one definition of the wire format.
package wire
