// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "time"

// Kind identifies the topic family an Envelope was normalized from.
// The set is closed: the routing table in this package is the only
// place kinds are assigned.
type Kind string

const (
	// KindBoxDetection is a camera detection frame listing boxes with
	// global poses.
	KindBoxDetection Kind = "box_detection"

	// KindFiducialDetection is a detection frame of fiducial markers
	// with camera-relative poses.
	KindFiducialDetection Kind = "fiducial_detection"

	// KindModulePose is the layout broadcast of module namespaces and
	// their poses.
	KindModulePose Kind = "module_pose"

	// KindRegionMap is the layout broadcast of rectangular regions.
	KindRegionMap Kind = "region_map"

	// KindMasterState is the master controller's online/offline
	// heartbeat.
	KindMasterState Kind = "master_state"

	// KindLogMessage is a master log line or per-module transport
	// response, kept for failure diagnosis.
	KindLogMessage Kind = "log_message"

	// KindOrderRequest is a dispatched transport order. Envelopes of
	// this kind are mostly locally built mirrors of commands this
	// process publishes; they also appear when a listener is pointed
	// at the request topic to observe order traffic.
	KindOrderRequest Kind = "order_request"

	// KindOrderResult is the master's terminal response to an order
	// request, echoing the request's correlation id.
	KindOrderResult Kind = "order_result"

	// KindOrderCancelAck acknowledges an order-cancel command.
	KindOrderCancelAck Kind = "order_cancel_ack"

	// KindUnknown marks a topic outside every routed family.
	KindUnknown Kind = "unknown"
)

// Envelope is one normalized unit of bus state: a payload decoded
// against its kind's schema plus the local time it was received.
//
// ReceivedAt is assigned by the Normalizer from the local clock, never
// copied from a timestamp inside the payload. Staleness decisions and
// "most recent" queries use this field so that a reconnect replaying
// retained messages cannot resurrect old state with a forged embedded
// time.
//
// Envelopes are values and treated as immutable. Deriving a per-entity
// envelope from a detection frame goes through With, which copies.
type Envelope struct {
	Topic      string
	Kind       Kind
	Payload    Payload
	ReceivedAt time.Time
}

// With returns a copy of the envelope carrying a different payload.
// The listener uses this to fan a detection frame out into one
// envelope per detected entity, all sharing the frame's topic, kind,
// and receipt time.
func (e Envelope) With(p Payload) Envelope {
	e.Payload = p
	return e
}

// Payload is the sealed set of decoded message bodies. Both aggregate
// frames (BoxDetection) and the single entities fanned out of them
// (Box) implement it; PayloadKind reports the topic family either way.
type Payload interface {
	PayloadKind() Kind
}
