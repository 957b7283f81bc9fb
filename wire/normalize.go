// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warecell-foundation/warecell/lib/clock"
)

// Topic families of the cell bus. Producers occasionally publish with
// a leading slash; Normalize strips it before routing, so the
// constants here are the canonical slash-free forms.
const (
	// TopicBoxes is the camera's box detection frame.
	TopicBoxes = "mmh_cam/detected_boxes"

	// TopicInventoryBoxes is the inventory system's box feed, same
	// schema as TopicBoxes.
	TopicInventoryBoxes = "inventory/boxes"

	// TopicFiducials is the camera's fiducial marker frame.
	TopicFiducials = "mmh_cam/detected_markers"

	// TopicModules is the module layout broadcast.
	TopicModules = "base_01/base_module_visualization"

	// TopicRegions is the region layout broadcast.
	TopicRegions = "layout/regions"

	// TopicMasterState is the master controller heartbeat.
	TopicMasterState = "master/state"

	// TopicMasterLogs is the prefix of the master's log topics.
	TopicMasterLogs = "master/logs/"

	// TopicOrderRequest is where order commands are published.
	TopicOrderRequest = "base_01/order_request"

	// TopicOrderResponse is the prefix of the order result family.
	// The master publishes results under per-order subtopics, so
	// subscriptions use TopicOrderResponse + "/#".
	TopicOrderResponse = "base_01/order_request/response"

	// TopicOrderCancel is where cancel commands are published.
	TopicOrderCancel = "base_01/order_cancel"

	// TopicOrderCancelAck is the prefix of the cancel-ack family.
	TopicOrderCancelAck = "base_01/order_cancel/ack"

	// transportResponseSuffix marks per-module transport responses,
	// which are kept as log state for failure diagnosis.
	transportResponseSuffix = "/transport/response"
)

// route maps a topic pattern to a Kind. Exact matches are tried
// first, then prefixes, then suffixes. The table is fixed: adding a
// topic family means adding a Kind, a schema, and a row here.
type route struct {
	exact  string
	prefix string
	suffix string
	kind   Kind
}

var routes = []route{
	{exact: TopicBoxes, kind: KindBoxDetection},
	{exact: TopicInventoryBoxes, kind: KindBoxDetection},
	{exact: TopicFiducials, kind: KindFiducialDetection},
	{exact: TopicModules, kind: KindModulePose},
	{exact: "system/modules", kind: KindModulePose},
	{exact: TopicRegions, kind: KindRegionMap},
	{exact: TopicMasterState, kind: KindMasterState},
	{prefix: TopicOrderResponse + "/", kind: KindOrderResult},
	{exact: TopicOrderRequest, kind: KindOrderRequest},
	{exact: TopicOrderResponse, kind: KindOrderResult},
	{prefix: TopicOrderCancelAck + "/", kind: KindOrderCancelAck},
	{exact: TopicOrderCancelAck, kind: KindOrderCancelAck},
	{prefix: TopicMasterLogs, kind: KindLogMessage},
	{suffix: transportResponseSuffix, kind: KindLogMessage},
}

// Route returns the Kind for a (slash-normalized) topic, or
// KindUnknown when the topic is outside every routed family.
func Route(topic string) Kind {
	for _, r := range routes {
		switch {
		case r.exact != "" && topic == r.exact:
			return r.kind
		case r.prefix != "" && strings.HasPrefix(topic, r.prefix):
			return r.kind
		case r.suffix != "" && strings.HasSuffix(topic, r.suffix):
			return r.kind
		}
	}
	return KindUnknown
}

// Normalizer turns raw bus messages into Envelopes. It has no side
// effects: writing the result anywhere is the caller's business,
// which keeps normalization independently testable.
type Normalizer struct {
	clock clock.Clock
}

// NewNormalizer returns a Normalizer stamping envelopes from the given
// clock. A nil clock means the real one.
func NewNormalizer(c clock.Clock) *Normalizer {
	if c == nil {
		c = clock.Real()
	}
	return &Normalizer{clock: c}
}

// Normalize translates one raw message into exactly one Envelope, or
// rejects it with an error. Rejection covers unrouted topics and
// payloads that do not satisfy their kind's schema; both are expected
// from an uncontrolled bus and the caller is expected to count and
// drop, not crash.
func (n *Normalizer) Normalize(topic string, payload []byte) (Envelope, error) {
	topic = strings.TrimPrefix(topic, "/")
	kind := Route(topic)

	decoded, err := decodePayload(kind, payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: topic %q: %w", topic, err)
	}

	return Envelope{
		Topic:      topic,
		Kind:       kind,
		Payload:    decoded,
		ReceivedAt: n.clock.Now(),
	}, nil
}

func decodePayload(kind Kind, payload []byte) (Payload, error) {
	switch kind {
	case KindBoxDetection:
		var frame BoxDetection
		if err := json.Unmarshal(payload, &frame); err != nil {
			return nil, fmt.Errorf("decoding box frame: %w", err)
		}
		if frame.Boxes == nil {
			return nil, fmt.Errorf("box frame missing %q field", "boxes")
		}
		return frame, nil

	case KindFiducialDetection:
		var frame FiducialDetection
		if err := json.Unmarshal(payload, &frame); err != nil {
			return nil, fmt.Errorf("decoding fiducial frame: %w", err)
		}
		if frame.Fiducials == nil {
			return nil, fmt.Errorf("fiducial frame missing %q field", "fiducials")
		}
		return frame, nil

	case KindModulePose:
		var layout ModulePoses
		if err := json.Unmarshal(payload, &layout); err != nil {
			return nil, fmt.Errorf("decoding module layout: %w", err)
		}
		if layout.Modules == nil {
			return nil, fmt.Errorf("module layout missing %q field", "modules")
		}
		return layout, nil

	case KindRegionMap:
		var regions RegionMap
		if err := json.Unmarshal(payload, &regions); err != nil {
			return nil, fmt.Errorf("decoding region map: %w", err)
		}
		if regions.Regions == nil {
			return nil, fmt.Errorf("region map missing %q field", "map")
		}
		return regions, nil

	case KindMasterState:
		var master MasterState
		if err := json.Unmarshal(payload, &master); err != nil {
			return nil, fmt.Errorf("decoding master state: %w", err)
		}
		if master.State == "" {
			return nil, fmt.Errorf("master state missing %q field", "data")
		}
		return master, nil

	case KindLogMessage:
		var line LogMessage
		if err := json.Unmarshal(payload, &line); err != nil {
			return nil, fmt.Errorf("decoding log message: %w", err)
		}
		return line, nil

	case KindOrderResult:
		// Success decoded through a pointer so an absent field is a
		// schema violation rather than a silent failure report.
		var raw struct {
			Header  Header `json:"header"`
			Success *bool  `json:"success"`
			Info    string `json:"info"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("decoding order result: %w", err)
		}
		if raw.Header.CorrelationID == "" {
			return nil, fmt.Errorf("order result missing correlation id")
		}
		if raw.Success == nil {
			return nil, fmt.Errorf("order result missing %q field", "success")
		}
		return OrderResult{Header: raw.Header, Success: *raw.Success, Info: raw.Info}, nil

	case KindOrderRequest:
		var req OrderRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decoding order request: %w", err)
		}
		if req.Header.CorrelationID == "" {
			return nil, fmt.Errorf("order request missing correlation id")
		}
		return req, nil

	case KindOrderCancelAck:
		var ack OrderCancelAck
		if err := json.Unmarshal(payload, &ack); err != nil {
			return nil, fmt.Errorf("decoding cancel ack: %w", err)
		}
		if ack.Header.CorrelationID == "" {
			return nil, fmt.Errorf("cancel ack missing correlation id")
		}
		return ack, nil

	default:
		return nil, fmt.Errorf("unrouted topic")
	}
}
