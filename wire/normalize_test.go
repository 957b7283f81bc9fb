// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"
	"time"

	"github.com/warecell-foundation/warecell/lib/clock"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRoute(t *testing.T) {
	cases := []struct {
		topic string
		want  Kind
	}{
		{"mmh_cam/detected_boxes", KindBoxDetection},
		{"inventory/boxes", KindBoxDetection},
		{"mmh_cam/detected_markers", KindFiducialDetection},
		{"base_01/base_module_visualization", KindModulePose},
		{"system/modules", KindModulePose},
		{"layout/regions", KindRegionMap},
		{"master/state", KindMasterState},
		{"master/logs/execute_planned_path", KindLogMessage},
		{"base_01/uarm_01/transport/response", KindLogMessage},
		{"base_01/order_request/response", KindOrderResult},
		{"base_01/order_request/response/abc-123", KindOrderResult},
		{"base_01/order_cancel/ack", KindOrderCancelAck},
		{"base_01/order_cancel/ack/abc-123", KindOrderCancelAck},
		{"base_01/order_request", KindOrderRequest},
		{"height_map", KindUnknown},
	}
	for _, tc := range cases {
		if got := Route(tc.topic); got != tc.want {
			t.Errorf("Route(%q) = %q, want %q", tc.topic, got, tc.want)
		}
	}
}

func TestNormalizeBoxFrame(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	payload := []byte(`{
		"header": {"timestamp": 1700000000.5, "module_id": "mmh_cam"},
		"boxes": [
			{"id": 1, "color": "red", "type": "small",
			 "global_pose": {"x": 10, "y": 20, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}}
		]
	}`)

	env, err := n.Normalize("/inventory/boxes", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Topic != "inventory/boxes" {
		t.Errorf("Topic = %q, want leading slash stripped", env.Topic)
	}
	if env.Kind != KindBoxDetection {
		t.Errorf("Kind = %q, want %q", env.Kind, KindBoxDetection)
	}
	if !env.ReceivedAt.Equal(testStart) {
		t.Errorf("ReceivedAt = %v, want clock time %v", env.ReceivedAt, testStart)
	}

	frame, ok := env.Payload.(BoxDetection)
	if !ok {
		t.Fatalf("Payload type = %T, want BoxDetection", env.Payload)
	}
	if len(frame.Boxes) != 1 || frame.Boxes[0].Color != "red" || frame.Boxes[0].Pose.Y != 20 {
		t.Errorf("decoded frame = %+v", frame)
	}
}

func TestNormalizeModuleLayout(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	payload := []byte(`{"modules": [
		{"namespace": "conveyor_02", "pose": {"x": 301.8, "y": 283.3, "z": 15, "roll": 0, "pitch": 0, "yaw": 0}},
		{"namespace": "container_01", "pose": {"x": 211.4, "y": 298.7, "z": 130, "roll": 0, "pitch": 0, "yaw": -3.14}}
	]}`)

	env, err := n.Normalize("base_01/base_module_visualization", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	layout := env.Payload.(ModulePoses)
	if len(layout.Modules) != 2 || layout.Modules[1].Namespace != "container_01" {
		t.Errorf("decoded layout = %+v", layout)
	}
}

func TestNormalizeOrderResult(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	payload := []byte(`{
		"header": {"timestamp": 1700000005.0, "module_id": "mock_handler",
		           "correlation_id": "ord-42", "version": 1.0},
		"success": true
	}`)

	env, err := n.Normalize("base_01/order_request/response/ord-42", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	result := env.Payload.(OrderResult)
	if result.Header.CorrelationID != "ord-42" || !result.Success {
		t.Errorf("decoded result = %+v", result)
	}
}

func TestNormalizeOrderResultMissingSuccess(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	payload := []byte(`{"header": {"correlation_id": "ord-43"}}`)

	if _, err := n.Normalize("base_01/order_request/response/ord-43", payload); err == nil {
		t.Fatal("expected schema error for order result without success field")
	}
}

func TestNormalizeOrderResultMissingCorrelationID(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	payload := []byte(`{"header": {"module_id": "m"}, "success": false}`)

	if _, err := n.Normalize("base_01/order_request/response", payload); err == nil {
		t.Fatal("expected schema error for order result without correlation id")
	}
}

func TestNormalizeMasterState(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	env, err := n.Normalize("master/state", []byte(`{"data": "online"}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Payload.(MasterState).State != "online" {
		t.Errorf("Payload = %+v", env.Payload)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	cases := []struct {
		name, topic string
		payload     string
	}{
		{"invalid json", "inventory/boxes", `{"boxes": [`},
		{"wrong shape", "inventory/boxes", `{"modules": []}`},
		{"unrouted topic", "some/other/topic", `{"boxes": []}`},
		{"scalar payload", "master/state", `42`},
	}
	for _, tc := range cases {
		if _, err := n.Normalize(tc.topic, []byte(tc.payload)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestEnvelopeWithCopies(t *testing.T) {
	n := NewNormalizer(clock.Fake(testStart))
	env, err := n.Normalize("inventory/boxes", []byte(`{"boxes": [
		{"id": 7, "color": "green", "type": "small",
		 "global_pose": {"x": 1, "y": 2, "z": 3, "roll": 0, "pitch": 0, "yaw": 0}}
	]}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	frame := env.Payload.(BoxDetection)
	child := env.With(frame.Boxes[0])

	if _, ok := env.Payload.(BoxDetection); !ok {
		t.Error("With mutated the parent envelope's payload")
	}
	if child.Payload.(Box).ID != 7 {
		t.Errorf("child payload = %+v", child.Payload)
	}
	if !child.ReceivedAt.Equal(env.ReceivedAt) || child.Topic != env.Topic {
		t.Error("child envelope lost the frame's topic or receipt time")
	}
}
