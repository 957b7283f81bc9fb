// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Pose is a position and orientation in the cell's global frame.
// Linear units are millimetres, angles radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Header is the common metadata block carried by order-family
// messages. Timestamp is the producer's wall clock in Unix seconds and
// is informational only — receipt ordering uses Envelope.ReceivedAt.
type Header struct {
	Timestamp     float64 `json:"timestamp"`
	SenderID      string  `json:"sender_id,omitempty"`
	ModuleID      string  `json:"module_id,omitempty"`
	CorrelationID string  `json:"correlation_id"`
	Version       float64 `json:"version,omitempty"`
}

// Box is one detected box. Type is the size class ("small", "large").
type Box struct {
	ID    int    `json:"id"`
	Color string `json:"color"`
	Type  string `json:"type"`
	Pose  Pose   `json:"global_pose"`
}

func (Box) PayloadKind() Kind { return KindBoxDetection }

// BoxDetection is a full camera frame of detected boxes.
type BoxDetection struct {
	Boxes []Box `json:"boxes"`
}

func (BoxDetection) PayloadKind() Kind { return KindBoxDetection }

// Fiducial is one detected fiducial marker. The pose is relative to
// the detecting camera.
type Fiducial struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Pose Pose   `json:"relative_pose"`
}

func (Fiducial) PayloadKind() Kind { return KindFiducialDetection }

// FiducialDetection is a full frame of detected fiducials.
type FiducialDetection struct {
	Fiducials []Fiducial `json:"fiducials"`
}

func (FiducialDetection) PayloadKind() Kind { return KindFiducialDetection }

// ModulePose is one module (conveyor, container, uarm, dock) and its
// pose, identified by namespace.
type ModulePose struct {
	Namespace string `json:"namespace"`
	Pose      Pose   `json:"pose"`
}

func (ModulePose) PayloadKind() Kind { return KindModulePose }

// ModulePoses is the full module layout broadcast.
type ModulePoses struct {
	Modules []ModulePose `json:"modules"`
}

func (ModulePoses) PayloadKind() Kind { return KindModulePose }

// Region is a rectangular layout region. Corner field names follow the
// producer's capitalized JSON keys.
type Region struct {
	TopCorner    Pose    `json:"TopCorner"`
	BottomCorner Pose    `json:"BottomCorner"`
	Height       float64 `json:"height"`
}

func (Region) PayloadKind() Kind { return KindRegionMap }

// RegionMap is the full region layout broadcast.
type RegionMap struct {
	Regions []Region `json:"map"`
}

func (RegionMap) PayloadKind() Kind { return KindRegionMap }

// MasterState is the master controller heartbeat. State is "online"
// or "offline"; comparisons are case-insensitive on the consumer side.
type MasterState struct {
	State string `json:"data"`
}

func (MasterState) PayloadKind() Kind { return KindMasterState }

// LogMessage is a master log line or a per-module transport response.
// Success is a pointer because log lines carry no success field at
// all, and "absent" must stay distinguishable from "false".
type LogMessage struct {
	Message string `json:"message,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

func (LogMessage) PayloadKind() Kind { return KindLogMessage }

// OrderResult is the master's terminal response to an order request.
type OrderResult struct {
	Header  Header `json:"header"`
	Success bool   `json:"success"`
	Info    string `json:"info,omitempty"`
}

func (OrderResult) PayloadKind() Kind { return KindOrderResult }

// OrderCancelAck acknowledges an order-cancel command. Purely
// informational: local cancellation is authoritative before any ack
// arrives.
type OrderCancelAck struct {
	Header Header `json:"header"`
}

func (OrderCancelAck) PayloadKind() Kind { return KindOrderCancelAck }

// OrderRequest is the command this process publishes to dispatch a
// transport order. The responding side echoes the header's
// correlation id unchanged in its OrderResult.
type OrderRequest struct {
	Header         Header     `json:"header"`
	StartingModule ModulePose `json:"starting_module"`
	Goal           ModulePose `json:"goal"`
	CargoBox       Box        `json:"cargo_box"`
}

func (OrderRequest) PayloadKind() Kind { return KindOrderRequest }

// OrderCancel is the best-effort cancel command for an in-flight
// order, tagged with the order's correlation id.
type OrderCancel struct {
	Header Header `json:"header"`
}
