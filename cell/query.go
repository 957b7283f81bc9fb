// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package cell

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warecell-foundation/warecell/state"
	"github.com/warecell-foundation/warecell/wire"
)

// FindBox returns the most recently seen box with the given id.
func (s *Service) FindBox(id int) (wire.Box, error) {
	env, ok := s.store.Get(state.Boxes, strconv.Itoa(id))
	if !ok {
		return wire.Box{}, fmt.Errorf("cell: box %d: %w", id, ErrNotFound)
	}
	return env.Payload.(wire.Box), nil
}

// ListBoxes returns every known box in deterministic id order.
func (s *Service) ListBoxes() []wire.Box {
	envs := s.store.List(state.Boxes)
	boxes := make([]wire.Box, 0, len(envs))
	for _, env := range envs {
		boxes = append(boxes, env.Payload.(wire.Box))
	}
	return boxes
}

// FindBoxByColor returns every box of the given color. The comparison
// is case-insensitive; no match is ErrNotFound.
func (s *Service) FindBoxByColor(color string) ([]wire.Box, error) {
	var matches []wire.Box
	for _, box := range s.ListBoxes() {
		if strings.EqualFold(box.Color, color) {
			matches = append(matches, box)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("cell: box color %q: %w", color, ErrNotFound)
	}
	return matches, nil
}

// FindModule returns the module with the given namespace.
func (s *Service) FindModule(namespace string) (wire.ModulePose, error) {
	env, ok := s.store.Get(state.Modules, namespace)
	if !ok {
		return wire.ModulePose{}, fmt.Errorf("cell: module %q: %w", namespace, ErrNotFound)
	}
	return env.Payload.(wire.ModulePose), nil
}

// ListModules returns every known module in namespace order.
func (s *Service) ListModules() []wire.ModulePose {
	envs := s.store.List(state.Modules)
	modules := make([]wire.ModulePose, 0, len(envs))
	for _, env := range envs {
		modules = append(modules, env.Payload.(wire.ModulePose))
	}
	return modules
}

// MasterStatus is the liveness verdict on the master controller.
type MasterStatus struct {
	// Online is true only when the last heartbeat said "online" and
	// arrived within the staleness window.
	Online bool

	// State is the raw heartbeat state, lowercased. Empty when no
	// heartbeat was ever seen.
	State string

	// Age is how long ago the last heartbeat arrived.
	Age time.Duration
}

// MasterStatus reports whether the master controller is reachable. An
// "online" heartbeat older than the staleness window counts as
// offline: a silent master is a dead master.
func (s *Service) MasterStatus() MasterStatus {
	env, ok := s.store.Get(state.Master, state.MasterKey)
	if !ok {
		return MasterStatus{}
	}
	raw := strings.ToLower(env.Payload.(wire.MasterState).State)
	age := s.clock.Now().Sub(env.ReceivedAt)
	return MasterStatus{
		Online: raw == "online" && age <= s.staleAfter,
		State:  raw,
		Age:    age,
	}
}

// Log topics with known failure signatures, scanned by DiagnoseFailure.
const (
	logTopicPlannedPath = wire.TopicMasterLogs + "execute_planned_path"
	logTopicBoxSearch   = wire.TopicMasterLogs + "search_for_box_in_starting_module_workspace"
)

// DiagnoseFailure scans the stored log topics for known failure
// signatures and returns the distinct reasons, in the order the topics
// sort. No evidence is ErrNotFound, not an empty diagnosis.
func (s *Service) DiagnoseFailure() ([]string, error) {
	var reasons []string
	seen := make(map[string]bool)
	add := func(reason string) {
		if !seen[reason] {
			seen[reason] = true
			reasons = append(reasons, reason)
		}
	}

	for _, env := range s.store.List(state.Logs) {
		line, ok := env.Payload.(wire.LogMessage)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(env.Topic, "base_01/") && strings.HasSuffix(env.Topic, "/transport/response"):
			if line.Success != nil && !*line.Success {
				add(fmt.Sprintf("transport failure reported on %s", env.Topic))
			}
		case env.Topic == logTopicPlannedPath:
			if strings.Contains(line.Message, "Transport failed") {
				add("transport failed at a module during execution")
			}
		case env.Topic == logTopicBoxSearch:
			if strings.Contains(line.Message, "No box found") {
				add("no box found in starting module workspace")
			}
		}
	}

	if len(reasons) == 0 {
		return nil, fmt.Errorf("cell: failure evidence: %w", ErrNotFound)
	}
	return reasons, nil
}
