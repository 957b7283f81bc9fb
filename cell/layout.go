// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package cell

import (
	"fmt"
	"math"
	"strings"

	"github.com/warecell-foundation/warecell/wire"
)

// TurtlebotNamespace is the mobile robot that carries the long leg of
// a transport path between two uArm handoffs.
const TurtlebotNamespace = "turtlebot_01"

// footprint is a module's rectangular ground footprint in mm, centred
// on its pose.
type footprint struct {
	width  float64
	height float64
}

// Footprints per module family. Unknown families get the container
// footprint, the smallest of the set.
var footprints = map[string]footprint{
	"conveyor":  {450, 150},
	"container": {150, 150},
	"uarm":      {200, 200},
	"dock":      {200, 200},
}

func moduleFootprint(namespace string) footprint {
	for family, fp := range footprints {
		if strings.HasPrefix(namespace, family) {
			return fp
		}
	}
	return footprints["container"]
}

// MatchMethod says how ClosestModule decided.
type MatchMethod string

const (
	// MatchFootprint means the point lies inside the module's
	// footprint rectangle.
	MatchFootprint MatchMethod = "footprint"

	// MatchDistance means no footprint contains the point and the
	// module merely has the nearest centre.
	MatchDistance MatchMethod = "distance"
)

// ModuleMatch is the result of a ClosestModule query.
type ModuleMatch struct {
	Module   wire.ModulePose
	Method   MatchMethod
	Distance float64
}

// ClosestModule resolves a point in the cell's global frame (mm) to a
// module. Footprint containment wins outright with distance zero;
// otherwise the module with the nearest centre is returned with the
// centre distance.
func (s *Service) ClosestModule(x, y float64) (ModuleMatch, error) {
	modules := s.ListModules()
	if len(modules) == 0 {
		return ModuleMatch{}, fmt.Errorf("cell: module layout: %w", ErrNotFound)
	}

	for _, m := range modules {
		fp := moduleFootprint(m.Namespace)
		if math.Abs(x-m.Pose.X) <= fp.width/2 && math.Abs(y-m.Pose.Y) <= fp.height/2 {
			return ModuleMatch{Module: m, Method: MatchFootprint}, nil
		}
	}

	best := ModuleMatch{Method: MatchDistance, Distance: math.Inf(1)}
	for _, m := range modules {
		if d := planarDistance(m.Pose, wire.Pose{X: x, Y: y}); d < best.Distance {
			best.Module, best.Distance = m, d
		}
	}
	return best, nil
}

// PlanPath returns the ordered module hops for moving cargo from start
// to goal. Under the direct-hop limit a single uArm near the start
// does the transfer; beyond it the path hands off through uArms at
// both ends with a turtlebot carrying the middle leg.
func (s *Service) PlanPath(start, goal string) ([]string, error) {
	startModule, err := s.FindModule(start)
	if err != nil {
		return nil, err
	}
	goalModule, err := s.FindModule(goal)
	if err != nil {
		return nil, err
	}

	var uarms []wire.ModulePose
	for _, m := range s.ListModules() {
		if strings.HasPrefix(m.Namespace, "uarm") {
			uarms = append(uarms, m)
		}
	}
	if len(uarms) == 0 {
		return nil, fmt.Errorf("cell: planning %s to %s: no uarm modules in layout", start, goal)
	}

	if planarDistance(startModule.Pose, goalModule.Pose) < s.directHopLimit {
		return []string{start, nearestTo(uarms, startModule.Pose).Namespace, goal}, nil
	}
	return []string{
		start,
		nearestTo(uarms, startModule.Pose).Namespace,
		TurtlebotNamespace,
		nearestTo(uarms, goalModule.Pose).Namespace,
		goal,
	}, nil
}

func nearestTo(modules []wire.ModulePose, target wire.Pose) wire.ModulePose {
	best, bestDist := modules[0], math.Inf(1)
	for _, m := range modules {
		if d := planarDistance(m.Pose, target); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best
}

func planarDistance(a, b wire.Pose) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
