/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package planner orchestrates the init-driver sequence of spec §4.G: it
// builds the system, computes and trims paths, matches or searches for a
// channel layout, derives and doubles the tree graph, and returns a
// complete Plan together with the decision log.
package planner

import (
	"fmt"
	"time"

	"github.com/NVIDIA/topoplan/pkg/config"
	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/metrics"
	"github.com/NVIDIA/topoplan/pkg/model"
	"github.com/NVIDIA/topoplan/pkg/pathengine"
	"github.com/NVIDIA/topoplan/pkg/patterns"
	"github.com/NVIDIA/topoplan/pkg/search"
	"github.com/NVIDIA/topoplan/pkg/topobuild"
)

// Plan is the immutable result of one planning run: the built system, the
// ring and tree channel graphs, the decision log, and (when the pattern
// matcher short-circuited the search) the matched pattern's identifier.
type Plan struct {
	System *model.System
	Ring   *model.TopoGraph
	Tree   *model.TopoGraph
	Log    *decisionlog.Log

	MatchedPatternID string
}

// Run executes the full init driver of spec §4.G against in.
func Run(in *config.Input) (*Plan, error) {
	log := decisionlog.New()
	start := time.Now()

	log.Append(decisionlog.PhaseSearchInit, "planning run started",
		fmt.Sprintf("hardware %q, gpu count %d", in.Hardware.Name, in.Hardware.GPU.Count), nil, "spec §4.G step 1", nil)

	opts, err := config.DecodeOptions(in.Options)
	if err != nil {
		metrics.AddRun("invalid-config", time.Since(start))
		return nil, err
	}

	sys, err := topobuild.Build(&in.Hardware, in.ScaleUnit, log)
	if err != nil {
		metrics.AddRun("invalid-config", time.Since(start))
		return nil, err
	}

	if in.ScaleUnit != nil {
		log.Append(decisionlog.PhaseSearchInit, "fast-path deferred", "multi-server plans do not run the ring/tree search", nil, "spec §4.G step 3", nil)
		metrics.AddRun("deferred", time.Since(start))
		return &Plan{System: sys, Ring: model.NewTopoGraph(model.Ring), Tree: model.NewTopoGraph(model.BalancedTree), Log: log}, nil
	}

	pathengine.ComputeAllPairs(sys, opts, log)
	pathengine.Trim(sys, log)
	pathengine.ComputeAllPairs(sys, opts, log)

	minChannels, maxChannels := channelBounds(opts)

	var ringGraph *model.TopoGraph
	matchedID := ""
	runResult := "optimal"

	if in.Hardware.GPU.Type == "amd" && !opts.Bool(model.OptModelMatchDisable) {
		if g, id, ok := patterns.Match(sys, opts, log); ok {
			ringGraph = g
			matchedID = id
		}
	}

	if ringGraph == nil {
		ringMax := maxInt(1, maxChannels/2)
		res := search.Run(sys, opts, minChannels, ringMax, model.Ring, log)
		ringGraph = res.Graph
		metrics.ObserveSearchIterations(res.Iterations)
		switch {
		case ringGraph.NumChannels() == 0:
			runResult = "no-feasible-plan"
			log.Append(decisionlog.PhaseRingSearch, "ring search found no feasible plan", "speed array and relaxation cascade exhausted", nil, "spec §7 no-feasible-plan", nil)
		case res.TimedOut:
			runResult = "best-effort"
			log.Append(decisionlog.PhaseRingSearch, "ring search timed out", "returning best-so-far channel set", nil, "spec §5 budget exhaustion", nil)
		case !res.Optimal:
			runResult = "best-effort"
		}
	}

	ringChannels := maxInt(1, ringGraph.NumChannels())
	treeRes := search.Run(sys, opts, 1, ringChannels, model.BalancedTree, log)

	search.RingSetup(ringGraph)

	var balancedSpeed float64
	var balancedIntraType, balancedInterType model.LinkType
	if treeRes.Graph != nil && treeRes.Graph.NumChannels() > 0 {
		balancedSpeed = treeRes.Graph.IntraSpeed
		balancedIntraType = treeRes.Graph.IntraLinkType
		balancedInterType = treeRes.Graph.InterLinkType
	}

	treeGraph := search.ChannelSetup(ringGraph, balancedSpeed, balancedIntraType, balancedInterType)

	log.Append(decisionlog.PhaseChannelSetup, "completed ring setup and channel doubling",
		fmt.Sprintf("%d ring channels, %d tree channels", ringGraph.NumChannels(), treeGraph.NumChannels()), nil, "spec §4.E.7", nil)

	if matchedID != "" {
		metrics.AddPatternMatch(matchedID)
	}
	metrics.AddRun(runResult, time.Since(start))

	return &Plan{System: sys, Ring: ringGraph, Tree: treeGraph, Log: log, MatchedPatternID: matchedID}, nil
}

// channelBounds resolves minChannels/maxChannels from options, per spec
// §4.G step 5: minChannels = max(1, option), maxChannels = min(64,
// option), with maxChannels >= minChannels.
func channelBounds(opts model.Options) (int, int) {
	min := 1
	if v, ok := opts.Value(model.OptMinChannels); ok {
		if iv, ok := v.(int); ok && iv > min {
			min = iv
		}
	}
	if min > model.MaxChannels {
		min = model.MaxChannels
	}
	max := model.MaxChannels
	if v, ok := opts.Value(model.OptMaxChannels); ok {
		if iv, ok := v.(int); ok && iv < max && iv > 0 {
			max = iv
		}
	}
	if max < min {
		max = min
	}
	return min, max
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
