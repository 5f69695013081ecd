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

package search

import (
	"fmt"

	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/model"
)

// Result is the outcome of the two-phase outer loop: the best TopoGraph
// found (possibly empty), whether any attempt hit a budget, and whether
// the search completed with a provably optimal (speed*channels >=
// totalBandwidth) solution.
type Result struct {
	Graph     *model.TopoGraph
	TimedOut  bool
	Optimal   bool
	Iterations int
}

// Run executes the two-phase outer loop of spec §4.E.6 for the given
// pattern, minChannels/maxChannels bound, returning the best channel set
// found across the speed array and relaxation cascade.
func Run(sys *model.System, opts model.Options, minChannels, maxChannels int, pattern model.Pattern, log *decisionlog.Log) Result {
	gpuOrder := idsOf(sys.GPUs())
	if len(gpuOrder) == 0 {
		return Result{Graph: model.NewTopoGraph(pattern)}
	}

	minIntra, maxIntra, minInter, maxInter := intraInterRanges(sys, sys.InterNode)
	minGen := minGPUGeneration(sys)

	s := newState(sys, model.GlobalSearchBudget)

	var best []*model.Channel
	var bestSpeed float64
	optimal := false

	crossNicOpt, _ := opts.Value(model.OptCrossNic)

	isAMDSysSYS := isAMDx86SysIntra(sys, minIntra)

	speeds := model.SpeedArray(minGen, sys.InterNode)
	startIdx := findStartSpeedIndex(speeds, sys, minChannels, pattern, len(gpuOrder))

	pat := pattern
	for si := startIdx; si < len(speeds); si++ {
		speed := speeds[si]

		sameChannels := 1
		typeIntra := minIntra
		typeInter := minInter
		crossNic := 0
		if v, ok := crossNicOpt.(int); ok && v != 2 {
			crossNic = v
		}

		for {
			cst := constraints{typeIntra: typeIntra, typeInter: typeInter, interNode: sys.InterNode}
			attemptBudget := model.DefaultAttemptBudget
			if sameChannels == 1 {
				attemptBudget = model.SameChannelAttemptBudget
			}
			if pat == model.BalancedTree {
				attemptBudget = model.TreeAttemptBudget
			}

			s.resetBandwidthFrom(sys)
			res := searchForChannels(sys, s, gpuOrder, speed, maxChannels, sameChannels, attemptBudget, cst)

			if len(res.channels) >= minChannels {
				if aggregateBandwidth(res.channels) > aggregateBandwidth(best) {
					best = res.channels
					bestSpeed = speed
				}

				if !res.timedOut && speed*float64(len(res.channels)) >= sys.TotalBandwidth {
					optimal = true
					log.Append(decisionlog.PhaseRingSearch, "accepted optimal channel set",
						fmt.Sprintf("speed=%.2f channels=%d meets total bandwidth", speed, len(res.channels)),
						nil, "spec §4.E.6 step 4", map[string]interface{}{"speed": speed, "channels": len(res.channels)})
					goto doubling
				}
			}

			if !relax(&sameChannels, &typeIntra, maxIntra, &typeInter, maxInter, &pat, sys.InterNode, minGen, &crossNic, crossNicOpt, isAMDSysSYS) {
				break
			}
		}
	}

doubling:
	if best != nil && bestSpeed >= model.ChannelDoublingThreshold && len(best) < maxChannels {
		s.resetBandwidthFrom(sys)
		cst := constraints{typeIntra: maxIntra, typeInter: maxInter, interNode: sys.InterNode}
		doubled := searchForChannels(sys, s, gpuOrder, bestSpeed, len(best)*2, 0, model.DefaultAttemptBudget, cst)
		if aggregateBandwidth(doubled.channels) > aggregateBandwidth(best) {
			best = doubled.channels
			log.Append(decisionlog.PhaseRingSearch, "accepted channel-doubling candidate",
				fmt.Sprintf("doubled to %d channels, aggregate bandwidth improved", len(best)),
				nil, "spec §4.E.6 channel doubling", nil)
		}
	}

	if best != nil {
		best = phase2(sys, s, gpuOrder, best, bestSpeed, speeds, startIdx, maxChannels, log)
	}

	g := model.NewTopoGraph(pat)
	if best != nil {
		g.Channels = best
		g.IntraSpeed = best[0].Bandwidth
		g.InterSpeed = best[0].Bandwidth
	}

	if best == nil {
		log.Append(decisionlog.PhaseRingSearch, "search exhausted without a feasible plan",
			"all speeds and relaxations were tried", nil, "spec §7 no-feasible-plan", nil)
	}

	return Result{Graph: g, TimedOut: s.timedOut, Optimal: optimal, Iterations: s.globalIters}
}

// phase2 tries the speeds above the Phase-1 starting index (speeds[startIdx-1]
// up to speeds[0]) with sameChannels=1 and the widest tiers, maxIntra and
// maxInter; it does not reuse the tiers or the pattern that Phase 1 ended
// on. It replaces best iff speed*channels strictly improves.
func phase2(sys *model.System, s *state, gpuOrder []string, best []*model.Channel, bestSpeed float64, speeds []float64, startIdx, maxChannels int, log *decisionlog.Log) []*model.Channel {
	minIntra, maxIntra, minInter, maxInter := intraInterRanges(sys, sys.InterNode)
	_ = minIntra
	_ = minInter
	cst := constraints{typeIntra: maxIntra, typeInter: maxInter, interNode: sys.InterNode}

	bestAgg := aggregateBandwidth(best)

	for si := startIdx - 1; si >= 0; si-- {
		speed := speeds[si]
		s.resetBandwidthFrom(sys)
		res := searchForChannels(sys, s, gpuOrder, speed, maxChannels, 1, model.DefaultAttemptBudget, cst)
		agg := aggregateBandwidth(res.channels)
		if agg > bestAgg {
			best = res.channels
			bestAgg = agg
			bestSpeed = speed
			log.Append(decisionlog.PhaseRingSearch, "phase 2 improved channel set",
				fmt.Sprintf("higher speed %.2f strictly improves aggregate bandwidth", speed), nil, "spec §4.E.6 Phase 2", nil)
		}
	}
	_ = bestSpeed

	return best
}

// relax applies one step of the constraint-relaxation cascade of spec
// §4.E.6 step 5, mutating the relevant tier in place. Returns false when
// relaxation is exhausted at the current speed.
func relax(sameChannels *int, typeIntra *model.PathType, maxIntra model.PathType, typeInter *model.PathType, maxInter model.PathType, pattern *model.Pattern, interNode bool, minGen int, crossNic *int, crossNicOpt interface{}, amdException bool) bool {
	if *sameChannels == 1 && !amdException {
		*sameChannels = 0
		return true
	}
	if minGen >= 90 && *pattern == model.BalancedTree {
		*pattern = model.Ring
		*sameChannels = 1
		return true
	}
	if *typeIntra < maxIntra {
		*typeIntra++
		*sameChannels = 1
		return true
	}
	if interNode && *typeInter < maxInter {
		*typeInter++
		*sameChannels = 1
		return true
	}
	if interNode {
		if v, ok := crossNicOpt.(string); ok && v == "auto" && *crossNic == 0 {
			*crossNic = 1
			*sameChannels = 1
			return true
		}
	}
	return false
}

// isAMDx86SysIntra implements the AMD exception of spec §4.E.6: for
// (x86, AMD, intra path type == SYS), sameChannels=0 is not permitted.
func isAMDx86SysIntra(sys *model.System, minIntra model.PathType) bool {
	if minIntra != model.PTSYS {
		return false
	}
	for _, c := range sys.CPUs() {
		if c.CPU == nil {
			continue
		}
		if c.CPU.Arch == model.ArchX86 && c.CPU.Vendor == model.VendorAMD {
			return true
		}
	}
	return false
}

// findStartSpeedIndex finds the first speed-array index i with
// speeds[i] <= system.maxBandwidth and speeds[i]*minChannels <=
// system.totalBandwidth, substituting totalBandwidth*nGpus/(nGpus-1) for
// tree patterns, per spec §4.E.6 step 2.
func findStartSpeedIndex(speeds []float64, sys *model.System, minChannels int, pattern model.Pattern, nGpus int) int {
	total := sys.TotalBandwidth
	if pattern == model.BalancedTree && nGpus > 1 {
		total = total * float64(nGpus) / float64(nGpus-1)
	}
	for i, sp := range speeds {
		if sp <= sys.MaxBandwidth && sp*float64(minChannels) <= total {
			return i
		}
	}
	return len(speeds) - 1
}

func idsOf(nodes []*model.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
