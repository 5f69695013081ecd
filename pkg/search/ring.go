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
	"sort"

	"github.com/NVIDIA/topoplan/pkg/model"
)

// candidate is a not-yet-visited GPU scored as an extension of a partial
// ring from the current GPU, per spec §4.E.3.
type candidate struct {
	id              string
	startIndex      int
	interBandwidth  float64
	interPciBW      float64
	interHopCount   int
	intraBandwidth  float64
	intraHopCount   int
	intraType       model.PathType
}

// constraints bounds which candidates are eligible during one attempt:
// the intra-node GPU-GPU path type must be at or better than typeIntra,
// and (for inter-node systems) a candidate that has a NIC path must have
// its best NIC path type at or better than typeInter; candidates with no
// NIC path are not filtered by typeInter. These tiers widen across the
// relaxation cascade of spec §4.E.6.
type constraints struct {
	typeIntra model.PathType
	typeInter model.PathType
	interNode bool
}

// scoreCandidates builds and orders the candidate list for extending a
// partial ring from cur, per the tuple ordering of spec §4.E.3: inter
// bandwidth desc, inter PCI bandwidth desc, inter hop count asc, intra
// bandwidth desc, intra hop count asc, insertion order asc. Candidates
// outside the current constraint tiers (as described on constraints) are
// excluded entirely.
func scoreCandidates(sys *model.System, cur string, visited map[string]bool, gpuOrder []string, c constraints) []candidate {
	cands := make([]candidate, 0, len(gpuOrder))

	for i, g := range gpuOrder {
		if visited[g] {
			continue
		}

		p, ok := sys.Path(cur, g)
		if !ok || p.Type > c.typeIntra {
			continue
		}

		bestBW, bestPciBW, bestHops, bestType := bestNICPath(sys, g)
		if c.interNode && bestBW > 0 && bestType > c.typeInter {
			continue
		}

		cand := candidate{
			id:             g,
			startIndex:     i,
			intraBandwidth: p.Bandwidth,
			intraHopCount:  p.HopCount(),
			intraType:      p.Type,
			interBandwidth: bestBW,
			interPciBW:     bestPciBW,
			interHopCount:  bestHops,
		}

		cands = append(cands, cand)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.interBandwidth != b.interBandwidth {
			return a.interBandwidth > b.interBandwidth
		}
		if a.interPciBW != b.interPciBW {
			return a.interPciBW > b.interPciBW
		}
		if a.interHopCount != b.interHopCount {
			return a.interHopCount < b.interHopCount
		}
		if a.intraBandwidth != b.intraBandwidth {
			return a.intraBandwidth > b.intraBandwidth
		}
		if a.intraHopCount != b.intraHopCount {
			return a.intraHopCount < b.intraHopCount
		}
		return a.startIndex < b.startIndex
	})

	return cands
}

// bestNICPath finds g's best path to any NIC (lowest type, then highest
// bandwidth), returning its bandwidth, the same bandwidth again as the
// value used for the interPciBW tiebreaker, its hop count and its type.
func bestNICPath(sys *model.System, g string) (bw, pciBW float64, hops int, typ model.PathType) {
	var best *model.Path
	for _, n := range sys.NICs() {
		p, ok := sys.Path(g, n.ID)
		if !ok || p.Type >= model.PTDIS {
			continue
		}
		if best == nil || p.Type < best.Type || (p.Type == best.Type && p.Bandwidth > best.Bandwidth) {
			best = p
		}
	}
	if best == nil {
		return 0, 0, 0, model.PTDIS
	}
	return best.Bandwidth, best.Bandwidth, best.HopCount(), best.Type
}

// ringAttempt tries to build a Hamiltonian cycle through all GPUs at the
// given speed, honoring sameChannels and the intra/inter path-type
// constraints, per spec §4.E.4. It returns the order found (nil if none),
// starting from the first GPU (in insertion order) that succeeds.
func ringAttempt(sys *model.System, s *state, gpuOrder []string, speed float64, attemptBudget int, fixedOrder []string, c constraints) []string {
	if len(fixedOrder) > 0 {
		if ringOrderFits(sys, s, fixedOrder, speed) {
			return fixedOrder
		}
		return nil
	}

	for _, start := range gpuOrder {
		visited := map[string]bool{start: true}
		order := []string{start}

		if backtrack(sys, s, gpuOrder, start, start, visited, &order, speed, attemptBudget, c) {
			return append([]string{}, order...)
		}
		if s.timedOut {
			return nil
		}
	}
	return nil
}

func backtrack(sys *model.System, s *state, gpuOrder []string, start, cur string, visited map[string]bool, order *[]string, speed float64, attemptBudget int, cst constraints) bool {
	if !s.tick(attemptBudget) {
		return false
	}

	if len(visited) == len(gpuOrder) {
		closeType := model.PTPXB
		if p, ok := sys.Path(cur, start); ok {
			closeType = p.Type
		}
		closeBW := s.remainingOf(cur, start)
		return closeBW >= effectiveCost(speed, closeType)
	}

	cands := scoreCandidates(sys, cur, visited, gpuOrder, cst)
	for _, c := range cands {
		cost := effectiveCost(speed, c.intraType)
		avail := s.remainingOf(cur, c.id)
		if avail < cost {
			continue
		}

		visited[c.id] = true
		*order = append(*order, c.id)
		s.consume(cur, c.id, cost)

		if backtrack(sys, s, gpuOrder, start, c.id, visited, order, speed, attemptBudget, cst) {
			return true
		}

		s.restore(cur, c.id, cost)
		*order = (*order)[:len(*order)-1]
		delete(visited, c.id)

		if s.timedOut {
			return false
		}
	}

	return false
}

// edgeCost resolves the effective bandwidth cost of consuming edge a->b at
// speed, applying the cross-CPU TLP overhead when a's path to b is worse
// than PXB.
func edgeCost(sys *model.System, a, b string, speed float64) float64 {
	typ := model.PTPXB
	if p, ok := sys.Path(a, b); ok {
		typ = p.Type
	}
	return effectiveCost(speed, typ)
}

// ringOrderFits checks whether every consecutive edge of order (including
// the closing edge) has remaining bandwidth >= its effective cost, used to
// validate a reused sameChannels ordering.
func ringOrderFits(sys *model.System, s *state, order []string, speed float64) bool {
	for i := 0; i < len(order); i++ {
		a := order[i]
		b := order[(i+1)%len(order)]
		if s.remainingOf(a, b) < edgeCost(sys, a, b, speed) {
			return false
		}
	}
	return true
}

func consumeRing(sys *model.System, s *state, order []string, speed float64) {
	for i := 0; i < len(order); i++ {
		a := order[i]
		b := order[(i+1)%len(order)]
		s.consume(a, b, edgeCost(sys, a, b, speed))
	}
}
