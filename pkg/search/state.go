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

// Package search implements the two-phase ring/tree search of spec §4.E:
// backtracking ring construction, scored candidate ordering, a
// constraint-relaxation cascade, tree derivation and channel doubling.
package search

import (
	"github.com/NVIDIA/topoplan/pkg/model"
)

type pairKey struct{ src, dst string }

// state is the mutable per-invocation search state threaded through every
// attempt: remaining bandwidth per directed endpoint pair, a channels
// slice, and the two iteration counters of spec §4.E.1. searchForChannels
// collects the channels it finds in its own attemptResult; the channels
// field here stays empty.
type state struct {
	remaining map[pairKey]float64

	channels []*model.Channel

	perAttemptIters int
	globalIters     int
	globalBudget    int
	timedOut        bool
}

func newState(sys *model.System, globalBudget int) *state {
	s := &state{
		remaining:    make(map[pairKey]float64, len(sys.Paths)),
		channels:     []*model.Channel{},
		globalBudget: globalBudget,
	}
	s.resetBandwidthFrom(sys)
	return s
}

// resetBandwidthFrom rebuilds the remaining-bandwidth map from the
// system's current paths; called once per attempt. Implementations may
// reuse the allocation, as here.
func (s *state) resetBandwidthFrom(sys *model.System) {
	for k := range s.remaining {
		delete(s.remaining, k)
	}
	for k, p := range sys.Paths {
		s.remaining[pairKey{k.Src, k.Dst}] = p.Bandwidth
	}
}

func (s *state) beginAttempt() {
	s.perAttemptIters = 0
}

// effectiveCost applies the cross-CPU TLP overhead to bandwidth
// accounting when a hop is classified worse than PXB, per spec §4.E.1.
func effectiveCost(speed float64, worstHopType model.PathType) float64 {
	if worstHopType > model.PTPXB {
		return speed * model.CrossCPUTLPOverhead
	}
	return speed
}

// consume decrements remaining bandwidth for edge src->dst by amount.
func (s *state) consume(src, dst string, amount float64) {
	s.remaining[pairKey{src, dst}] -= amount
}

// restore undoes a consume on backtrack.
func (s *state) restore(src, dst string, amount float64) {
	s.remaining[pairKey{src, dst}] += amount
}

func (s *state) remainingOf(src, dst string) float64 {
	return s.remaining[pairKey{src, dst}]
}

// tick advances both iteration counters and flags timeout when either
// budget is exceeded, per spec §4.E.4/§5.
func (s *state) tick(perAttemptBudget int) bool {
	s.perAttemptIters++
	s.globalIters++
	if s.perAttemptIters > perAttemptBudget || s.globalIters > s.globalBudget {
		s.timedOut = true
		return false
	}
	return true
}
