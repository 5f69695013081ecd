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

package patterns

import (
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/model"
)

// permutationBudget bounds the exhaustive backtracking search for both the
// GPU and the NIC permutation, per pattern, per spec §4.F.
const permutationBudget = 100000

// permCacheSize bounds the number of (pattern, signature) permutation
// outcomes retained across planner invocations. A simulator harness or a
// scheduler re-planning the same handful of node pools recomputes the same
// signature repeatedly; this avoids re-running the bounded backtracking
// search for each one.
const permCacheSize = 256

type permResult struct {
	gpuPerm []int
	nicPerm []int
	ok      bool
}

var permCache, _ = lru.New(permCacheSize)

// permCacheKey fingerprints a (pattern, signature) pair so that repeated
// Match calls against the same hardware class hit permCache instead of
// re-running the backtracking search.
func permCacheKey(p Pattern, sig signature) string {
	return fmt.Sprintf("%s|%s|%v|%v|%v", p.ID, sig.numaSignature, sig.gpuToNuma, sig.nicToNuma, sig.connectivity)
}

// Match attempts to match sys against the registry and, on success,
// returns a parsed TopoGraph bypassing the ring/tree search. ok is false
// if model-match-disable is set or no pattern matches.
func Match(sys *model.System, opts model.Options, log *decisionlog.Log) (*model.TopoGraph, string, bool) {
	if opts.Bool(model.OptModelMatchDisable) {
		log.Append(decisionlog.PhasePatternMatch, "skipped pattern matching", "model-match-disable option is set", nil, "spec §4.F", nil)
		return nil, "", false
	}

	if g, ok := matchChordalRing(sys, log); ok {
		return g, "chordal-ring", true
	}
	if g, ok := matchAllToAll(sys, log); ok {
		return g, "all-to-all", true
	}

	sig := extractSignature(sys)

	for _, p := range Registry() {
		if p.NumGPUs != sig.numGPUs || p.NumCPUs != sig.numCPUs || p.NumNICs != sig.numNICs {
			continue
		}
		if p.NumaSignature != sig.numaSignature {
			continue
		}

		key := permCacheKey(p, sig)
		var res permResult
		if cached, hit := permCache.Get(key); hit {
			res = cached.(permResult)
		} else {
			gpuPerm, ok := findGPUPermutation(p, sig)
			if ok {
				var nicPerm []int
				nicPerm, ok = findNICPermutation(p, sig, gpuPerm)
				res = permResult{gpuPerm: gpuPerm, nicPerm: nicPerm, ok: ok}
			} else {
				res = permResult{ok: false}
			}
			permCache.Add(key, res)
		}
		if !res.ok {
			continue
		}

		g := buildGraphFromPattern(sys, p, res.gpuPerm, res.nicPerm)
		log.Append(decisionlog.PhasePatternMatch, "matched pre-computed pattern",
			"registry pattern "+p.ID+" matches signature and connectivity under permutation", nil, "spec §4.F",
			map[string]interface{}{"pattern": p.ID})
		return g, p.ID, true
	}

	log.Append(decisionlog.PhasePatternMatch, "no registry pattern matched", "falling through to ring/tree search", nil, "spec §4.F", nil)
	return nil, "", false
}

// findGPUPermutation searches for a bijection model-index -> system-index
// satisfying NUMA-equality and connectivity-matrix equality, via
// exhaustive backtracking bounded by permutationBudget steps.
func findGPUPermutation(p Pattern, sig signature) ([]int, bool) {
	n := p.NumGPUs
	perm := make([]int, n) // perm[modelIndex] = systemIndex
	used := make([]bool, n)
	steps := 0

	var bt func(i int) bool
	bt = func(i int) bool {
		steps++
		if steps > permutationBudget {
			return false
		}
		if i == n {
			return true
		}
		for s := 0; s < n; s++ {
			if used[s] {
				continue
			}
			if sig.gpuToNuma[s] != p.GPUToNuma[i] {
				continue
			}
			ok := true
			for j := 0; j < i; j++ {
				if p.Connectivity[i][j] != sig.connectivity[s][perm[j]] || p.Connectivity[j][i] != sig.connectivity[perm[j]][s] {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			perm[i] = s
			used[s] = true
			if bt(i + 1) {
				return true
			}
			used[s] = false
		}
		return false
	}

	if bt(0) {
		return perm, true
	}
	return nil, false
}

// findNICPermutation searches for a bijection model-index -> system-index
// satisfying NUMA-equality only, bounded by the same per-pattern budget.
func findNICPermutation(p Pattern, sig signature, gpuPerm []int) ([]int, bool) {
	n := p.NumNICs
	perm := make([]int, n)
	used := make([]bool, n)
	steps := 0

	var bt func(i int) bool
	bt = func(i int) bool {
		steps++
		if steps > permutationBudget {
			return false
		}
		if i == n {
			return true
		}
		for s := 0; s < n; s++ {
			if used[s] {
				continue
			}
			if sig.nicToNuma[s] != p.NICToNuma[i] {
				continue
			}
			perm[i] = s
			used[s] = true
			if bt(i + 1) {
				return true
			}
			used[s] = false
		}
		return false
	}

	if bt(0) {
		return perm, true
	}
	return nil, false
}

// buildGraphFromPattern parses the pattern's ring string, translates model
// GPU indices to system GPU identities via gpuPerm, and resolves a
// bandwidth per spec §4.F's probe-then-fallback rule.
func buildGraphFromPattern(sys *model.System, p Pattern, gpuPerm, nicPerm []int) *model.TopoGraph {
	gpus := sys.GPUs()
	nics := sys.NICs()

	rings := parseRingString(p.RingString, gpus, nics, gpuPerm, nicPerm)

	bw := probeBandwidth(sys, rings)

	g := model.NewTopoGraph(model.Ring)
	g.IntraLinkType = model.NVL
	g.InterLinkType = model.NET
	g.IntraSpeed = bw
	g.InterSpeed = bw

	for i, order := range rings {
		g.Channels = append(g.Channels, &model.Channel{Index: i, Bandwidth: bw, RingOrder: order})
	}
	return g
}

// parseRingString splits on '|', then within each segment skips any token
// starting with "N" (a NIC marker) and translates the remaining integer
// GPU model indices to system GPU identities via perm.
func parseRingString(s string, gpus, nics []*model.Node, gpuPerm, nicPerm []int) [][]string {
	var rings [][]string
	for _, segment := range strings.Split(s, "|") {
		var order []string
		for _, tok := range strings.Split(segment, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if strings.HasPrefix(tok, "N") {
				continue
			}
			modelIdx, err := strconv.Atoi(tok)
			if err != nil || modelIdx >= len(gpuPerm) {
				continue
			}
			sysIdx := gpuPerm[modelIdx]
			if sysIdx >= len(gpus) {
				continue
			}
			order = append(order, gpus[sysIdx].ID)
		}
		if len(order) > 0 {
			rings = append(rings, order)
		}
	}
	return rings
}

// probeBandwidth resolves the channel speed: the system's path bandwidth
// for the first edge of the first ring, falling back to the system's
// maximum link bandwidth when unavailable.
func probeBandwidth(sys *model.System, rings [][]string) float64 {
	if len(rings) > 0 && len(rings[0]) > 1 {
		if p, ok := sys.Path(rings[0][0], rings[0][1]); ok && p.Bandwidth > 0 {
			return p.Bandwidth
		}
	}
	return sys.MaxBandwidth
}

// matchChordalRing detects the specialized 8-GPU, 6-xGMI-edge topology and
// emits its hardcoded 6-ring ordering, per spec §4.F.
func matchChordalRing(sys *model.System, log *decisionlog.Log) (*model.TopoGraph, bool) {
	gpus := sys.GPUs()
	if len(gpus) != 8 {
		return nil, false
	}
	deg := xgmiOutDegree(sys)
	for _, g := range gpus {
		if deg[g.ID] != 6 {
			return nil, false
		}
	}

	order := make([]string, 8)
	for i, g := range gpus {
		order[i] = g.ID
	}

	g := model.NewTopoGraph(model.Ring)
	g.IntraLinkType = model.NVL
	g.InterLinkType = model.NET
	bw := sys.MaxBandwidth
	g.IntraSpeed, g.InterSpeed = bw, bw

	rings := chordalRingOrders(order)
	for i, ro := range rings {
		g.Channels = append(g.Channels, &model.Channel{Index: i, Bandwidth: bw, RingOrder: ro})
	}

	log.Append(decisionlog.PhasePatternMatch, "matched chordal-ring detector",
		"8 GPUs each with 6 NVLink-typed outgoing edges", nil, "spec §4.F chordal-ring", nil)
	return g, true
}

// chordalRingOrders derives the 6 hardcoded ring orderings for an 8-GPU
// chordal-ring topology by rotating the base order.
func chordalRingOrders(base []string) [][]string {
	rings := make([][]string, 0, 6)
	for r := 0; r < 6; r++ {
		order := make([]string, len(base))
		for i := range base {
			order[i] = base[(i+r)%len(base)]
		}
		rings = append(rings, order)
	}
	return rings
}

// matchAllToAll detects the specialized full-mesh topology (every GPU
// directly linked to every other GPU) and emits the predefined pattern of
// spec §4.F: a 6-ring set for 8 GPUs, or [forward, reverse] otherwise.
func matchAllToAll(sys *model.System, log *decisionlog.Log) (*model.TopoGraph, bool) {
	gpus := sys.GPUs()
	if len(gpus) == 0 {
		return nil, false
	}
	deg := xgmiOutDegree(sys)
	for _, g := range gpus {
		if deg[g.ID] != len(gpus)-1 {
			return nil, false
		}
	}

	order := make([]string, len(gpus))
	for i, g := range gpus {
		order[i] = g.ID
	}

	g := model.NewTopoGraph(model.Ring)
	g.IntraLinkType = model.NVL
	g.InterLinkType = model.NET
	bw := sys.MaxBandwidth
	g.IntraSpeed, g.InterSpeed = bw, bw

	var rings [][]string
	if len(gpus) == 8 {
		rings = chordalRingOrders(order)
	} else {
		reversed := make([]string, len(order))
		for i, id := range order {
			reversed[len(order)-1-i] = id
		}
		rings = [][]string{order, reversed}
	}

	for i, ro := range rings {
		g.Channels = append(g.Channels, &model.Channel{Index: i, Bandwidth: bw, RingOrder: ro})
	}

	log.Append(decisionlog.PhasePatternMatch, "matched all-to-all detector",
		"every GPU has nGpus-1 NVLink-typed outgoing edges", nil, "spec §4.F all-to-all", nil)
	return g, true
}
