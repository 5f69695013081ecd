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

// Package pathengine computes all-pairs best paths between compute
// endpoints via layered breadth-first relaxation, upgrades GPU->NIC paths
// through a peer-proxy pass, and trims unreachable nodes, per spec §4.D.
package pathengine

import (
	"fmt"

	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/model"
)

// ComputeAllPairs runs the all-pairs best-path computation from every GPU
// and NIC source, per spec §4.D.1, followed by the PXN peer-proxy upgrade
// pass (§4.D.2) unless disabled.
func ComputeAllPairs(sys *model.System, opts model.Options, log *decisionlog.Log) {
	adj := sys.Adjacency()
	sys.Paths = make(map[model.PathKey]*model.Path)

	nvbDisable := opts.Bool(model.OptNVBDisable)

	for _, src := range sys.GPUs() {
		relaxFrom(sys, adj, src.ID, nvbDisable)
	}
	for _, src := range sys.NICs() {
		relaxFrom(sys, adj, src.ID, nvbDisable)
	}

	nMissing := fillDIS(sys, log)
	if nMissing > 0 {
		log.Append(decisionlog.PhaseComputePaths, "recorded unreachable endpoint pairs as DIS",
			fmt.Sprintf("%d GPU/NIC pairs had no best path", nMissing), nil, "spec §7 path-not-found", nil)
	}

	log.Append(decisionlog.PhaseComputePaths, "computed all-pairs best paths",
		fmt.Sprintf("layered BFS from %d GPU and %d NIC sources", len(sys.GPUs()), len(sys.NICs())),
		nil, "spec §4.D.1", map[string]interface{}{"nvb-disable": nvbDisable})

	if !opts.Bool(model.OptPXNDisable) {
		upgradePXN(sys, opts, log)
	} else {
		log.Append(decisionlog.PhaseComputePaths, "skipped PXN upgrade pass", "pxn-disable option is set", nil, "spec §4.D.2", nil)
	}
}

// dominates implements spec §4.D.1's domination contract: new dominates
// old iff old.bandwidth == 0, or old has more hops and less bandwidth.
func dominates(old *model.Path, newBW float64, newHops int) bool {
	if old == nil {
		return true
	}
	if old.Bandwidth == 0 {
		return true
	}
	return old.HopCount() > newHops && old.Bandwidth < newBW
}

func relaxFrom(sys *model.System, adj map[string][]*model.Link, src string, nvbDisable bool) {
	sys.SetPath(&model.Path{Src: src, Dst: src, Type: model.PTLOC, Bandwidth: model.LocalLoopBandwidth, Hops: nil})

	type frontierEntry struct {
		node string
		path *model.Path
	}

	frontier := []frontierEntry{{node: src, path: mustGet(sys, src, src)}}
	visited := map[string]bool{src: true}

	for len(frontier) > 0 {
		next := []frontierEntry{}
		nextSeen := map[string]bool{}

		for _, cur := range frontier {
			for _, l := range adj[cur.node] {
				to := l.Dst
				if to == src {
					continue
				}

				toNode, ok := sys.NodeByID(to)
				if !ok {
					continue
				}

				// GPU passthrough guard (spec §4.D.1): crossing through a
				// GPU that is not the source is only permitted when nvb is
				// enabled, the traversing link is NVLink, the neighbor is
				// a GPU, and the accumulated hop count so far is <= 1.
				fromNode, _ := sys.NodeByID(cur.node)
				if fromNode != nil && fromNode.Type == model.GPU && cur.node != src {
					if nvbDisable || l.Type != model.NVL || toNode.Type != model.GPU || cur.path.HopCount() > 1 {
						continue
					}
				}

				newBW := minf(cur.path.Bandwidth, l.Bandwidth)
				newHopCount := cur.path.HopCount() + 1

				old, hasOld := sys.Path(src, to)
				var oldForDom *model.Path
				if hasOld {
					oldForDom = old
				}
				if !dominates(oldForDom, newBW, newHopCount) {
					continue
				}

				newHops := make([]model.Hop, len(cur.path.Hops), len(cur.path.Hops)+1)
				copy(newHops, cur.path.Hops)
				newHops = append(newHops, model.Hop{Dst: to, Bandwidth: l.Bandwidth, LinkType: l.Type})

				priorType := model.PTLOC
				if hasOld {
					priorType = cur.path.Type
				} else if cur.node != src {
					priorType = cur.path.Type
				}
				hopType := classifyHop(sys, cur.node, to, l.Type, priorType, newHopCount)
				overallType := cur.path.Type
				if hopType > overallType {
					overallType = hopType
				}

				newPath := &model.Path{Src: src, Dst: to, Type: overallType, Bandwidth: newBW, Hops: newHops}
				sys.SetPath(newPath)

				if !nextSeen[to] {
					nextSeen[to] = true
					next = append(next, frontierEntry{node: to, path: newPath})
				}
				visited[to] = true
			}
		}

		frontier = next
	}
}

func mustGet(sys *model.System, src, dst string) *model.Path {
	p, _ := sys.Path(src, dst)
	return p
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// classifyHop computes the hop's contribution to the path type, per spec
// §4.D.1's hop-classification table. Folds into the overall path type as
// the max (worst) of prior path type and this hop.
func classifyHop(sys *model.System, from, to string, l model.LinkType, pathSoFar model.PathType, hopCount int) model.PathType {
	if l == model.NET {
		return model.PTLOC
	}

	fromNode, _ := sys.NodeByID(from)
	toNode, _ := sys.NodeByID(to)

	if fromNode != nil && toNode != nil && fromNode.Type == model.PCIeSwitch && toNode.Type == model.PCIeSwitch {
		return model.PTPXB
	}
	if l == model.PCI && fromNode != nil && toNode != nil && (fromNode.Type == model.CPU || toNode.Type == model.CPU) {
		return model.PTPHB
	}
	if fromNode != nil && fromNode.Type == model.GPU && pathSoFar == model.PTNVL && l == model.NVL && hopCount > 1 {
		return model.PTNVB
	}

	switch l {
	case model.LOC:
		return model.PTLOC
	case model.NVL:
		return model.PTNVL
	case model.PCI:
		return model.PTPIX
	case model.C2C:
		return model.PTC2C
	case model.SYS:
		return model.PTSYS
	default:
		return model.PTSYS
	}
}

// fillDIS records an explicit DIS path entry (zero bandwidth, no hops) for
// every GPU-GPU and GPU-NIC pair that the relaxation left unreached, per
// spec §7: missing best-path situations produce DIS entries, not errors.
func fillDIS(sys *model.System, log *decisionlog.Log) int {
	gpus := sys.GPUs()
	nics := sys.NICs()
	missing := 0

	for _, a := range gpus {
		for _, b := range gpus {
			if a.ID == b.ID {
				continue
			}
			if _, ok := sys.Path(a.ID, b.ID); !ok {
				sys.SetPath(&model.Path{Src: a.ID, Dst: b.ID, Type: model.PTDIS, Bandwidth: 0, Hops: nil})
				missing++
			}
		}
		for _, n := range nics {
			if _, ok := sys.Path(a.ID, n.ID); !ok {
				sys.SetPath(&model.Path{Src: a.ID, Dst: n.ID, Type: model.PTDIS, Bandwidth: 0, Hops: nil})
				missing++
			}
		}
	}

	_ = log
	return missing
}

// upgradePXN implements the peer-proxy upgrade pass of spec §4.D.2: for
// each NIC, route other GPUs' traffic through the NIC's best-connected
// ("local") GPU when that improves on their direct path.
func upgradePXN(sys *model.System, opts model.Options, log *decisionlog.Log) {
	threshold := model.PTPXB
	if opts.Bool(model.OptPXNC2C) {
		threshold = model.PTP2C
	}

	upgraded := 0
	for _, nic := range sys.NICs() {
		localGPU, localPath := bestDirectPath(sys, sys.GPUs(), nic.ID)
		if localGPU == "" {
			continue
		}
		if localPath.Type > threshold {
			continue
		}

		for _, g := range sys.GPUs() {
			if g.ID == localGPU {
				continue
			}
			g2local, ok := sys.Path(g.ID, localGPU)
			if !ok || g2local.Type > model.PTNVL {
				continue
			}

			cur, hasCur := sys.Path(g.ID, nic.ID)
			shouldUpgrade := !hasCur
			if hasCur {
				shouldUpgrade = localPath.Bandwidth > cur.Bandwidth || cur.Type > model.PTPXN
			}
			if !shouldUpgrade {
				continue
			}

			newBW := minf(g2local.Bandwidth, localPath.Bandwidth)
			newHops := make([]model.Hop, 0, len(g2local.Hops)+len(localPath.Hops))
			newHops = append(newHops, g2local.Hops...)
			newHops = append(newHops, localPath.Hops...)

			sys.SetPath(&model.Path{Src: g.ID, Dst: nic.ID, Type: model.PTPXN, Bandwidth: newBW, Hops: newHops})
			upgraded++
		}
	}

	log.Append(decisionlog.PhaseComputePaths, "ran PXN peer-proxy upgrade pass",
		fmt.Sprintf("upgraded %d GPU->NIC paths via a peer GPU", upgraded), nil, "spec §4.D.2",
		map[string]interface{}{"threshold": threshold.String()})
}

// bestDirectPath returns the GPU with the best (smallest path type,
// highest bandwidth tiebreak) direct path to dst among candidates.
func bestDirectPath(sys *model.System, candidates []*model.Node, dst string) (string, *model.Path) {
	var bestID string
	var best *model.Path
	for _, g := range candidates {
		p, ok := sys.Path(g.ID, dst)
		if !ok {
			continue
		}
		if best == nil || p.Type < best.Type || (p.Type == best.Type && p.Bandwidth > best.Bandwidth) {
			best = p
			bestID = g.ID
		}
	}
	return bestID, best
}

// Trim removes nodes unreachable from every GPU over the undirected link
// graph, along with their incident links and paths, per spec §4.D.3.
func Trim(sys *model.System, log *decisionlog.Log) {
	undirected := make(map[string]map[string]bool)
	for _, l := range sys.Links {
		if undirected[l.Src] == nil {
			undirected[l.Src] = make(map[string]bool)
		}
		undirected[l.Src][l.Dst] = true
		if undirected[l.Dst] == nil {
			undirected[l.Dst] = make(map[string]bool)
		}
		undirected[l.Dst][l.Src] = true
	}

	visited := make(map[string]bool)
	queue := make([]string, 0, len(sys.GPUs()))
	for _, g := range sys.GPUs() {
		if !visited[g.ID] {
			visited[g.ID] = true
			queue = append(queue, g.ID)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for n := range undirected[cur] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}

	before := len(sys.Nodes)
	keptNodes := make([]*model.Node, 0, len(sys.Nodes))
	for _, n := range sys.Nodes {
		if visited[n.ID] {
			keptNodes = append(keptNodes, n)
		}
	}
	sys.Nodes = keptNodes

	keptLinks := make([]*model.Link, 0, len(sys.Links))
	for _, l := range sys.Links {
		if visited[l.Src] && visited[l.Dst] {
			keptLinks = append(keptLinks, l)
		}
	}
	sys.Links = keptLinks

	for k := range sys.Paths {
		if !visited[k.Src] || !visited[k.Dst] {
			delete(sys.Paths, k)
		}
	}

	sys.RebuildIndex()
	sys.RecomputeStats()

	removed := before - len(sys.Nodes)

	sys.InterNode = false
	gpus := sys.GPUs()
	for _, a := range gpus {
		for _, b := range gpus {
			if a.ID == b.ID {
				continue
			}
			p, ok := sys.Path(a.ID, b.ID)
			if !ok || p.Type >= model.PTNET {
				sys.InterNode = true
			}
		}
	}

	log.Append(decisionlog.PhaseTrimSystem, "trimmed unreachable nodes",
		fmt.Sprintf("removed %d of %d nodes unreachable from any GPU", removed, before), nil, "spec §4.D.3",
		map[string]interface{}{"interNode": sys.InterNode})
}
