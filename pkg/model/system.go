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

package model

// PathKey identifies a best-path entry by ordered endpoint pair.
type PathKey struct {
	Src string
	Dst string
}

// System is the immutable aggregate produced by the topology builder and
// mutated in place by the path engine and trim phases.
type System struct {
	Nodes []*Node
	Links []*Link

	Paths map[PathKey]*Path

	MaxBandwidth   float64
	TotalBandwidth float64
	InterNode      bool

	byType  map[NodeType][]*Node
	byID    map[string]*Node
}

func NewSystem() *System {
	return &System{
		Nodes:  []*Node{},
		Links:  []*Link{},
		Paths:  make(map[PathKey]*Path),
		byType: make(map[NodeType][]*Node),
		byID:   make(map[string]*Node),
	}
}

// AddNode registers a node, indexing it by type and identity. Order of
// addition is preserved for both Nodes and the by-type index.
func (s *System) AddNode(n *Node) {
	s.Nodes = append(s.Nodes, n)
	s.byType[n.Type] = append(s.byType[n.Type], n)
	s.byID[n.ID] = n
}

// AddLink appends a directed link. Callers are responsible for adding the
// reverse direction per the bidirectional-link invariant.
func (s *System) AddLink(l *Link) {
	s.Links = append(s.Links, l)
}

// AddBidirectional adds a link in both directions with identical type and
// bandwidth, per the System invariant that every configured link appears
// both ways.
func (s *System) AddBidirectional(src, dst string, t LinkType, bw float64) {
	s.AddLink(&Link{Src: src, Dst: dst, Type: t, Bandwidth: bw})
	s.AddLink(&Link{Src: dst, Dst: src, Type: t, Bandwidth: bw})
}

func (s *System) NodeByID(id string) (*Node, bool) {
	n, ok := s.byID[id]
	return n, ok
}

// ByType returns the nodes of the given type in creation order.
func (s *System) ByType(t NodeType) []*Node {
	return s.byType[t]
}

func (s *System) GPUs() []*Node   { return s.byType[GPU] }
func (s *System) CPUs() []*Node   { return s.byType[CPU] }
func (s *System) NICs() []*Node   { return s.byType[NIC] }

// Path looks up the best known path between src and dst.
func (s *System) Path(src, dst string) (*Path, bool) {
	p, ok := s.Paths[PathKey{Src: src, Dst: dst}]
	return p, ok
}

func (s *System) SetPath(p *Path) {
	s.Paths[PathKey{Src: p.Src, Dst: p.Dst}] = p
}

// RecomputeStats derives MaxBandwidth and TotalBandwidth from the current
// link list; called after the builder wires links and again after trim
// removes some.
func (s *System) RecomputeStats() {
	var maxBW, total float64
	for _, l := range s.Links {
		if l.Bandwidth > maxBW {
			maxBW = l.Bandwidth
		}
		total += l.Bandwidth
	}
	s.MaxBandwidth = maxBW
	s.TotalBandwidth = total
}

// Adjacency returns, for each node ID, the list of directed links leaving
// it, built fresh from the current link list (used by BFS-style
// traversals in the path engine and trim).
func (s *System) Adjacency() map[string][]*Link {
	adj := make(map[string][]*Link, len(s.Nodes))
	for _, l := range s.Links {
		adj[l.Src] = append(adj[l.Src], l)
	}
	return adj
}

// RebuildIndex rebuilds the by-type and by-ID indices from Nodes; used
// after trim replaces the Nodes slice in place.
func (s *System) RebuildIndex() {
	s.byType = make(map[NodeType][]*Node)
	s.byID = make(map[string]*Node)
	for _, n := range s.Nodes {
		s.byType[n.Type] = append(s.byType[n.Type], n)
		s.byID[n.ID] = n
	}
}
