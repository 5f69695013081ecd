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

import "github.com/NVIDIA/topoplan/pkg/model"

// RingSetup populates RingPrev/RingNext on every channel of g, treating
// its RingOrder as a closed loop, per spec §4.E.7.
func RingSetup(g *model.TopoGraph) {
	for _, ch := range g.Channels {
		n := len(ch.RingOrder)
		if n == 0 {
			continue
		}
		ch.RingPrev = make(map[string]string, n)
		ch.RingNext = make(map[string]string, n)
		for i, id := range ch.RingOrder {
			prev := ch.RingOrder[(i-1+n)%n]
			next := ch.RingOrder[(i+1)%n]
			ch.RingPrev[id] = prev
			ch.RingNext[id] = next
		}
	}
}

// DeriveTree builds a tree graph from a ring graph, copying the ring
// graph's link types and speeds, per spec
// §4.E.7: one tree channel per ring channel, a linear chain following the
// ring order with the first GPU as root and the last as tail leaf.
func DeriveTree(ringGraph *model.TopoGraph) *model.TopoGraph {
	tree := model.NewTopoGraph(model.BalancedTree)
	tree.IntraLinkType = ringGraph.IntraLinkType
	tree.InterLinkType = ringGraph.InterLinkType
	tree.IntraSpeed = ringGraph.IntraSpeed
	tree.InterSpeed = ringGraph.InterSpeed

	for i, rc := range ringGraph.Channels {
		tree.Channels = append(tree.Channels, chainChannel(i, rc.RingOrder, rc.Bandwidth))
	}
	return tree
}

// chainChannel builds a single linear-chain tree channel from order, with
// index idx and per-link bandwidth bw.
func chainChannel(idx int, order []string, bw float64) *model.Channel {
	ch := &model.Channel{
		Index:        idx,
		Bandwidth:    bw,
		RingOrder:    append([]string{}, order...),
		TreeParent:   make(map[string]string, len(order)),
		TreeChildren: make(map[string][]string, len(order)),
	}
	for i, id := range order {
		if i == 0 {
			continue
		}
		parent := order[i-1]
		ch.TreeParent[id] = parent
		ch.TreeChildren[parent] = append(ch.TreeChildren[parent], id)
		ch.TreeLinks = append(ch.TreeLinks, model.TreeEdge{Parent: parent, Child: id})
	}
	return ch
}

// ChannelSetup doubles tree channels per spec §4.E.7: for ring channel i,
// emits tree channel 2i with the forward chain and 2i+1 with the reverse
// chain (same ring order reversed). If balancedSpeed/balancedLinkType are
// non-zero (an independent balanced-tree search produced them), they
// override the values inherited from the ring graph.
func ChannelSetup(ringGraph *model.TopoGraph, balancedSpeed float64, balancedIntraType, balancedInterType model.LinkType) *model.TopoGraph {
	tree := model.NewTopoGraph(model.BalancedTree)

	tree.IntraLinkType = ringGraph.IntraLinkType
	tree.InterLinkType = ringGraph.InterLinkType
	tree.IntraSpeed = ringGraph.IntraSpeed
	tree.InterSpeed = ringGraph.InterSpeed
	if balancedSpeed != 0 {
		tree.IntraSpeed = balancedSpeed
		tree.InterSpeed = balancedSpeed
	}
	if balancedIntraType != 0 {
		tree.IntraLinkType = balancedIntraType
	}
	if balancedInterType != 0 {
		tree.InterLinkType = balancedInterType
	}

	for i, rc := range ringGraph.Channels {
		bw := rc.Bandwidth
		if balancedSpeed != 0 {
			bw = balancedSpeed
		}
		forward := chainChannel(2*i, rc.RingOrder, bw)
		tree.Channels = append(tree.Channels, forward)

		reversed := reverseOrder(rc.RingOrder)
		backward := chainChannel(2*i+1, reversed, bw)
		tree.Channels = append(tree.Channels, backward)
	}
	return tree
}

func reverseOrder(order []string) []string {
	out := make([]string, len(order))
	for i, id := range order {
		out[len(order)-1-i] = id
	}
	return out
}
