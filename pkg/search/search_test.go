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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/model"
	"github.com/NVIDIA/topoplan/pkg/pathengine"
)

// fourGPUFullMesh builds a 4-GPU fully-meshed intra-node system with no
// NICs, exercising the ring search in isolation from inter-node concerns.
func fourGPUFullMesh(bw float64) *model.System {
	sys := model.NewSystem()
	for i := 0; i < 4; i++ {
		sys.AddNode(&model.Node{ID: idOf(i), Type: model.GPU, GPU: &model.GPUAttrs{Generation: 90}})
	}
	gpus := sys.GPUs()
	for i := range gpus {
		for j := i + 1; j < len(gpus); j++ {
			sys.AddBidirectional(gpus[i].ID, gpus[j].ID, model.NVL, bw)
		}
	}
	sys.RecomputeStats()
	pathengine.ComputeAllPairs(sys, model.DefaultOptions(), decisionlog.New())
	return sys
}

func idOf(i int) string {
	return []string{"gpu-0", "gpu-1", "gpu-2", "gpu-3"}[i]
}

func TestRingAttemptFindsHamiltonianCycle(t *testing.T) {
	sys := fourGPUFullMesh(20)
	s := newState(sys, model.GlobalSearchBudget)
	gpuOrder := idsOf(sys.GPUs())
	cst := constraints{typeIntra: model.PTPHB, typeInter: model.PTNET, interNode: false}

	order := ringAttempt(sys, s, gpuOrder, 20, model.DefaultAttemptBudget, nil, cst)
	require.Len(t, order, 4)

	seen := map[string]bool{}
	for _, id := range order {
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestSearchForChannelsSingleGPU(t *testing.T) {
	s := newState(model.NewSystem(), model.GlobalSearchBudget)
	res := searchForChannels(model.NewSystem(), s, []string{"gpu-0"}, 20, 4, 1, model.DefaultAttemptBudget, constraints{})
	require.Len(t, res.channels, 4)
	require.Equal(t, []string{"gpu-0"}, res.channels[0].RingOrder)
}

func TestSearchForChannelsConsumesBandwidth(t *testing.T) {
	sys := fourGPUFullMesh(20)
	s := newState(sys, model.GlobalSearchBudget)
	cst := constraints{typeIntra: model.PTPHB, typeInter: model.PTNET, interNode: false}

	res := searchForChannels(sys, s, idsOf(sys.GPUs()), 20, 2, 0, model.DefaultAttemptBudget, cst)
	require.Len(t, res.channels, 2)
}

func TestIntraInterRangesDefaults(t *testing.T) {
	minIntra, maxIntra, minInter, maxInter := intraInterRanges(model.NewSystem(), false)
	require.Equal(t, model.PTPIX, minIntra)
	require.Equal(t, model.PTPHB, maxIntra)
	require.Equal(t, model.PTNET, minInter)
	require.Equal(t, model.PTNET, maxInter)
}

func TestRunProducesFeasibleRing(t *testing.T) {
	sys := fourGPUFullMesh(20)
	log := decisionlog.New()
	opts := model.DefaultOptions()

	res := Run(sys, opts, 1, 2, model.Ring, log)
	require.NotNil(t, res.Graph)
	require.GreaterOrEqual(t, res.Graph.NumChannels(), 1)
	require.Len(t, res.Graph.Channels[0].RingOrder, 4)
}

// twoGPUCrossSocket builds a 2-GPU system where the only path between the
// GPUs crosses a SYS link between their two CPUs, so the worst hop on
// every gpu-gpu path is classified worse than PXB.
func twoGPUCrossSocket(bw float64) *model.System {
	sys := model.NewSystem()
	sys.AddNode(&model.Node{ID: "gpu-0", Type: model.GPU, GPU: &model.GPUAttrs{Generation: 90}})
	sys.AddNode(&model.Node{ID: "gpu-1", Type: model.GPU, GPU: &model.GPUAttrs{Generation: 90}})
	sys.AddNode(&model.Node{ID: "cpu-0", Type: model.CPU, CPU: &model.CPUAttrs{Arch: model.ArchX86, Vendor: model.VendorIntel}})
	sys.AddNode(&model.Node{ID: "cpu-1", Type: model.CPU, CPU: &model.CPUAttrs{Arch: model.ArchX86, Vendor: model.VendorIntel}})
	sys.AddBidirectional("gpu-0", "cpu-0", model.PCI, bw)
	sys.AddBidirectional("gpu-1", "cpu-1", model.PCI, bw)
	sys.AddBidirectional("cpu-0", "cpu-1", model.SYS, bw)
	sys.RecomputeStats()
	pathengine.ComputeAllPairs(sys, model.DefaultOptions(), decisionlog.New())
	return sys
}

func TestConsumeRingAppliesCrossCPUOverhead(t *testing.T) {
	sys := twoGPUCrossSocket(16)
	p, ok := sys.Path("gpu-0", "gpu-1")
	require.True(t, ok)
	require.Equal(t, model.PTSYS, p.Type)

	s := newState(sys, model.GlobalSearchBudget)
	order := []string{"gpu-0", "gpu-1"}
	consumeRing(sys, s, order, 10)

	want := 16.0 - effectiveCost(10, model.PTSYS)
	require.Equal(t, want, s.remainingOf("gpu-0", "gpu-1"))
	require.NotEqual(t, 16.0-10, s.remainingOf("gpu-0", "gpu-1"))
}

func TestRingSetupPopulatesPrevNext(t *testing.T) {
	g := model.NewTopoGraph(model.Ring)
	g.Channels = append(g.Channels, &model.Channel{RingOrder: []string{"a", "b", "c"}})
	RingSetup(g)

	ch := g.Channels[0]
	require.Equal(t, "c", ch.RingPrev["a"])
	require.Equal(t, "b", ch.RingNext["a"])
	require.Equal(t, "a", ch.RingNext["c"])
}

func TestChannelSetupDoublesChannels(t *testing.T) {
	ring := model.NewTopoGraph(model.Ring)
	ring.Channels = append(ring.Channels, &model.Channel{Bandwidth: 20, RingOrder: []string{"a", "b", "c"}})

	tree := ChannelSetup(ring, 0, 0, 0)
	require.Len(t, tree.Channels, 2)
	require.Equal(t, []string{"a", "b", "c"}, tree.Channels[0].RingOrder)
	require.Equal(t, []string{"c", "b", "a"}, tree.Channels[1].RingOrder)
	require.Equal(t, "a", tree.Channels[0].TreeParent["b"])
}
