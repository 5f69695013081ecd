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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/model"
	"github.com/NVIDIA/topoplan/pkg/pathengine"
)

func eightGPUFullMesh() *model.System {
	sys := model.NewSystem()
	for i := 0; i < 8; i++ {
		sys.AddNode(&model.Node{ID: idStr(i), Type: model.GPU, GPU: &model.GPUAttrs{Generation: 90}})
	}
	sys.AddNode(&model.Node{ID: "cpu-0", Type: model.CPU, CPU: &model.CPUAttrs{Vendor: model.VendorAMD, Arch: model.ArchX86}})
	sys.AddNode(&model.Node{ID: "cpu-1", Type: model.CPU, CPU: &model.CPUAttrs{Vendor: model.VendorAMD, Arch: model.ArchX86}})
	for i := 0; i < 8; i++ {
		sys.AddNode(&model.Node{ID: "nic-" + idStr(i), Type: model.NIC})
	}

	gpus := sys.GPUs()
	for i := range gpus {
		for j := i + 1; j < len(gpus); j++ {
			sys.AddBidirectional(gpus[i].ID, gpus[j].ID, model.NVL, 48)
		}
	}
	for i := 0; i < 4; i++ {
		sys.AddBidirectional(gpus[i].ID, "cpu-0", model.PCI, 12)
		sys.AddBidirectional("nic-"+idStr(i), "cpu-0", model.PCI, 12)
	}
	for i := 4; i < 8; i++ {
		sys.AddBidirectional(gpus[i].ID, "cpu-1", model.PCI, 12)
		sys.AddBidirectional("nic-"+idStr(i), "cpu-1", model.PCI, 12)
	}

	sys.RecomputeStats()
	pathengine.ComputeAllPairs(sys, model.DefaultOptions(), decisionlog.New())
	return sys
}

func idStr(i int) string {
	return []string{"gpu-0", "gpu-1", "gpu-2", "gpu-3", "gpu-4", "gpu-5", "gpu-6", "gpu-7"}[i]
}

func TestMatchAllToAllFullMesh(t *testing.T) {
	sys := eightGPUFullMesh()
	log := decisionlog.New()

	g, id, ok := Match(sys, model.DefaultOptions(), log)
	require.True(t, ok)
	require.Equal(t, "all-to-all", id)
	require.Equal(t, model.Ring, g.PatternTag)
	require.NotEmpty(t, g.Channels)
}

func TestMatchSkippedWhenDisabled(t *testing.T) {
	sys := eightGPUFullMesh()
	opts := model.DefaultOptions()
	opts.Set(model.OptModelMatchDisable, true)

	_, _, ok := Match(sys, opts, decisionlog.New())
	require.False(t, ok)
}

func TestParseRingStringSkipsNICTokens(t *testing.T) {
	gpus := []*model.Node{{ID: "g0"}, {ID: "g1"}, {ID: "g2"}}
	perm := []int{0, 1, 2}
	rings := parseRingString("0,N1,1,2", gpus, nil, perm, nil)
	require.Len(t, rings, 1)
	require.Equal(t, []string{"g0", "g1", "g2"}, rings[0])
}

func TestFindGPUPermutationRespectsNUMA(t *testing.T) {
	p := Pattern{
		NumGPUs:      2,
		GPUToNuma:    []int{0, 1},
		Connectivity: [][]int{{0, 1}, {1, 0}},
	}
	sig := signature{
		numGPUs:      2,
		gpuToNuma:    []int{1, 0},
		connectivity: [][]int{{0, 1}, {1, 0}},
	}
	perm, ok := findGPUPermutation(p, sig)
	require.True(t, ok)
	require.Equal(t, 1, perm[0])
	require.Equal(t, 0, perm[1])
}
