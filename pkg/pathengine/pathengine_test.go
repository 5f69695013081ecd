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

package pathengine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/model"
)

// threeGPUViaSwitch builds a small system: 2 GPUs directly NVLinked, a
// third reachable only via a PCIe switch, a CPU above that switch, and a
// NIC off the same switch, exercising the relaxation, PXN upgrade and trim
// passes.
func threeGPUViaSwitch() *model.System {
	sys := model.NewSystem()
	sys.AddNode(&model.Node{ID: "gpu-0", Type: model.GPU})
	sys.AddNode(&model.Node{ID: "gpu-1", Type: model.GPU})
	sys.AddNode(&model.Node{ID: "gpu-2", Type: model.GPU})
	sys.AddNode(&model.Node{ID: "cpu-0", Type: model.CPU, CPU: &model.CPUAttrs{}})
	sys.AddNode(&model.Node{ID: "pci-0", Type: model.PCIeSwitch})
	sys.AddNode(&model.Node{ID: "nic-0", Type: model.NIC})

	sys.AddBidirectional("gpu-0", "gpu-1", model.NVL, 25)
	sys.AddBidirectional("gpu-0", "pci-0", model.PCI, 12)
	sys.AddBidirectional("gpu-2", "pci-0", model.PCI, 12)
	sys.AddBidirectional("pci-0", "cpu-0", model.PCI, 12)
	sys.AddBidirectional("nic-0", "pci-0", model.PCI, 12)

	sys.RecomputeStats()
	return sys
}

func TestComputeAllPairsClassifiesHops(t *testing.T) {
	sys := threeGPUViaSwitch()
	log := decisionlog.New()
	opts := model.DefaultOptions()

	ComputeAllPairs(sys, opts, log)

	p, ok := sys.Path("gpu-0", "gpu-1")
	require.True(t, ok)
	require.Equal(t, model.PTNVL, p.Type)
	require.Equal(t, 25.0, p.Bandwidth)

	p2, ok := sys.Path("gpu-0", "gpu-2")
	require.True(t, ok)
	require.Equal(t, model.PTPIX, p2.Type)
}

func TestClassifyHopPCIeSwitchToSwitchIsPXB(t *testing.T) {
	sys := model.NewSystem()
	sys.AddNode(&model.Node{ID: "gpu-0", Type: model.GPU})
	sys.AddNode(&model.Node{ID: "pci-0", Type: model.PCIeSwitch})
	sys.AddNode(&model.Node{ID: "pci-1", Type: model.PCIeSwitch})
	sys.AddNode(&model.Node{ID: "gpu-1", Type: model.GPU})

	sys.AddBidirectional("gpu-0", "pci-0", model.PCI, 12)
	sys.AddBidirectional("pci-0", "pci-1", model.PCI, 12)
	sys.AddBidirectional("pci-1", "gpu-1", model.PCI, 12)
	sys.RecomputeStats()

	ComputeAllPairs(sys, model.DefaultOptions(), decisionlog.New())

	p, ok := sys.Path("gpu-0", "gpu-1")
	require.True(t, ok)
	require.Equal(t, model.PTPXB, p.Type)
}

func TestComputeAllPairsFillsDISForUnreachable(t *testing.T) {
	sys := model.NewSystem()
	sys.AddNode(&model.Node{ID: "gpu-0", Type: model.GPU})
	sys.AddNode(&model.Node{ID: "gpu-1", Type: model.GPU})
	sys.RecomputeStats()

	log := decisionlog.New()
	ComputeAllPairs(sys, model.DefaultOptions(), log)

	p, ok := sys.Path("gpu-0", "gpu-1")
	require.True(t, ok)
	require.Equal(t, model.PTDIS, p.Type)
	require.Equal(t, 0.0, p.Bandwidth)
}

func TestUpgradePXNRoutesThroughLocalGPU(t *testing.T) {
	sys := threeGPUViaSwitch()
	log := decisionlog.New()
	ComputeAllPairs(sys, model.DefaultOptions(), log)

	p, ok := sys.Path("gpu-1", "nic-0")
	require.True(t, ok)
	require.LessOrEqual(t, p.Type, model.PTPXN)
}

func TestTrimRemovesUnreachableNodes(t *testing.T) {
	sys := threeGPUViaSwitch()
	sys.AddNode(&model.Node{ID: "nic-orphan", Type: model.NIC})

	log := decisionlog.New()
	ComputeAllPairs(sys, model.DefaultOptions(), log)
	Trim(sys, log)

	_, ok := sys.NodeByID("nic-orphan")
	require.False(t, ok)
	require.Len(t, sys.GPUs(), 3)
}

func TestDominatesPrefersMoreBandwidthFewerHops(t *testing.T) {
	old := &model.Path{Bandwidth: 10, Hops: []model.Hop{{}, {}}}
	require.True(t, dominates(old, 20, 1))
	require.False(t, dominates(old, 5, 1))
	require.False(t, dominates(old, 20, 3))
}
