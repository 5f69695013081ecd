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

// Package topobuild materializes a model.System (nodes, links, bandwidth
// totals) from a declarative hardware description and an optional
// scale-unit description, following the wiring rules of spec §4.C.
package topobuild

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/NVIDIA/topoplan/internal/planerr"
	"github.com/NVIDIA/topoplan/pkg/config"
	"github.com/NVIDIA/topoplan/pkg/decisionlog"
	"github.com/NVIDIA/topoplan/pkg/model"
)

func gpuID(prefix string, i int) string { return fmt.Sprintf("%sgpu-%d", prefix, i) }
func cpuID(prefix string, i int) string { return fmt.Sprintf("%scpu-%d", prefix, i) }
func nicID(prefix string, i int) string { return fmt.Sprintf("%snic-%d", prefix, i) }
func nvsID(prefix string, i int) string { return fmt.Sprintf("%snvs-%d", prefix, i) }
func pciID(prefix string, i int) string { return fmt.Sprintf("%spci-%d", prefix, i) }
func netID(prefix string, i int) string { return fmt.Sprintf("%snet-%d", prefix, i) }

// Build constructs a System from hw and, when su is non-nil, replicates it
// into a multi-server scale unit per spec §4.C.
func Build(hw *config.HardwareDesc, su *config.ScaleUnit, log *decisionlog.Log) (*model.System, error) {
	if su != nil {
		return buildScaleUnit(hw, su, log)
	}
	sys, err := buildSingleServer(hw, "", log)
	if err != nil {
		return nil, err
	}
	sys.RecomputeStats()
	return sys, nil
}

func buildSingleServer(hw *config.HardwareDesc, prefix string, log *decisionlog.Log) (*model.System, error) {
	if err := validateHW(hw); err != nil {
		return nil, err
	}

	sys := model.NewSystem()

	for i := 0; i < hw.GPU.Count; i++ {
		sys.AddNode(&model.Node{
			ID: gpuID(prefix, i), Type: model.GPU, Index: i,
			GPU: &model.GPUAttrs{DevIndex: i, Rank: i, Generation: hw.GPU.GenerationCode, GDRSupport: hw.GPU.GDRSupport},
		})
	}
	for i := 0; i < hw.CPU.Count; i++ {
		sys.AddNode(&model.Node{
			ID: cpuID(prefix, i), Type: model.CPU, Index: i,
			CPU: &model.CPUAttrs{Arch: model.CPUArch(hw.CPU.Arch), Vendor: model.CPUVendor(hw.CPU.Vendor), Model: hw.CPU.Model, NumaID: i},
		})
	}
	for i := 0; i < hw.NIC.Count; i++ {
		sys.AddNode(&model.Node{
			ID: nicID(prefix, i), Type: model.NIC, Index: i,
			NIC: &model.NICAttrs{DevIndex: i, SpeedGBs: hw.NIC.SpeedGBs, GDRSupport: hw.NIC.GDRSupport, CollSupport: hw.NIC.CollSupport, MaxChannels: model.MaxChannels},
		})
	}
	for i := 0; i < hw.NVSwitch.Count; i++ {
		sys.AddNode(&model.Node{ID: nvsID(prefix, i), Type: model.NVSwitch, Index: i})
	}

	nSwitches := hw.PCIe.SwitchesPerCPU * hw.CPU.Count
	for i := 0; i < nSwitches; i++ {
		sys.AddNode(&model.Node{
			ID: pciID(prefix, i), Type: model.PCIeSwitch, Index: i,
			PCIe: &model.PCIeSwitchAttrs{Gen: hw.PCIe.Gen, Width: hw.PCIe.Width},
		})
	}

	wireGPUFabric(sys, hw, prefix, log)
	wireHostHierarchy(sys, hw, prefix, log)
	wireNICHierarchy(sys, hw, prefix, log)
	wireCrossSocket(sys, hw, prefix, log)

	log.Append(decisionlog.PhaseTopoBuild, "built single-server system",
		fmt.Sprintf("materialized %d GPU, %d CPU, %d NIC nodes for %q", hw.GPU.Count, hw.CPU.Count, hw.NIC.Count, hw.Name),
		nil, "spec §4.C", map[string]interface{}{"prefix": prefix})

	return sys, nil
}

func validateHW(hw *config.HardwareDesc) error {
	for _, n := range hw.NumaMapping {
		if n < 0 || n >= hw.CPU.Count {
			return planerr.New(planerr.InvalidConfig, fmt.Sprintf("numa mapping index %d out of range [0,%d)", n, hw.CPU.Count))
		}
	}
	if hw.PCIe.SwitchesPerCPU > 0 && hw.CPU.Count == 0 {
		return planerr.New(planerr.InvalidConfig, "switchesPerCPU > 0 but cpuCount == 0")
	}
	if hw.GPU.GenerationCode < 0 {
		return planerr.New(planerr.InvalidConfig, "gpu generation code must be non-negative")
	}
	return nil
}

func numaOf(hw *config.HardwareDesc, gpuIndex int) int {
	if gpuIndex < len(hw.NumaMapping) {
		return hw.NumaMapping[gpuIndex]
	}
	if hw.CPU.Count == 0 {
		return 0
	}
	return gpuIndex % hw.CPU.Count
}

func wireGPUFabric(sys *model.System, hw *config.HardwareDesc, prefix string, log *decisionlog.Log) {
	gpus := sys.GPUs()
	nvs := sys.ByType(model.NVSwitch)

	switch {
	case len(nvs) > 0:
		bw := model.NVLinkBandwidth(hw.GPU.GenerationCode)
		for _, g := range gpus {
			for _, s := range nvs {
				sys.AddBidirectional(g.ID, s.ID, model.NVL, bw)
			}
		}
		log.Append(decisionlog.PhaseTopoBuild, "wired GPU-NVSwitch fabric",
			fmt.Sprintf("every GPU connects to every NVSwitch at %.1f GB/s", bw), nil, "spec §4.C.1", nil)
	case hw.GPU.Type == "amd":
		bw := model.XGMIBandwidth(hw.GPU.GenerationCode)
		for i, g := range gpus {
			for j := i + 1; j < len(gpus); j++ {
				sys.AddBidirectional(g.ID, gpus[j].ID, model.NVL, bw)
			}
		}
		log.Append(decisionlog.PhaseTopoBuild, "wired AMD xGMI mesh",
			fmt.Sprintf("every GPU pair connects at %.1f GB/s xGMI", bw), nil, "spec §4.C.1", nil)
	case hw.GPU.NVLinksPerPair > 0:
		bw := model.NVLinkBandwidth(hw.GPU.GenerationCode) * float64(hw.GPU.NVLinksPerPair)
		for i, g := range gpus {
			for j := i + 1; j < len(gpus); j++ {
				sys.AddBidirectional(g.ID, gpus[j].ID, model.NVL, bw)
			}
		}
		log.Append(decisionlog.PhaseTopoBuild, "wired direct GPU-GPU NVLink mesh",
			fmt.Sprintf("every GPU pair connects at %.1f GB/s", bw), nil, "spec §4.C.1", nil)
	}
}

func wireHostHierarchy(sys *model.System, hw *config.HardwareDesc, prefix string, log *decisionlog.Log) {
	pciBW := model.PCIeBandwidth(hw.PCIe.Gen, hw.PCIe.Width)
	switches := sys.ByType(model.PCIeSwitch)
	cpus := sys.CPUs()

	// switches belonging to each CPU, in creation order
	switchesPerCPU := hw.PCIe.SwitchesPerCPU
	cpuSwitchAdded := make(map[string]bool)

	for i, g := range sys.GPUs() {
		numa := numaOf(hw, i)
		if numa >= len(cpus) {
			continue
		}
		cpu := cpus[numa]

		if len(switches) > 0 && switchesPerCPU > 0 {
			base := numa * switchesPerCPU
			sw := switches[base+(i%switchesPerCPU)]
			sys.AddBidirectional(g.ID, sw.ID, model.PCI, pciBW)
			key := sw.ID + "|" + cpu.ID
			if !cpuSwitchAdded[key] {
				sys.AddBidirectional(sw.ID, cpu.ID, model.PCI, pciBW)
				cpuSwitchAdded[key] = true
			}
		} else {
			sys.AddBidirectional(g.ID, cpu.ID, model.PCI, pciBW)
		}
	}

	log.Append(decisionlog.PhaseTopoBuild, "wired GPU host hierarchy",
		fmt.Sprintf("PCIe bandwidth %.1f GB/s, %d switches", pciBW, len(switches)), nil, "spec §4.C.2", nil)
}

func wireNICHierarchy(sys *model.System, hw *config.HardwareDesc, prefix string, log *decisionlog.Log) {
	pciBW := model.PCIeBandwidth(hw.PCIe.Gen, hw.PCIe.Width)
	switches := sys.ByType(model.PCIeSwitch)
	cpus := sys.CPUs()
	switchesPerCPU := hw.PCIe.SwitchesPerCPU
	cpuSwitchAdded := make(map[string]bool)

	for i, n := range sys.NICs() {
		var numa int
		if i < len(hw.NumaMapping) {
			numa = numaOf(hw, i)
		} else if len(cpus) > 0 {
			numa = i % len(cpus)
		}
		if numa >= len(cpus) {
			continue
		}
		cpu := cpus[numa]

		if len(switches) > 0 && switchesPerCPU > 0 {
			base := numa * switchesPerCPU
			sw := switches[base+(i%switchesPerCPU)]
			sys.AddBidirectional(n.ID, sw.ID, model.PCI, pciBW)
			key := sw.ID + "|" + cpu.ID
			if !cpuSwitchAdded[key] {
				sys.AddBidirectional(sw.ID, cpu.ID, model.PCI, pciBW)
				cpuSwitchAdded[key] = true
			}
		} else {
			sys.AddBidirectional(n.ID, cpu.ID, model.PCI, pciBW)
		}
	}

	log.Append(decisionlog.PhaseTopoBuild, "wired NIC host hierarchy", "NICs reuse matching GPU NUMA or round-robin across CPUs", nil, "spec §4.C.3", nil)
}

func wireCrossSocket(sys *model.System, hw *config.HardwareDesc, prefix string, log *decisionlog.Log) {
	bw := model.CrossSocketBandwidth(model.CPUArch(hw.CPU.Arch), model.CPUVendor(hw.CPU.Vendor), hw.CPU.Model)
	cpus := sys.CPUs()
	for i, a := range cpus {
		for j, b := range cpus {
			if i == j {
				continue
			}
			sys.AddLink(&model.Link{Src: a.ID, Dst: b.ID, Type: model.SYS, Bandwidth: bw})
		}
	}
	if len(cpus) > 1 {
		log.Append(decisionlog.PhaseTopoBuild, "wired cross-socket SYS links",
			fmt.Sprintf("every ordered CPU pair at %.1f GB/s", bw), nil, "spec §4.C.4", nil)
	}
}

func buildScaleUnit(hw *config.HardwareDesc, su *config.ScaleUnit, log *decisionlog.Log) (*model.System, error) {
	sys := model.NewSystem()

	for s := 0; s < su.ServerCount; s++ {
		prefix := fmt.Sprintf("s%d-", s)
		sub, err := buildSingleServer(hw, prefix, log)
		if err != nil {
			return nil, err
		}
		sys.Nodes = append(sys.Nodes, sub.Nodes...)
		sys.Links = append(sys.Links, sub.Links...)
	}
	sys.RebuildIndex()

	railCount := su.RailCount
	var switchCount int
	if su.NetworkType == "fat-tree" {
		switchCount = 1
	} else {
		switchCount = railCount
	}

	netSwitches := make([]*model.Node, switchCount)
	for i := 0; i < switchCount; i++ {
		n := &model.Node{ID: netID("", i), Type: model.NetSwitch, Index: i}
		sys.AddNode(n)
		netSwitches[i] = n
	}

	for s := 0; s < su.ServerCount; s++ {
		prefix := fmt.Sprintf("s%d-", s)
		for i := 0; i < hw.NIC.Count; i++ {
			var sw *model.Node
			if su.NetworkType == "fat-tree" {
				sw = netSwitches[0]
			} else {
				sw = netSwitches[i%railCount]
			}
			sys.AddBidirectional(nicID(prefix, i), sw.ID, model.NET, hw.NIC.SpeedGBs)
		}
	}

	sys.InterNode = true
	sys.RecomputeStats()

	log.Append(decisionlog.PhaseTopoBuild, "built multi-server scale unit",
		fmt.Sprintf("%d servers, network type %s, %d network switches", su.ServerCount, su.NetworkType, switchCount),
		nil, "spec §4.C", nil)

	klog.V(2).Infof("topobuild: scale unit with %d servers, interNode=true", su.ServerCount)

	return sys, nil
}
