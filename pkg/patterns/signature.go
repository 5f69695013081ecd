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

	"github.com/NVIDIA/topoplan/pkg/model"
)

// signature is the current topology's extracted fingerprint, built the
// same way as a registry Pattern so the two can be compared directly.
type signature struct {
	numGPUs int
	numCPUs int
	numNICs int

	gpuToNuma []int
	nicToNuma []int

	connectivity [][]int

	numaSignature string
}

// extractSignature reconstructs the connectivity matrix (including partial
// meshes) and NUMA assignment from the system's nodes and links, per spec
// §4.F.
func extractSignature(sys *model.System) signature {
	gpus := sys.GPUs()
	cpus := sys.CPUs()
	nics := sys.NICs()

	sig := signature{
		numGPUs: len(gpus),
		numCPUs: len(cpus),
		numNICs: len(nics),
	}

	gpuIndex := make(map[string]int, len(gpus))
	for i, g := range gpus {
		gpuIndex[g.ID] = i
	}

	sig.connectivity = make([][]int, len(gpus))
	for i := range sig.connectivity {
		sig.connectivity[i] = make([]int, len(gpus))
	}
	for _, l := range sys.Links {
		if l.Type != model.NVL {
			continue
		}
		si, sok := gpuIndex[l.Src]
		di, dok := gpuIndex[l.Dst]
		if sok && dok {
			sig.connectivity[si][di] = 1
		}
	}

	sig.gpuToNuma = make([]int, len(gpus))
	for i, g := range gpus {
		sig.gpuToNuma[i] = bestNumaOf(sys, g.ID, cpus)
	}
	sig.nicToNuma = make([]int, len(nics))
	for i, n := range nics {
		sig.nicToNuma[i] = bestNumaOf(sys, n.ID, cpus)
	}

	gpuCount := make([]int, len(cpus))
	nicCount := make([]int, len(cpus))
	for _, numa := range sig.gpuToNuma {
		if numa >= 0 && numa < len(gpuCount) {
			gpuCount[numa]++
		}
	}
	for _, numa := range sig.nicToNuma {
		if numa >= 0 && numa < len(nicCount) {
			nicCount[numa]++
		}
	}
	for i := range cpus {
		sig.numaSignature += fmt.Sprintf("%d%d", gpuCount[i], nicCount[i])
	}

	return sig
}

// bestNumaOf finds the NUMA domain (CPU index) with the lowest-ranked
// (best) path from id, used to assign a GPU or NIC to its owning CPU for
// the signature.
func bestNumaOf(sys *model.System, id string, cpus []*model.Node) int {
	best := -1
	bestType := model.PTDIS
	for i, c := range cpus {
		p, ok := sys.Path(id, c.ID)
		if !ok {
			continue
		}
		if best == -1 || p.Type < bestType {
			best = i
			bestType = p.Type
		}
	}
	return best
}

// xgmiOutDegree counts NVL-typed outgoing edges per GPU, used by the
// chordal-ring and all-to-all detectors.
func xgmiOutDegree(sys *model.System) map[string]int {
	deg := make(map[string]int)
	for _, l := range sys.Links {
		if l.Type != model.NVL {
			continue
		}
		if n, ok := sys.NodeByID(l.Src); ok && n.Type == model.GPU {
			deg[l.Src]++
		}
	}
	return deg
}
