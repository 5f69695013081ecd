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

// intraInterRanges computes [minIntra, maxIntra] over all GPU-GPU paths
// and, for inter-node systems, [minInter, maxInter] over all GPU-NIC
// paths, with the defaults of spec §4.E.2 when no data exists.
func intraInterRanges(sys *model.System, interNode bool) (minIntra, maxIntra, minInter, maxInter model.PathType) {
	minIntra, maxIntra = model.PTPIX, model.PTPHB
	var sawIntra bool
	gpus := sys.GPUs()
	for _, a := range gpus {
		for _, b := range gpus {
			if a.ID == b.ID {
				continue
			}
			p, ok := sys.Path(a.ID, b.ID)
			if !ok {
				continue
			}
			if !sawIntra {
				minIntra, maxIntra = p.Type, p.Type
				sawIntra = true
				continue
			}
			if p.Type < minIntra {
				minIntra = p.Type
			}
			if p.Type > maxIntra {
				maxIntra = p.Type
			}
		}
	}

	minInter, maxInter = model.PTNET, model.PTNET
	if !interNode {
		return
	}

	minInter, maxInter = model.PTSYS, model.PTNET
	var sawInter bool
	for _, g := range gpus {
		for _, n := range sys.NICs() {
			p, ok := sys.Path(g.ID, n.ID)
			if !ok {
				continue
			}
			if !sawInter {
				minInter, maxInter = p.Type, p.Type
				sawInter = true
				continue
			}
			if p.Type < minInter {
				minInter = p.Type
			}
			if p.Type > maxInter {
				maxInter = p.Type
			}
		}
	}
	if !sawInter {
		minInter, maxInter = model.PTNET, model.PTNET
	}

	return
}

// minGPUGeneration returns the minimum GPU generation code across the
// system's GPU nodes (used to select the speed array).
func minGPUGeneration(sys *model.System) int {
	min := -1
	for _, g := range sys.GPUs() {
		if g.GPU == nil {
			continue
		}
		if min == -1 || g.GPU.Generation < min {
			min = g.GPU.Generation
		}
	}
	if min == -1 {
		return 0
	}
	return min
}
