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

// Package patterns implements the pre-computed pattern matcher of spec
// §4.F: a registry of known production hardware signatures, exhaustive
// permutation matching under a bounded budget, and ring-string parsing.
package patterns

// Pattern models one known production hardware topology.
type Pattern struct {
	ID string

	NumGPUs int
	NumCPUs int
	NumNICs int

	XGMIPerGPU int

	GPUToNuma []int
	NICToNuma []int

	// Connectivity is the nGpus x nGpus row-major adjacency matrix: 1
	// where a direct GPU-GPU link exists.
	Connectivity [][]int

	// GDR is an optional nGpus x nNics GDR-level matrix; nil if unused.
	GDR [][]int

	// NumaSignature is "<gpuCount><nicCount>" concatenated per CPU.
	NumaSignature string

	// RingString is a pipe-separated list of pre-computed ring orderings;
	// tokens are GPU model indices, with NIC tokens prefixed "N".
	RingString string
}

func mesh(n int) [][]int {
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = 1
			}
		}
	}
	return m
}

// Registry is the built-in set of recognized patterns, grounded on common
// 8-GPU DGX-class and 8-GPU AMD-class single-server topologies.
func Registry() []Pattern {
	return []Pattern{
		{
			ID:            "dgx-a100-8gpu-2numa",
			NumGPUs:       8,
			NumCPUs:       2,
			NumNICs:       8,
			XGMIPerGPU:    0,
			GPUToNuma:     []int{0, 0, 0, 0, 1, 1, 1, 1},
			NICToNuma:     []int{0, 0, 0, 0, 1, 1, 1, 1},
			Connectivity:  mesh(8),
			NumaSignature: "4444",
			RingString:    "0,1,2,3,4,5,6,7|1,0,3,2,5,4,7,6|2,3,0,1,6,7,4,5|3,2,1,0,7,6,5,4|4,5,6,7,0,1,2,3|5,4,7,6,1,0,3,2",
		},
		{
			ID:            "mi300x-8gpu-2numa",
			NumGPUs:       8,
			NumCPUs:       2,
			NumNICs:       8,
			XGMIPerGPU:    7,
			GPUToNuma:     []int{0, 0, 0, 0, 1, 1, 1, 1},
			NICToNuma:     []int{0, 0, 0, 0, 1, 1, 1, 1},
			Connectivity:  mesh(8),
			NumaSignature: "4444",
			RingString:    "0,1,2,3,4,5,6,7|7,6,5,4,3,2,1,0",
		},
	}
}
