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

// LocalLoopBandwidth seeds search sources: a path from a node to itself is
// assigned this (deliberately very large) bandwidth.
const LocalLoopBandwidth = 5000.0

// CrossCPUTLPOverhead is the bandwidth-accounting penalty applied at
// search time (not at path-computation time) to hops that cross a CPU
// bridge worse than PXB.
const CrossCPUTLPOverhead = 6.0 / 5.0

// ChannelDoublingThreshold is the intra-node speed at or above which the
// search's conservative doubling step (§4.E.6) is attempted.
const ChannelDoublingThreshold = 25.0

// Search iteration budgets.
const (
	SameChannelAttemptBudget = 256
	TreeAttemptBudget        = 16384
	DefaultAttemptBudget     = 16384
	GlobalSearchBudget       = 524288
)

// MaxChannels is the hard cap on channel count regardless of options.
const MaxChannels = 64

// NVLinkBandwidth returns the per-link NVLink GB/s for a GPU generation
// code.
func NVLinkBandwidth(generation int) float64 {
	switch {
	case generation >= 100:
		return 24.0
	case generation >= 90:
		return 20.6
	case generation == 86:
		return 14.0
	case generation >= 80:
		return 20.0
	case generation >= 70:
		return 18.0
	case generation >= 60:
		return 14.0
	default:
		return 12.0
	}
}

// XGMIBandwidth returns the inter-GPU xGMI GB/s for an AMD architecture
// family (keyed loosely on generation code, since the hardware
// description carries no separate AMD family field).
func XGMIBandwidth(family int) float64 {
	switch {
	case family >= 4:
		return 48
	case family >= 3:
		return 36
	default:
		return 24
	}
}

// CrossSocketBandwidth returns SYS-link GB/s by CPU architecture/vendor
// and, for Intel, by model code.
func CrossSocketBandwidth(arch CPUArch, vendor CPUVendor, model int) float64 {
	switch vendor {
	case VendorIntel:
		switch model {
		case IntelSKL:
			return 10
		case IntelSRP:
			return 22
		case IntelERP:
			return 40
		default: // IntelBDW and unrecognized models
			return 6
		}
	case VendorZhaoxin:
		if model == ZhaoxinYongfeng {
			return 9
		}
		return 6
	case VendorAMD:
		return 16
	}
	switch arch {
	case ArchPOWER:
		return 32
	case ArchARM:
		return 6
	default:
		return 6
	}
}

// Intel CPU model codes consumed by CrossSocketBandwidth.
const (
	IntelBDW = iota
	IntelSKL
	IntelSRP
	IntelERP
)

// ZhaoxinYongfeng is the Zhaoxin model code with an elevated cross-socket
// bandwidth; all other Zhaoxin models fall back to the default.
const ZhaoxinYongfeng = 1

// PCIeBandwidth computes PCIe link bandwidth: 12.0 * (gen/3) * (width/16),
// baselined at Gen3 x16.
func PCIeBandwidth(gen, width int) float64 {
	return 12.0 * (float64(gen) / 3.0) * (float64(width) / 16.0)
}

// speed arrays, selected by minimum GPU generation across the system and
// by whether the search is intra-node or inter-node.
var (
	speedsPre90Intra  = []float64{40, 30, 20, 18, 15, 12, 10, 9, 7, 6, 5, 4, 3}
	speedsPre90Inter  = []float64{48, 30, 28, 24, 20, 18, 15, 12, 10, 9, 7, 6, 5, 4, 3, 2.4, 1.2, 0.24, 0.12}
	speedsSM90Intra   = []float64{60, 50, 40, 30, 24, 20, 15, 12, 11, 6, 3}
	speedsSM90Inter   = []float64{48, 45, 42, 40, 30, 24, 22, 20, 17.5, 15, 12, 6, 3, 2.4, 1.2, 0.24, 0.12}
	speedsSM100Intra  = []float64{90, 80, 70, 60, 50, 45, 40, 30, 24, 20, 19, 18}
	speedsSM100Inter  = []float64{96, 48, 45.1, 42, 40, 30, 24, 22, 20, 17.5, 15, 12, 6, 3, 2.4, 1.2, 0.24, 0.12}
)

// SpeedArray selects the search speed array for the given minimum GPU
// generation present in the system and the intra/inter-node axis.
func SpeedArray(minGeneration int, inter bool) []float64 {
	switch {
	case minGeneration >= 100:
		if inter {
			return speedsSM100Inter
		}
		return speedsSM100Intra
	case minGeneration >= 90:
		if inter {
			return speedsSM90Inter
		}
		return speedsSM90Intra
	default:
		if inter {
			return speedsPre90Inter
		}
		return speedsPre90Intra
	}
}
