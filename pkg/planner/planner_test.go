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

package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/topoplan/pkg/config"
	"github.com/NVIDIA/topoplan/pkg/model"
)

func smallDGX() *config.Input {
	return &config.Input{
		Hardware: config.HardwareDesc{
			Name:        "dgx-small",
			GPU:         config.GPUDesc{Count: 4, Type: "nvidia", GenerationCode: 90},
			CPU:         config.CPUDesc{Count: 1, Arch: "x86", Vendor: "Intel", Model: model.IntelSRP},
			NIC:         config.NICDesc{Count: 2, SpeedGBs: 25},
			PCIe:        config.PCIeDesc{Gen: 5, Width: 16, SwitchesPerCPU: 1},
			NVSwitch:    config.NVSwitchDesc{Count: 2},
			NumaMapping: []int{0, 0, 0, 0},
		},
	}
}

func TestRunProducesRingAndTreeGraphs(t *testing.T) {
	plan, err := Run(smallDGX())
	require.NoError(t, err)
	require.NotNil(t, plan.Ring)
	require.NotNil(t, plan.Tree)
	require.GreaterOrEqual(t, plan.Ring.NumChannels(), 1)
	require.Equal(t, plan.Ring.NumChannels()*2, plan.Tree.NumChannels())
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	in := smallDGX()
	in.Hardware.NumaMapping = []int{99}
	_, err := Run(in)
	require.Error(t, err)
}

func TestRunDefersMultiServer(t *testing.T) {
	in := smallDGX()
	in.ScaleUnit = &config.ScaleUnit{ServerCount: 2, RailCount: 2, NetworkType: "rail-optimized"}

	plan, err := Run(in)
	require.NoError(t, err)
	require.Equal(t, 0, plan.Ring.NumChannels())
	require.Equal(t, 0, plan.Tree.NumChannels())
}

func TestChannelBoundsClampToMax(t *testing.T) {
	opts := model.DefaultOptions()
	opts.Set(model.OptMaxChannels, 2)
	min, max := channelBounds(opts)
	require.Equal(t, 1, min)
	require.Equal(t, 2, max)
}
