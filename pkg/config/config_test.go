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

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/topoplan/pkg/model"
)

const dgxTemplate = `
hardware:
  name: dgx-h100
  gpu:
    count: 8
    type: nvidia
    generation_code: 90
  cpu:
    count: 2
    arch: x86
    vendor: Intel
    model: 2
  nic:
    count: 8
    speed_gbs: 50
  pcie:
    gen: 5
    width: 16
    switches_per_cpu: 0
  nvswitch:
    count: 4
  numa_mapping: [0, 0, 0, 0, 1, 1, 1, 1]
options:
  nvb-disable: true
`

func TestLoad(t *testing.T) {
	file, err := os.CreateTemp("", "test-hw-*.yml")
	require.NoError(t, err)
	defer func() { _ = os.Remove(file.Name()) }()

	_, err = file.WriteString(dgxTemplate)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	in, err := Load(file.Name())
	require.NoError(t, err)
	require.Equal(t, "dgx-h100", in.Hardware.Name)
	require.Equal(t, 8, in.Hardware.GPU.Count)
	require.Equal(t, 90, in.Hardware.GPU.GenerationCode)
	require.Equal(t, 4, in.Hardware.NVSwitch.Count)
	require.Nil(t, in.ScaleUnit)

	opts, err := DecodeOptions(in.Options)
	require.NoError(t, err)
	require.True(t, opts.Bool(model.OptNVBDisable))
	require.False(t, opts.Bool(model.OptPXNDisable))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/no/such/file.yml")
	require.Error(t, err)
}

func TestDecodeOptionsIgnoresUnknown(t *testing.T) {
	opts, err := DecodeOptions(map[string]interface{}{
		"not-a-real-option": true,
		"pxn-disable":       true,
	})
	require.NoError(t, err)
	require.True(t, opts.Bool(model.OptPXNDisable))
}
