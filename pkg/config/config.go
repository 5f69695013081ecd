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

// Package config loads a declarative hardware description, its optional
// scale-unit description and option overrides from YAML, the way a CLI or
// test harness hands input to the planner.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/topoplan/pkg/model"
)

// GPUDesc describes the GPU population of a single server.
type GPUDesc struct {
	Count          int    `yaml:"count" validate:"gte=0"`
	Type           string `yaml:"type" validate:"omitempty,oneof=nvidia amd"`
	GenerationCode int    `yaml:"generation_code"`
	NVLinksPerPair int    `yaml:"nvlinks_per_pair" validate:"gte=0"`
	GDRSupport     bool   `yaml:"gdr_support"`
}

// CPUDesc describes the CPU population of a single server.
type CPUDesc struct {
	Count  int    `yaml:"count" validate:"gte=0"`
	Arch   string `yaml:"arch" validate:"omitempty,oneof=x86 POWER ARM"`
	Vendor string `yaml:"vendor" validate:"omitempty,oneof=Intel AMD Zhaoxin"`
	Model  int    `yaml:"model"`
}

// NICDesc describes the NIC population of a single server.
type NICDesc struct {
	Count       int     `yaml:"count" validate:"gte=0"`
	SpeedGBs    float64 `yaml:"speed_gbs" validate:"gte=0"`
	GDRSupport  bool    `yaml:"gdr_support"`
	CollSupport bool    `yaml:"coll_support"`
}

// PCIeDesc describes the PCIe fabric of a single server.
type PCIeDesc struct {
	Gen            int `yaml:"gen" validate:"omitempty,oneof=3 4 5"`
	Width          int `yaml:"width" validate:"omitempty,oneof=8 16"`
	SwitchesPerCPU int `yaml:"switches_per_cpu" validate:"gte=0"`
}

// NVSwitchDesc describes the NVSwitch population of a single server.
type NVSwitchDesc struct {
	Count int `yaml:"count" validate:"gte=0"`
}

// HardwareDesc is the declarative description of one server's hardware.
type HardwareDesc struct {
	Name        string       `yaml:"name"`
	GPU         GPUDesc      `yaml:"gpu"`
	CPU         CPUDesc      `yaml:"cpu"`
	NIC         NICDesc      `yaml:"nic"`
	PCIe        PCIeDesc     `yaml:"pcie"`
	NVSwitch    NVSwitchDesc `yaml:"nvswitch"`
	NumaMapping []int        `yaml:"numa_mapping"`
}

// ScaleUnit describes an optional multi-server tile built by replicating a
// HardwareDesc across servers and wiring NICs to rail/fat-tree switches.
type ScaleUnit struct {
	ServerCount int    `yaml:"server_count" validate:"gte=1"`
	RailCount   int    `yaml:"rail_count" validate:"gte=1"`
	NetworkType string `yaml:"network_type" validate:"omitempty,oneof=rail-optimized fat-tree"`
}

// Input is the top-level YAML document: a hardware description, an
// optional scale unit, and option overrides.
type Input struct {
	Hardware  HardwareDesc           `yaml:"hardware" validate:"required"`
	ScaleUnit *ScaleUnit             `yaml:"scale_unit,omitempty"`
	Options   map[string]interface{} `yaml:"options,omitempty"`
}

var validate = validator.New()

// Load reads and validates an Input document from fname.
func Load(fname string) (*Input, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", fname, err)
	}

	var in Input
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", fname, err)
	}

	if err := validate.Struct(&in); err != nil {
		return nil, fmt.Errorf("invalid config %s: %v", fname, err)
	}

	return &in, nil
}

// DecodeOptions decodes a generic options payload (as loaded from YAML, or
// handed in by an API caller) into the engine's typed Options map,
// applying each recognized key as an override over the default set.
func DecodeOptions(raw map[string]interface{}) (model.Options, error) {
	opts := model.DefaultOptions()
	for name, value := range raw {
		d, ok := opts[name]
		if !ok {
			continue // unrecognized option names are ignored, not fatal
		}
		var decoded interface{}
		switch d.Type {
		case model.OptTypeBool:
			var b bool
			if err := mapstructure.Decode(value, &b); err != nil {
				return nil, fmt.Errorf("option %q: %v", name, err)
			}
			decoded = b
		default:
			decoded = value
		}
		opts.Set(name, decoded)
	}
	return opts, nil
}
