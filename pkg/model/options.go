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

// Option names recognized by the core.
const (
	OptNVBDisable          = "nvb-disable"
	OptPXNDisable          = "pxn-disable"
	OptPXNC2C              = "pxn-c2c"
	OptCrossNic            = "cross-nic"
	OptMinChannels         = "min-channels"
	OptMaxChannels         = "max-channels"
	OptAlgoForce           = "algo-force"
	OptProtoForce          = "proto-force"
	OptThreadsForce        = "threads-force"
	OptModelMatchDisable   = "model-match-disable"
)

// OptionType distinguishes how an option's value is interpreted.
type OptionType int

const (
	OptTypeBool OptionType = iota
	OptTypeTristate         // 0/1/auto
	OptTypeChannelBound     // int or "auto"
	OptTypeString
)

// OptionDescriptor is the static metadata for one recognized option: its
// default value, type and category. The effective value is the override
// if present, else the default.
type OptionDescriptor struct {
	Name     string
	Default  interface{}
	Override interface{} // nil when not overridden
	Type     OptionType
	Category string
}

// Options is the full set of option descriptors recognized by the core,
// keyed by name.
type Options map[string]*OptionDescriptor

// DefaultOptions returns a fresh Options map with every recognized option
// set to its documented default and no override.
func DefaultOptions() Options {
	return Options{
		OptNVBDisable:        {Name: OptNVBDisable, Default: false, Type: OptTypeBool, Category: "path"},
		OptPXNDisable:        {Name: OptPXNDisable, Default: false, Type: OptTypeBool, Category: "path"},
		OptPXNC2C:            {Name: OptPXNC2C, Default: false, Type: OptTypeBool, Category: "path"},
		OptCrossNic:          {Name: OptCrossNic, Default: "auto", Type: OptTypeTristate, Category: "search"},
		OptMinChannels:       {Name: OptMinChannels, Default: "auto", Type: OptTypeChannelBound, Category: "search"},
		OptMaxChannels:       {Name: OptMaxChannels, Default: "auto", Type: OptTypeChannelBound, Category: "search"},
		OptAlgoForce:         {Name: OptAlgoForce, Default: "", Type: OptTypeString, Category: "tuning"},
		OptProtoForce:        {Name: OptProtoForce, Default: "", Type: OptTypeString, Category: "tuning"},
		OptThreadsForce:      {Name: OptThreadsForce, Default: "", Type: OptTypeString, Category: "tuning"},
		OptModelMatchDisable: {Name: OptModelMatchDisable, Default: false, Type: OptTypeBool, Category: "match"},
	}
}

// Value returns the effective value for name: the override if present,
// else the default. ok is false if name is not a recognized option.
func (o Options) Value(name string) (interface{}, bool) {
	d, ok := o[name]
	if !ok {
		return nil, false
	}
	if d.Override != nil {
		return d.Override, true
	}
	return d.Default, true
}

func (o Options) Bool(name string) bool {
	v, ok := o.Value(name)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Set applies an override for name. Names without a descriptor in o are
// ignored.
func (o Options) Set(name string, value interface{}) {
	d, ok := o[name]
	if !ok {
		return
	}
	d.Override = value
}
