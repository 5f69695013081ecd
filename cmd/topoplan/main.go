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

package main

import (
	"context"
	"encoding/json"
	goflag "flag"
	"fmt"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/NVIDIA/topoplan/pkg/config"
	"github.com/NVIDIA/topoplan/pkg/planner"
)

func main() {
	if err := mainInternal(); err != nil {
		klog.Errorf(err.Error())
		os.Exit(1)
	}
}

func mainInternal() error {
	var path string
	var dumpLog bool
	pflag.StringVarP(&path, "config", "c", "", "hardware description YAML file")
	pflag.BoolVar(&dumpLog, "decision-log", false, "print the full decision log after planning")

	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	pflag.Parse()
	defer klog.Flush()

	if path == "" {
		return fmt.Errorf("must specify a hardware description file with --config")
	}

	in, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var plan *planner.Plan

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		var runErr error
		plan, runErr = planner.Run(in)
		return runErr
	}, func(error) {})

	if err := g.Run(); err != nil {
		return err
	}

	return printPlan(plan, dumpLog)
}

func printPlan(plan *planner.Plan, dumpLog bool) error {
	summary := map[string]interface{}{
		"nodes":            len(plan.System.Nodes),
		"interNode":        plan.System.InterNode,
		"ringChannels":     plan.Ring.NumChannels(),
		"treeChannels":     plan.Tree.NumChannels(),
		"matchedPatternId": plan.MatchedPatternID,
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if dumpLog {
		for _, e := range plan.Log.Snapshot() {
			fmt.Printf("[%03d] %-14s %s — %s\n", e.Step, e.Phase, e.Action, e.Rationale)
		}
	}
	return nil
}
