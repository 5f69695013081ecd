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

// Package decisionlog is the append-only, step-numbered audit trail that
// every planner phase writes to. It is threaded explicitly through the
// phases (not stored in a package-level global) and returned to the
// caller as part of the final Plan.
package decisionlog

import "time"

// Phase is one of the closed set of planner phases that may append to the
// log.
type Phase string

const (
	PhaseTopoBuild    Phase = "topoBuild"
	PhaseComputePaths Phase = "computePaths"
	PhaseTrimSystem   Phase = "trimSystem"
	PhaseSearchInit   Phase = "searchInit"
	PhaseRingSearch   Phase = "ringSearch"
	PhaseTreeSearch   Phase = "treeSearch"
	PhaseChannelSetup Phase = "channelSetup"
	PhasePatternMatch Phase = "patternMatch"
)

// Entry is one record in the log.
type Entry struct {
	Step        int
	Phase       Phase
	Action      string
	Rationale   string
	Alternatives []string
	Source      string
	Payload     map[string]interface{}
	CreatedAt   time.Time
}

// Log is an append-only, step-numbered decision record.
type Log struct {
	entries []Entry
}

func New() *Log {
	return &Log{entries: []Entry{}}
}

// Append adds a new entry with the next step index and the current
// timestamp, returning it.
func (l *Log) Append(phase Phase, action, rationale string, alternatives []string, source string, payload map[string]interface{}) Entry {
	e := Entry{
		Step:         len(l.entries) + 1,
		Phase:        phase,
		Action:       action,
		Rationale:    rationale,
		Alternatives: alternatives,
		Source:       source,
		Payload:      payload,
		CreatedAt:    time.Now(),
	}
	l.entries = append(l.entries, e)
	return e
}

// Len returns the number of entries recorded so far.
func (l *Log) Len() int {
	return len(l.entries)
}

// Snapshot returns a defensive copy of all entries in append order.
func (l *Log) Snapshot() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// FilterByPhase returns a defensive copy of the entries matching phase, in
// append order.
func (l *Log) FilterByPhase(phase Phase) []Entry {
	out := []Entry{}
	for _, e := range l.entries {
		if e.Phase == phase {
			out = append(out, e)
		}
	}
	return out
}
