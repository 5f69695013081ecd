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

package decisionlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendStepsIncreaseMonotonically(t *testing.T) {
	log := New()
	log.Append(PhaseTopoBuild, "a", "r1", nil, "src", nil)
	log.Append(PhaseComputePaths, "b", "r2", nil, "src", nil)
	e := log.Append(PhaseTrimSystem, "c", "r3", nil, "src", nil)

	require.Equal(t, 3, e.Step)
	require.Equal(t, 3, log.Len())
}

func TestFilterByPhase(t *testing.T) {
	log := New()
	log.Append(PhaseTopoBuild, "a", "", nil, "", nil)
	log.Append(PhaseRingSearch, "b", "", nil, "", nil)
	log.Append(PhaseRingSearch, "c", "", nil, "", nil)

	filtered := log.FilterByPhase(PhaseRingSearch)
	require.Len(t, filtered, 2)
	require.Equal(t, "b", filtered[0].Action)
	require.Equal(t, "c", filtered[1].Action)
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	log := New()
	log.Append(PhaseTopoBuild, "a", "", nil, "", nil)

	snap := log.Snapshot()
	snap[0].Action = "mutated"

	require.Equal(t, "a", log.Snapshot()[0].Action)
}
