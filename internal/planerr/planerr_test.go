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

package planerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := New(InvalidConfig, "bad numa mapping")
	require.True(t, errors.Is(err, New(InvalidConfig, "")))
	require.False(t, errors.Is(err, New(NoFeasiblePlan, "")))
}

func TestErrorMessage(t *testing.T) {
	err := New(InvalidConfig, "bad numa mapping")
	require.Contains(t, err.Error(), "bad numa mapping")
}

func TestKind(t *testing.T) {
	err := New(PatternBudgetExhausted, "")
	require.Equal(t, PatternBudgetExhausted, err.Kind())
}
