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

package search

import (
	"github.com/NVIDIA/topoplan/pkg/model"
)

// attemptResult is the outcome of one searchForChannels call.
type attemptResult struct {
	channels []*model.Channel
	timedOut bool
}

// searchForChannels runs the multi-channel attempt of spec §4.E.5 at a
// fixed speed: repeatedly finds a ring, consumes its bandwidth, and
// continues until maxChannels is reached, a search fails, or the global
// budget is exceeded.
func searchForChannels(sys *model.System, s *state, gpuOrder []string, speed float64, maxChannels int, sameChannels int, attemptBudget int, cst constraints) attemptResult {
	if len(gpuOrder) == 1 {
		chans := make([]*model.Channel, maxChannels)
		for i := range chans {
			chans[i] = &model.Channel{Index: i, Bandwidth: speed, RingOrder: []string{gpuOrder[0]}}
		}
		return attemptResult{channels: chans}
	}

	var fixedOrder []string
	result := attemptResult{channels: []*model.Channel{}}

	for len(result.channels) < maxChannels {
		s.beginAttempt()

		order := ringAttempt(sys, s, gpuOrder, speed, attemptBudget, fixedOrder, cst)
		if order == nil {
			result.timedOut = s.timedOut
			break
		}

		consumeRing(sys, s, order, speed)
		ch := &model.Channel{Index: len(result.channels), Bandwidth: speed, RingOrder: order}
		result.channels = append(result.channels, ch)

		if sameChannels == 1 && fixedOrder == nil {
			fixedOrder = order
		}

		if s.globalIters > s.globalBudget {
			result.timedOut = true
			break
		}
	}

	return result
}

// aggregateBandwidth is speed * number of channels, the metric compared
// across relaxation steps and channel-doubling attempts.
func aggregateBandwidth(channels []*model.Channel) float64 {
	if len(channels) == 0 {
		return 0
	}
	return channels[0].Bandwidth * float64(len(channels))
}
