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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "runs_total",
			Help:      "Total number of planner invocations.",
			Subsystem: "topoplan",
		},
		[]string{"result"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "run_duration_seconds",
			Help:      "Planner invocation duration in seconds.",
			Subsystem: "topoplan",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	searchIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:      "search_iterations",
			Help:      "Global ring/tree search iterations consumed per run.",
			Subsystem: "topoplan",
			Buckets:   prometheus.ExponentialBuckets(8, 4, 10),
		},
	)

	patternMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "pattern_matches_total",
			Help:      "Pattern-matcher hits by pattern identifier.",
			Subsystem: "topoplan",
		},
		[]string{"pattern"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(searchIterations)
	prometheus.MustRegister(patternMatchesTotal)
}

// AddRun records the outcome of one planner invocation: result is one of
// "optimal", "best-effort", "no-feasible-plan", "invalid-config" or
// "deferred".
func AddRun(result string, duration time.Duration) {
	runsTotal.WithLabelValues(result).Inc()
	runDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func ObserveSearchIterations(n int) {
	searchIterations.Observe(float64(n))
}

func AddPatternMatch(patternID string) {
	patternMatchesTotal.WithLabelValues(patternID).Inc()
}
