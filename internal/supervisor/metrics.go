// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// triggersTotal counts termination triggers by reason.
	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leash_termination_triggers_total",
			Help: "Total termination triggers observed, by trigger reason",
		},
		[]string{"reason"},
	)

	// forcefulKillsTotal counts children that ignored the graceful signal.
	forcefulKillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leash_forceful_kills_total",
			Help: "Total child processes that required a forceful kill",
		},
	)

	// cleanupFailuresTotal counts best-effort cleanup steps that failed.
	cleanupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leash_cleanup_step_failures_total",
			Help: "Total cleanup step failures, by step",
		},
		[]string{"step"},
	)
)
