// Copyright 2018 PingCAP, Inc.
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values.
const (
	LblOK      = "ok"
	LblError   = "error"
	LblRetry   = "retry"
	LblGiveUp  = "give_up"
	LblExit    = "exit"
	LblCont    = "continue"
	LblProc    = "procedure"
	LblFunc    = "function"
	LblTrigger = "trigger"
	LblHit     = "hit"
	LblMiss    = "miss"
)

// Metrics
var (
	InstructionCounter        *prometheus.CounterVec
	HandlerActivationCounter  *prometheus.CounterVec
	ReprepareCounter          *prometheus.CounterVec
	RoutineDurationHistogram  *prometheus.HistogramVec
	RoutineErrorCounter       *prometheus.CounterVec
	OpenCursorGauge           prometheus.Gauge
	RoutineCacheCounter       *prometheus.CounterVec
	MemoryQuotaExceedCounter  prometheus.Counter
	RemoteExecDurationSeconds *prometheus.HistogramVec
)

func init() {
	InitMetrics()
}

// InitMetrics is used to initialize metrics.
func InitMetrics() {
	InstructionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "instructions_total",
			Help:      "Counter of executed stored routine instructions.",
		}, []string{LblType})

	HandlerActivationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "handler_activations_total",
			Help:      "Counter of activated condition handlers.",
		}, []string{LblType})

	ReprepareCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "reprepare_total",
			Help:      "Counter of instruction re-preparations.",
		}, []string{LblResult})

	RoutineDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "duration_seconds",
			Help:      "Bucketed histogram of stored routine execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 22), // 0.5ms ~ 17min
		}, []string{LblType})

	RoutineErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "unhandled_errors_total",
			Help:      "Counter of routine invocations ended by an unhandled error.",
		}, []string{LblType})

	OpenCursorGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "open_cursors",
			Help:      "Number of open stored routine cursors.",
		})

	RoutineCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "cache_total",
			Help:      "Counter of compiled routine cache lookups.",
		}, []string{LblResult})

	MemoryQuotaExceedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "mem_quota_exceeded_total",
			Help:      "Counter of variable assignments rejected by the per-call memory quota.",
		})

	RemoteExecDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tidb",
			Subsystem: "routine",
			Name:      "remote_exec_duration_seconds",
			Help:      "Bucketed histogram of statements forwarded to the remote server.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
		}, []string{LblType, LblResult})
}

// Label names.
const (
	LblType   = "type"
	LblResult = "result"
)

// RegisterMetrics registers the metrics which are ONLY used in the routine engine.
func RegisterMetrics(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		InstructionCounter,
		HandlerActivationCounter,
		ReprepareCounter,
		RoutineDurationHistogram,
		RoutineErrorCounter,
		OpenCursorGauge,
		RoutineCacheCounter,
		MemoryQuotaExceedCounter,
		RemoteExecDurationSeconds,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
