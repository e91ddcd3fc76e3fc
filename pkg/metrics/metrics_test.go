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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	// a second registration reports the duplicate collector
	require.Error(t, RegisterMetrics(reg))
}

func TestCounters(t *testing.T) {
	InitMetrics()
	InstructionCounter.WithLabelValues("jump").Inc()
	InstructionCounter.WithLabelValues("jump").Inc()
	require.Equal(t, 2.0, testutil.ToFloat64(InstructionCounter.WithLabelValues("jump")))

	OpenCursorGauge.Inc()
	OpenCursorGauge.Dec()
	require.Equal(t, 0.0, testutil.ToFloat64(OpenCursorGauge))
}
