// Copyright 2025 The keytrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstrust/keytrust/pkg/metrics"
)

func TestNilSafeHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.CounterInc(nil)
		metrics.CounterAdd(nil, 2)
		metrics.GaugeSet(nil, 1)
		metrics.GaugeAdd(nil, 1)
		metrics.HistogramObserve(nil, 1)
		assert.Nil(t, metrics.CounterWith(nil, "a", "b"))
		assert.Nil(t, metrics.GaugeWith(nil, "a", "b"))
		assert.Nil(t, metrics.HistogramWith(nil, "a", "b"))
	})
}

func TestTestCounterLabels(t *testing.T) {
	c := metrics.NewTestCounter()
	metrics.CounterInc(c.With("result", "ok_success", "kind", "a"))
	metrics.CounterInc(c.With("kind", "a", "result", "ok_success"))
	metrics.CounterInc(c.With("result", "err_verify"))

	assert.Equal(t, float64(2), metrics.CounterValue(c.With("kind", "a", "result", "ok_success")))
	assert.Equal(t, float64(1), metrics.CounterValue(c.With("result", "err_verify")))
	assert.Equal(t, float64(0), metrics.CounterValue(c))
	assert.Panics(t, func() { c.Add(-1) })
}

func TestTestGauge(t *testing.T) {
	g := metrics.NewTestGauge()
	g.Set(3)
	g.Add(-1)
	assert.Equal(t, float64(2), metrics.GaugeValue(g))
}

func TestPromCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewPromCounterFrom(reg, prometheus.CounterOpts{
		Name: "keytrust_test_total",
		Help: "Test counter",
	}, []string{"result"})
	metrics.CounterInc(c.With("result", metrics.OkSuccess))
	metrics.CounterAdd(c.With("result", metrics.OkSuccess), 2)

	want := `
		# HELP keytrust_test_total Test counter
		# TYPE keytrust_test_total counter
		keytrust_test_total{result="ok_success"} 3
		`
	err := testutil.GatherAndCompare(reg, strings.NewReader(want), "keytrust_test_total")
	require.NoError(t, err)
}
