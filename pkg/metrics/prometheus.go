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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewPromGauge wraps a prometheus gauge vector as a gauge.
// Returns nil, if gv is nil.
func NewPromGauge(gv *prometheus.GaugeVec) Gauge {
	if gv == nil {
		return nil
	}
	return &gauge{gv: gv}
}

// NewPromCounter wraps a prometheus counter vector as a counter.
// Returns nil if cv is nil.
func NewPromCounter(cv *prometheus.CounterVec) Counter {
	if cv == nil {
		return nil
	}
	return &counter{cv: cv}
}

// NewPromHistogram wraps a prometheus histogram vector as a histogram.
// Returns nil if hv is nil.
func NewPromHistogram(hv *prometheus.HistogramVec) Histogram {
	if hv == nil {
		return nil
	}
	return &histogram{hv: hv}
}

// NewPromCounterFrom creates and registers a wrapped prometheus counter.
func NewPromCounterFrom(reg prometheus.Registerer, opts prometheus.CounterOpts,
	labelNames []string) Counter {

	cv := prometheus.NewCounterVec(opts, labelNames)
	registerer(reg).MustRegister(cv)
	return &counter{cv: cv}
}

// NewPromGaugeFrom creates and registers a wrapped prometheus gauge.
func NewPromGaugeFrom(reg prometheus.Registerer, opts prometheus.GaugeOpts,
	labelNames []string) Gauge {

	gv := prometheus.NewGaugeVec(opts, labelNames)
	registerer(reg).MustRegister(gv)
	return &gauge{gv: gv}
}

// NewPromHistogramFrom creates and registers a wrapped prometheus histogram.
func NewPromHistogramFrom(reg prometheus.Registerer, opts prometheus.HistogramOpts,
	labelNames []string) Histogram {

	hv := prometheus.NewHistogramVec(opts, labelNames)
	registerer(reg).MustRegister(hv)
	return &histogram{hv: hv}
}

func registerer(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.DefaultRegisterer
	}
	return reg
}

// labelValues is a flat list of alternating label names and values.
type labelValues []string

func (lvs labelValues) with(pairs ...string) labelValues {
	if len(pairs)%2 != 0 {
		pairs = append(pairs, "unknown")
	}
	result := make(labelValues, 0, len(lvs)+len(pairs))
	result = append(result, lvs...)
	return append(result, pairs...)
}

func (lvs labelValues) labels() prometheus.Labels {
	labels := prometheus.Labels{}
	for i := 0; i+1 < len(lvs); i += 2 {
		labels[lvs[i]] = lvs[i+1]
	}
	return labels
}

type gauge struct {
	gv  *prometheus.GaugeVec
	lvs labelValues
}

func (g *gauge) With(pairs ...string) Gauge {
	return &gauge{gv: g.gv, lvs: g.lvs.with(pairs...)}
}

func (g *gauge) Set(value float64) {
	g.gv.With(g.lvs.labels()).Set(value)
}

func (g *gauge) Add(delta float64) {
	g.gv.With(g.lvs.labels()).Add(delta)
}

type counter struct {
	cv  *prometheus.CounterVec
	lvs labelValues
}

func (c *counter) With(pairs ...string) Counter {
	return &counter{cv: c.cv, lvs: c.lvs.with(pairs...)}
}

func (c *counter) Add(delta float64) {
	c.cv.With(c.lvs.labels()).Add(delta)
}

type histogram struct {
	hv  *prometheus.HistogramVec
	lvs labelValues
}

func (h *histogram) With(pairs ...string) Histogram {
	return &histogram{hv: h.hv, lvs: h.lvs.with(pairs...)}
}

func (h *histogram) Observe(value float64) {
	h.hv.With(h.lvs.labels()).Observe(value)
}
