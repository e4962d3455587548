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
	"sort"
	"strings"
	"sync"
)

// node is shared by all label combinations of one fake metric.
type node struct {
	mtx      sync.Mutex
	v        float64
	children map[string]*node
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// child returns the node for the label set, creating it on first use. Label
// order does not matter.
func (n *node) child(labels []string) *node {
	if len(labels)%2 != 0 {
		labels = append(labels, "unknown")
	}
	pairs := make([]string, 0, len(labels)/2)
	for i := 0; i < len(labels); i += 2 {
		pairs = append(pairs, labels[i]+"="+labels[i+1])
	}
	sort.Strings(pairs)
	key := strings.Join(pairs, ",")
	n.mtx.Lock()
	defer n.mtx.Unlock()
	c, ok := n.children[key]
	if !ok {
		c = newNode()
		n.children[key] = c
	}
	return c
}

func (n *node) add(delta float64, canBeNegative bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if !canBeNegative && delta < 0 {
		panic("counter increment value is < 0")
	}
	n.v += delta
}

func (n *node) set(v float64) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.v = v
}

func (n *node) value() float64 {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.v
}

// TestCounter implements a counter for use in tests. Each distinct label set
// passed to With gets its own value.
type TestCounter struct {
	*node
	labels []string
	root   *node
}

// NewTestCounter creates a new counter for use in tests.
func NewTestCounter() *TestCounter {
	n := newNode()
	return &TestCounter{node: n, root: n}
}

// With returns the counter for the combined label set.
func (c *TestCounter) With(labels ...string) Counter {
	all := append(append([]string(nil), c.labels...), labels...)
	return &TestCounter{node: c.root.child(all), labels: all, root: c.root}
}

// Add increases the counter by delta. Negative values panic.
func (c *TestCounter) Add(delta float64) {
	c.add(delta, false)
}

// CounterValue extracts the value out of a TestCounter. If the argument is not
// a *TestCounter, CounterValue will panic.
func CounterValue(c Counter) float64 {
	return c.(*TestCounter).value()
}

// TestGauge implements a gauge for use in tests.
type TestGauge struct {
	*node
	labels []string
	root   *node
}

// NewTestGauge creates a new gauge for use in tests.
func NewTestGauge() *TestGauge {
	n := newNode()
	return &TestGauge{node: n, root: n}
}

// With returns the gauge for the combined label set.
func (g *TestGauge) With(labels ...string) Gauge {
	all := append(append([]string(nil), g.labels...), labels...)
	return &TestGauge{node: g.root.child(all), labels: all, root: g.root}
}

// Set sets the gauge to v.
func (g *TestGauge) Set(v float64) {
	g.set(v)
}

// Add changes the gauge by delta.
func (g *TestGauge) Add(delta float64) {
	g.add(delta, true)
}

// GaugeValue extracts the value out of a TestGauge. If the argument is not a
// *TestGauge, GaugeValue will panic.
func GaugeValue(g Gauge) float64 {
	return g.(*TestGauge).value()
}
