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

package keytrust

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/private/periodic"
	"github.com/crosstrust/keytrust/private/storage"
	"github.com/crosstrust/keytrust/private/storage/cleaner"
	"github.com/crosstrust/keytrust/private/storage/keystore"
)

func newStoreMetrics(reg prometheus.Registerer) storage.KeyStoreOptions {
	return storage.KeyStoreOptions{
		Metrics: &keystore.Metrics{
			QueriesTotal: metrics.NewPromCounterFrom(reg,
				prometheus.CounterOpts{
					Name: "keystore_queries_total",
					Help: "Total queries to the key store.",
				},
				[]string{"operation", "table"},
			),
			ResultsTotal: metrics.NewPromCounterFrom(reg,
				prometheus.CounterOpts{
					Name: "keystore_results_total",
					Help: "Results of the key store queries.",
				},
				[]string{"operation", "table", "result"},
			),
		},
		CleanerMetrics: cleaner.Metrics{
			ErrorsTotal: metrics.NewPromCounterFrom(reg,
				prometheus.CounterOpts{
					Name: "keystore_cleaner_errors_total",
					Help: "Total errors while removing orphaned key chain links.",
				},
				nil,
			),
			RunsTotal: metrics.NewPromCounterFrom(reg,
				prometheus.CounterOpts{
					Name: "keystore_cleaner_runs_total",
					Help: "Total successful runs of the key chain link cleaner.",
				},
				nil,
			),
			DeletedTotal: metrics.NewPromCounterFrom(reg,
				prometheus.CounterOpts{
					Name: "keystore_cleaner_deleted_total",
					Help: "Total orphaned key chain links removed.",
				},
				nil,
			),
		},
	}
}

// taskMetrics holds the metrics shared by all periodic tasks of the core,
// labeled by task name.
type taskMetrics struct {
	events    metrics.Counter
	period    metrics.Gauge
	runtime   metrics.Gauge
	startTime metrics.Gauge
}

func newTaskMetrics(reg prometheus.Registerer) *taskMetrics {
	return &taskMetrics{
		events: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "periodic_task_events_total",
				Help: "Total lifecycle events of periodic tasks.",
			},
			[]string{"task", "event_type"},
		),
		period: metrics.NewPromGaugeFrom(reg,
			prometheus.GaugeOpts{
				Name: "periodic_task_period_seconds",
				Help: "Configured period of the task.",
			},
			[]string{"task"},
		),
		runtime: metrics.NewPromGaugeFrom(reg,
			prometheus.GaugeOpts{
				Name: "periodic_task_runtime_seconds",
				Help: "Duration of the last run of the task.",
			},
			[]string{"task"},
		),
		startTime: metrics.NewPromGaugeFrom(reg,
			prometheus.GaugeOpts{
				Name: "periodic_task_start_time_seconds",
				Help: "Unix time at which the task was started.",
			},
			[]string{"task"},
		),
	}
}

func (m *taskMetrics) forTask(task string) *periodic.Metrics {
	return &periodic.Metrics{
		Events: func(event string) metrics.Counter {
			return metrics.CounterWith(m.events, "task", task, "event_type", event)
		},
		Period:    metrics.GaugeWith(m.period, "task", task),
		Runtime:   metrics.GaugeWith(m.runtime, "task", task),
		StartTime: metrics.GaugeWith(m.startTime, "task", task),
	}
}
