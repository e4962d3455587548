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

package keyquery

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crosstrust/keytrust/pkg/metrics"
)

// Rejection reasons
const (
	reasonMismatch      = "id_mismatch"
	reasonNoSigningKey  = "no_signing_key"
	reasonBadSignature  = "bad_self_signature"
	reasonWrongUsage    = "wrong_usage"
	resultServerFailure = "err_server_failure"
)

// Metrics are the key query metrics.
type Metrics struct {
	// Queries counts key queries by result.
	Queries metrics.Counter
	// Users counts the processed outdated users by result.
	Users metrics.Counter
	// Rejected counts rejected keys by reason.
	Rejected metrics.Counter
}

// NewMetrics creates the key query metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) Metrics {
	return Metrics{
		Queries: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "keyquery_queries_total",
				Help: "Number of key queries sent to the server.",
			},
			[]string{"result"},
		),
		Users: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "keyquery_users_total",
				Help: "Number of outdated users whose keys were updated.",
			},
			[]string{"result"},
		),
		Rejected: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "keyquery_rejected_keys_total",
				Help: "Number of device and cross-signing keys rejected from query responses.",
			},
			[]string{"reason"},
		),
	}
}
