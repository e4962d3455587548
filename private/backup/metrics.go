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

package backup

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crosstrust/keytrust/pkg/metrics"
)

// Results
const (
	resultOk          = metrics.OkSuccess
	resultUntrusted   = "ok_untrusted"
	resultNoVersion   = "ok_no_version"
	resultErrNetwork  = metrics.ErrNetwork
	resultErrDB       = metrics.ErrDB
	resultErrDecrypt  = "err_decrypt"
	resultErrImport   = "err_import"
	resultErrVersion  = "err_wrong_version"
	resultErrInternal = metrics.ErrInternal
)

// Metrics are the key backup metrics. Every counter carries a "result" label.
type Metrics struct {
	Reconciliations metrics.Counter
	SessionLoads    metrics.Counter
	Uploads         metrics.Counter
	// UploadedSessions counts sessions that were uploaded successfully.
	UploadedSessions metrics.Counter
}

// NewMetrics creates the backup metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) Metrics {
	return Metrics{
		Reconciliations: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "keybackup_version_reconciliations_total",
				Help: "Number of backup version reconciliations.",
			},
			[]string{"result"},
		),
		SessionLoads: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "keybackup_session_loads_total",
				Help: "Number of megolm session downloads from the key backup.",
			},
			[]string{"result"},
		),
		Uploads: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "keybackup_uploads_total",
				Help: "Number of megolm session upload batches.",
			},
			[]string{"result"},
		),
		UploadedSessions: metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: "keybackup_uploaded_sessions_total",
				Help: "Number of megolm sessions uploaded to the key backup.",
			},
			nil,
		),
	}
}

func count(c metrics.Counter, result string) {
	metrics.CounterInc(metrics.CounterWith(c, "result", result))
}
