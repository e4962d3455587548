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

package keyrequest

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crosstrust/keytrust/pkg/metrics"
)

// Result types
const (
	Success          = metrics.OkSuccess
	OkNoReceivers    = "ok_no_receivers"
	ErrUnknownSender = "err_unknown_sender"
	ErrNotVerified   = "err_not_verified"
	ErrNotRequested  = "err_not_requested"
	ErrNotAuthentic  = "err_not_authentic"
	ErrUnknownKind   = metrics.ErrUnknownRequest
	ErrNotFound      = metrics.ErrNotFound
	ErrDB            = metrics.ErrDB
	ErrNetwork       = metrics.ErrNetwork
	ErrInternal      = metrics.ErrInternal
)

// Metrics are the metrics of a request protocol. Every counter carries a "result" label.
type Metrics struct {
	// OutgoingRequests counts sent requests.
	OutgoingRequests metrics.Counter
	// Answers counts received answers to outgoing requests.
	Answers metrics.Counter
	// IncomingRequests counts processed incoming requests.
	IncomingRequests metrics.Counter
	// Cancellations counts cancelled outgoing requests.
	Cancellations metrics.Counter
}

// NewMetrics creates the metrics of the protocol with the given name and registers them with
// reg.
func NewMetrics(reg prometheus.Registerer, protocol string) Metrics {
	newCounter := func(name, help string) metrics.Counter {
		return metrics.NewPromCounterFrom(reg,
			prometheus.CounterOpts{
				Name: protocol + "_" + name,
				Help: help,
			},
			[]string{"result"},
		)
	}
	return Metrics{
		OutgoingRequests: newCounter("outgoing_requests_total",
			"Number of outgoing request rounds."),
		Answers: newCounter("answers_total",
			"Number of answers received for outgoing requests."),
		IncomingRequests: newCounter("incoming_requests_total",
			"Number of processed incoming requests."),
		Cancellations: newCounter("cancellations_total",
			"Number of cancelled outgoing requests."),
	}
}

// Count increments c with the given result.
func Count(c metrics.Counter, result string) {
	metrics.CounterInc(metrics.CounterWith(c, "result", result))
}
