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

	"github.com/crosstrust/keytrust/pkg/metrics"
)

// Key types
const (
	DeviceKey       = "device"
	MasterKey       = "master"
	SelfSigningKey  = "self_signing"
	UserSigningKey  = "user_signing"
	UnknownKeyClass = "unknown"
)

// Triggers
const (
	Full        = "full"
	Incremental = "incremental"
)

// Result types
const (
	Success       = metrics.OkSuccess
	OkSkipped     = "ok_skipped"
	ErrDB         = metrics.ErrDB
	ErrInternal   = metrics.ErrInternal
	ErrKey        = "err_key"
	ErrNotAllowed = metrics.ErrNotAllowed
	ErrNotFound   = metrics.ErrNotFound
	ErrTransmit   = "err_transmit"
	ErrVerify     = metrics.ErrVerify
)

// Metrics exposes trust-related metrics as functions that return counters.
type Metrics struct {
	Calculations       func(keyType, trigger, level string) metrics.Counter
	VerifiedSignatures func(result string) metrics.Counter
	CreatedSignatures  func(keyType, result string) metrics.Counter
	SignatureUploads   func(result string) metrics.Counter
	LinkLookups        metrics.Counter
}

// New creates the trust engine metrics and registers them with reg. A nil registerer
// registers with the default prometheus registerer.
func New(reg prometheus.Registerer) Metrics {
	calculations := metrics.NewPromCounterFrom(reg,
		prometheus.CounterOpts{
			Name: "trustengine_calculations_total",
			Help: "Number of trust level calculations by key type, trigger and resulting level.",
		},
		[]string{"type", "trigger", "level"},
	)
	verifiedSignatures := metrics.NewPromCounterFrom(reg,
		prometheus.CounterOpts{
			Name: "trustengine_verified_signatures_total",
			Help: "Number of signature verifications done while searching for trust paths.",
		},
		[]string{"result"},
	)
	createdSignatures := metrics.NewPromCounterFrom(reg,
		prometheus.CounterOpts{
			Name: "trustengine_created_signatures_total",
			Help: "Number of signatures created for verified keys.",
		},
		[]string{"type", "result"},
	)
	uploads := metrics.NewPromCounterFrom(reg,
		prometheus.CounterOpts{
			Name: "trustengine_signature_uploads_total",
			Help: "Number of signature upload batches.",
		},
		[]string{"result"},
	)
	linkLookups := metrics.NewPromCounterFrom(reg,
		prometheus.CounterOpts{
			Name: "trustengine_key_chain_link_lookups_total",
			Help: "Total number of key chain link index lookups.",
		},
		[]string{"result"},
	)

	return Metrics{
		Calculations: func(keyType, trigger, level string) metrics.Counter {
			return calculations.With("type", keyType, "trigger", trigger, "level", level)
		},
		VerifiedSignatures: func(result string) metrics.Counter {
			return verifiedSignatures.With("result", result)
		},
		CreatedSignatures: func(keyType, result string) metrics.Counter {
			return createdSignatures.With("type", keyType, "result", result)
		},
		SignatureUploads: func(result string) metrics.Counter {
			return uploads.With("result", result)
		},
		LinkLookups: linkLookups,
	}
}
