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

package db

import (
	"context"
	"errors"

	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

// Error classes of the storage layer. Errors returned by the key store wrap exactly one of
// them.
var (
	// ErrInvalidInputData is returned when a record cannot be encoded for storage.
	ErrInvalidInputData = serrors.New("invalid input data")
	// ErrDataInvalid is returned when a stored record cannot be decoded.
	ErrDataInvalid = serrors.New("invalid stored data")
	ErrReadFailed  = serrors.New("read failed")
	ErrWriteFailed = serrors.New("write failed")
	ErrTx          = serrors.New("transaction failed")
)

func classify(class error, op string, cause error, logCtx []any) error {
	return serrors.JoinNoStack(class, cause, append([]any{"op", op}, logCtx...)...)
}

// NewTxError wraps a failure to begin, commit or roll back a transaction.
func NewTxError(op string, err error, logCtx ...any) error {
	return classify(ErrTx, op, err, logCtx)
}

// NewInputDataError wraps a failure to encode a record for storage.
func NewInputDataError(op string, err error, logCtx ...any) error {
	return classify(ErrInvalidInputData, op, err, logCtx)
}

// NewDataError wraps a failure to decode a stored record.
func NewDataError(op string, err error, logCtx ...any) error {
	return classify(ErrDataInvalid, op, err, logCtx)
}

// NewReadError wraps a failed query.
func NewReadError(op string, err error, logCtx ...any) error {
	return classify(ErrReadFailed, op, err, logCtx)
}

// NewWriteError wraps a failed statement.
func NewWriteError(op string, err error, logCtx ...any) error {
	return classify(ErrWriteFailed, op, err, logCtx)
}

// ErrToMetricLabel returns the result label of err for the store metrics.
func ErrToMetricLabel(err error) string {
	switch {
	case err == nil:
		return metrics.OkSuccess
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return metrics.ErrTimeout
	case errors.Is(err, ErrInvalidInputData), errors.Is(err, ErrDataInvalid):
		return metrics.ErrParse
	default:
		return metrics.ErrDB
	}
}
