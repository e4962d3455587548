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

// Package testlog provides loggers that write to the test log.
package testlog

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/crosstrust/keytrust/pkg/log"
)

// NewLogger returns a Logger that writes all entries to t. The entries are only shown
// for failed tests or with go test -v.
func NewLogger(t testing.TB, opts ...zaptest.LoggerOption) log.Logger {
	return log.FromZap(zaptest.NewLogger(t, opts...))
}

// Context returns a context that carries a logger writing to t.
func Context(t testing.TB, labels ...any) context.Context {
	return log.CtxWith(context.Background(), NewLogger(t).New(labels...))
}
