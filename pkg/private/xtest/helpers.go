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

// Package xtest contains helpers shared by tests.
package xtest

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_")

// SanitizedName returns the test name in a form usable as a file or database name.
func SanitizedName(t testing.TB) string {
	return nameReplacer.Replace(t.Name())
}

// MustMarshalJSON marshals v or fails the test.
func MustMarshalJSON(t testing.TB, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// AssertReadReturnsBefore fails the test if nothing is read from ch within timeout.
func AssertReadReturnsBefore(t testing.TB, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("no read from channel within %s", timeout)
	}
}

// AssertReadDoesNotReturnBefore fails the test if a read from ch succeeds within timeout.
func AssertReadDoesNotReturnBefore(t testing.TB, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		t.Fatalf("unexpected read from channel within %s", timeout)
	case <-timer.C:
	}
}
