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
	"context"
	"time"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/private/periodic"
)

// DefaultHorizon is the age after which outgoing requests are cancelled.
const DefaultHorizon = 24 * time.Hour

var _ periodic.Task = (*Sweeper)(nil)

// Sweeper is a periodic task that cancels outgoing requests older than Horizon.
type Sweeper struct {
	TaskName string
	Horizon  time.Duration
	// Expire cancels and deletes every outgoing request created before the given time. It
	// returns the number of cancelled requests.
	Expire func(ctx context.Context, before time.Time) (int, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Sweeper) Name() string {
	return s.TaskName
}

func (s *Sweeper) Run(ctx context.Context) {
	logger := log.FromCtx(ctx)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	horizon := s.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	n, err := s.Expire(ctx, now().Add(-horizon))
	if err != nil {
		logger.Error("Cancelling expired requests failed", "err", err)
		return
	}
	if n > 0 {
		logger.Info("Cancelled expired requests", "count", n)
	}
}
