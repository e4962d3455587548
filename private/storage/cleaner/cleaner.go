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

// Package cleaner removes key chain links that no longer point to a stored key.
package cleaner

import (
	"context"
	"time"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/private/periodic"
)

// LinkStore is the part of the key store the cleaner needs.
type LinkStore interface {
	// DeleteOrphanedKeyChainLinks removes the links whose signed key is no longer stored
	// and returns how many were removed.
	DeleteOrphanedKeyChainLinks(ctx context.Context) (int, error)
}

// Metrics are the metrics of the cleaner. All fields are optional.
type Metrics struct {
	ErrorsTotal  metrics.Counter
	RunsTotal    metrics.Counter
	DeletedTotal metrics.Counter
}

var _ periodic.Task = (*Cleaner)(nil)

// Cleaner is a periodic task that removes orphaned key chain links.
type Cleaner struct {
	Store     LinkStore
	Metrics   Metrics
	// OnRemoved is called after a run removed at least one link. Optional.
	OnRemoved func()
}

// Start runs c every interval.
func Start(c *Cleaner, interval time.Duration) *periodic.Runner {
	return periodic.Start(c, interval, interval)
}

func (c *Cleaner) Name() string {
	return "keychain_link_cleaner"
}

func (c *Cleaner) Run(ctx context.Context) {
	removed, err := c.Store.DeleteOrphanedKeyChainLinks(ctx)
	if err != nil {
		log.FromCtx(ctx).Error("Removing orphaned key chain links failed", "err", err)
		metrics.CounterInc(c.Metrics.ErrorsTotal)
		return
	}
	metrics.CounterInc(c.Metrics.RunsTotal)
	if removed == 0 {
		return
	}
	log.FromCtx(ctx).Debug("Removed orphaned key chain links", "count", removed)
	metrics.CounterAdd(c.Metrics.DeletedTotal, float64(removed))
	if c.OnRemoved != nil {
		c.OnRemoved()
	}
}
