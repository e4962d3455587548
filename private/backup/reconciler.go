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
	"context"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/private/worker"
)

// Reconciler keeps the current version up to date. It reconciles on start, whenever the
// cached secrets change and whenever a refresh is triggered.
type Reconciler struct {
	Engine *Engine

	worker.Base
}

// Run runs the reconciler until ctx is done or Close is called.
func (r *Reconciler) Run(ctx context.Context) error {
	return r.RunWrapper(ctx, nil, r.run)
}

// Close stops the reconciler.
func (r *Reconciler) Close(ctx context.Context) error {
	return r.CloseWrapper(ctx, nil)
}

func (r *Reconciler) run(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	secrets := r.Engine.Store.SubscribeSecrets()
	defer secrets.Close()
	refresh := r.Engine.refresh.Subscribe()
	defer refresh.Close()

	for {
		if err := r.Engine.Reconcile(ctx); err != nil && ctx.Err() == nil {
			logger.Info("Reconciling backup version failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-r.GetDoneChan():
			return nil
		case <-secrets.Updates:
		case <-refresh.Updates:
		}
	}
}
