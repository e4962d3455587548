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

// Package worker contains helpers for long-running tasks that are started
// with Run and stopped with Close.
package worker

import (
	"context"
	"sync"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

// Base is meant to be embedded in long-running tasks. It ensures that Run is
// executed at most once, and that Close can be called before, during, or
// after Run.
//
// The zero value is ready to use.
type Base struct {
	mu       sync.Mutex
	running  bool
	closed   bool
	doneChan chan struct{}
}

// RunWrapper calls setup and then run. If the worker was already closed, it
// returns nil without calling either. A second concurrent call returns an
// error.
func (b *Base) RunWrapper(ctx context.Context, setup, run func(context.Context) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	if b.running {
		b.mu.Unlock()
		return serrors.New("function is running or was already run")
	}
	b.running = true
	b.initDoneChan()
	if setup != nil {
		if err := setup(ctx); err != nil {
			b.mu.Unlock()
			return serrors.Wrap("unable to set up", err)
		}
	}
	b.mu.Unlock()
	if run == nil {
		<-b.doneChan
		return nil
	}
	return run(ctx)
}

// CloseWrapper calls close and signals the done channel. Subsequent calls are
// no-ops.
func (b *Base) CloseWrapper(ctx context.Context, closeF func(context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.initDoneChan()
	close(b.doneChan)
	if closeF != nil {
		if err := closeF(ctx); err != nil {
			return serrors.Wrap("unable to clean up", err)
		}
	}
	return nil
}

// GetDoneChan returns a channel that is closed once CloseWrapper was called.
func (b *Base) GetDoneChan() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initDoneChan()
	return b.doneChan
}

func (b *Base) initDoneChan() {
	if b.doneChan == nil {
		b.doneChan = make(chan struct{})
	}
}
