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

// Package retry runs server operations with capped exponential backoff.
//
// Errors are retried until the policy's elapsed time bound is reached. Errors wrapped with
// Permanent are returned immediately. Not found errors are retried as well, but wait at least
// the policy's not found interval, since the resource may simply not be available yet.
// Cancelling the context aborts immediately, also while waiting.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/matrixapi"
)

// Default policy values.
const (
	DefaultInitialInterval  = 100 * time.Millisecond
	DefaultMaxInterval      = 5 * time.Minute
	DefaultMultiplier       = 2
	DefaultNotFoundInterval = 10 * time.Second
)

// Policy configures the backoff of a retried operation.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxElapsedTime bounds the total time spent retrying. Zero retries forever.
	MaxElapsedTime time.Duration
	// NotFoundInterval is the minimum wait after a not found error.
	NotFoundInterval time.Duration
	// WaitOnline, if set, is called before every attempt and blocks until the server is
	// reachable.
	WaitOnline func(ctx context.Context) error
}

// DefaultPolicy returns a policy with default intervals and the given elapsed time bound.
func DefaultPolicy(maxElapsed time.Duration) Policy {
	return Policy{
		InitialInterval:  DefaultInitialInterval,
		MaxInterval:      DefaultMaxInterval,
		Multiplier:       DefaultMultiplier,
		MaxElapsedTime:   maxElapsed,
		NotFoundInterval: DefaultNotFoundInterval,
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = p.MaxElapsedTime
	b.Reset()
	return b
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, fails permanently, the policy gives up or ctx is done.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy,
	op func(ctx context.Context) (T, error)) (T, error) {

	var zero T
	b := p.backOff()
	for attempt := 1; ; attempt++ {
		if p.WaitOnline != nil {
			if err := p.WaitOnline(ctx); err != nil {
				return zero, err
			}
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return zero, serrors.Wrap("giving up", err, "attempts", attempt)
		}
		if errors.Is(err, matrixapi.ErrNotFound) && wait < p.NotFoundInterval {
			wait = p.NotFoundInterval
		}
		log.FromCtx(ctx).Debug("Operation failed, retrying",
			"attempt", attempt, "wait", wait, "err", err)
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
