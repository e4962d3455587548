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

// Package notify provides change subscriptions for stores and observable
// values.
package notify

import (
	"context"
	"sync"
)

// Subscription receives a signal on Updates after every change. Signals are
// coalesced: a subscriber that is slow to read sees at least one signal after
// the last change.
type Subscription struct {
	Updates <-chan struct{}

	updates chan struct{}
	b       *Broadcaster
}

// Close stops the subscription.
func (s *Subscription) Close() {
	s.b.remove(s)
}

// Broadcaster fans out change signals to subscriptions. The zero value is
// ready to use.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscribe returns a new subscription.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan struct{}, 1)
	s := &Subscription{Updates: ch, updates: ch, b: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[*Subscription]struct{})
	}
	b.subs[s] = struct{}{}
	return s
}

// Notify signals all subscriptions without blocking.
func (b *Broadcaster) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.updates <- struct{}{}:
		default:
		}
	}
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

// Value is an observable value. Every Set notifies the subscribers.
type Value[T any] struct {
	Broadcaster
	mu sync.RWMutex
	v  T
}

// NewValue creates a value with the given initial content.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.v
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(n T) {
	v.mu.Lock()
	v.v = n
	v.mu.Unlock()
	v.Notify()
}

// Wait blocks until pred holds for the current value or ctx is done.
func (v *Value[T]) Wait(ctx context.Context, pred func(T) bool) (T, error) {
	sub := v.Subscribe()
	defer sub.Close()
	for {
		cur := v.Get()
		if pred(cur) {
			return cur, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-sub.Updates:
		}
	}
}
