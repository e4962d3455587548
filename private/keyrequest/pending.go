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

// Package keyrequest contains the building blocks shared by the secret and room key request
// protocols: the set of pending incoming requests, receiver selection, sender resolution,
// cancellation fan-out and the expiry sweep of outgoing requests.
package keyrequest

import (
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/crosstrust/keytrust/pkg/matrix"
)

// NewRequestID returns a fresh random request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// Key identifies an incoming request. Request IDs are only unique per requesting device.
type Key struct {
	User      matrix.UserID
	Device    matrix.DeviceID
	RequestID string
}

func (k Key) less(o Key) bool {
	if k.User != o.User {
		return k.User < o.User
	}
	if k.Device != o.Device {
		return k.Device < o.Device
	}
	return k.RequestID < o.RequestID
}

// Entry is a pending request.
type Entry[T any] struct {
	Key     Key
	Request T
}

// Pending is the set of incoming requests waiting to be processed. The set is an immutable
// snapshot that is replaced by compare-and-swap, so concurrent mutations never interleave
// destructively. The zero value is an empty set.
type Pending[T any] struct {
	set atomic.Pointer[map[Key]T]
}

// Add adds the request, replacing a pending request with the same key.
func (p *Pending[T]) Add(k Key, req T) {
	p.update(func(m map[Key]T) { m[k] = req })
}

// Remove removes the request with the given key. It returns whether there was one.
func (p *Pending[T]) Remove(k Key) bool {
	var removed bool
	p.update(func(m map[Key]T) {
		_, removed = m[k]
		delete(m, k)
	})
	return removed
}

// Len returns the number of pending requests.
func (p *Pending[T]) Len() int {
	cur := p.set.Load()
	if cur == nil {
		return 0
	}
	return len(*cur)
}

// Drain removes all pending requests and returns them ordered by key. Requests added after
// Drain returned are kept for the next call.
func (p *Pending[T]) Drain() []Entry[T] {
	cur := p.set.Swap(nil)
	if cur == nil {
		return nil
	}
	entries := make([]Entry[T], 0, len(*cur))
	for k, v := range *cur {
		entries = append(entries, Entry[T]{Key: k, Request: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.less(entries[j].Key)
	})
	return entries
}

func (p *Pending[T]) update(f func(m map[Key]T)) {
	for {
		old := p.set.Load()
		next := make(map[Key]T)
		if old != nil {
			for k, v := range *old {
				next[k] = v
			}
		}
		f(next)
		if p.set.CompareAndSwap(old, &next) {
			return
		}
	}
}
