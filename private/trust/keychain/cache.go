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

// Package keychain caches the key chain links found during trust calculation. Links are
// persisted through the store, and the signer to signed direction, which is the one walked by
// incremental trust propagation, is additionally indexed in an adaptive replacement cache.
package keychain

import (
	"context"
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/storage/keystore"
)

// DefaultSize is the default number of signers kept in the index.
const DefaultSize = 1024

type signerKey struct {
	user  matrix.UserID
	value string
}

// Cache is a key chain link cache backed by a KeyChainLinkStore.
type Cache struct {
	store keystore.KeyChainLinkStore
	index *arc.ARCCache[signerKey, []matrix.KeyChainLink]
	// Lookups counts index lookups, labelled with result "hit" or "miss".
	Lookups metrics.Counter

	mu sync.Mutex
	// gen is incremented on every replacement. A lookup only populates the index if no
	// replacement happened while it queried the store.
	gen uint64
}

// New creates a cache with an index of the given size.
func New(store keystore.KeyChainLinkStore, size int) (*Cache, error) {
	index, err := arc.NewARC[signerKey, []matrix.KeyChainLink](size)
	if err != nil {
		return nil, serrors.Wrap("creating key chain link cache", err)
	}
	return &Cache{
		store: store,
		index: index,
	}, nil
}

// Replace replaces all links pointing to the signed key. The last writer wins.
func (c *Cache) Replace(ctx context.Context, signedUser matrix.UserID, signedKey matrix.Ed25519Key,
	links []matrix.KeyChainLink) error {

	removed, err := c.store.ReplaceKeyChainLinks(ctx, signedUser, signedKey.Value, links)
	if err != nil {
		return serrors.Wrap("replacing key chain links", err,
			"user", signedUser, "key", signedKey.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, l := range removed {
		c.index.Remove(signerKey{user: l.SigningUserID, value: l.SigningKey.Value})
	}
	for _, l := range links {
		c.index.Remove(signerKey{user: l.SigningUserID, value: l.SigningKey.Value})
	}
	return nil
}

// SignedBy returns the links whose signer is the given key.
func (c *Cache) SignedBy(ctx context.Context, signingUser matrix.UserID,
	signingKey matrix.Ed25519Key) ([]matrix.KeyChainLink, error) {

	k := signerKey{user: signingUser, value: signingKey.Value}
	c.mu.Lock()
	links, ok := c.index.Get(k)
	gen := c.gen
	c.mu.Unlock()
	if ok {
		metrics.CounterInc(metrics.CounterWith(c.Lookups, "result", "hit"))
		return append([]matrix.KeyChainLink(nil), links...), nil
	}
	metrics.CounterInc(metrics.CounterWith(c.Lookups, "result", "miss"))

	links, err := c.store.KeyChainLinksBySigner(ctx, signingUser, signingKey.Value)
	if err != nil {
		return nil, serrors.Wrap("reading key chain links", err,
			"user", signingUser, "key", signingKey.ID)
	}
	c.mu.Lock()
	if c.gen == gen {
		c.index.Add(k, links)
	}
	c.mu.Unlock()
	return append([]matrix.KeyChainLink(nil), links...), nil
}

// Signers returns the links pointing to the signed key.
func (c *Cache) Signers(ctx context.Context, signedUser matrix.UserID,
	signedKey matrix.Ed25519Key) ([]matrix.KeyChainLink, error) {

	links, err := c.store.KeyChainLinksBySigned(ctx, signedUser, signedKey.Value)
	if err != nil {
		return nil, serrors.Wrap("reading key chain links", err,
			"user", signedUser, "key", signedKey.ID)
	}
	return links, nil
}

// Purge drops the index. The persisted links are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.index.Purge()
}
