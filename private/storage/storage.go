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

// Package storage provides factories for the application storage backends.
package storage

import (
	"io"
	"time"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/private/config"
	"github.com/crosstrust/keytrust/private/periodic"
	"github.com/crosstrust/keytrust/private/storage/cleaner"
	"github.com/crosstrust/keytrust/private/storage/db"
	"github.com/crosstrust/keytrust/private/storage/keystore"
	sqlitekeystore "github.com/crosstrust/keytrust/private/storage/keystore/sqlite"
)

// Backend indicates the database backend type.
type Backend string

const (
	// BackendSqlite indicates an sqlite backend.
	BackendSqlite Backend = "sqlite"
	// DefaultKeyStorePath is the default connection string of the key store.
	DefaultKeyStorePath = "/var/lib/keytrust/keys.db"
	// DefaultCleanupInterval is the default interval of the key chain link cleaner.
	DefaultCleanupInterval = 10 * time.Minute
)

var _ config.Config = (*DBConfig)(nil)

// DBConfig is the configuration for the connection to a database.
type DBConfig struct {
	Connection      string          `toml:"connection,omitempty"`
	MaxOpenConns    int             `toml:"max_open_conns,omitempty"`
	MaxIdleConns    int             `toml:"max_idle_conns,omitempty"`
	CleanupInterval config.Duration `toml:"cleanup_interval,omitempty"`
}

func (cfg *DBConfig) InitDefaults() {
	if cfg.Connection == "" {
		cfg.Connection = DefaultKeyStorePath
	}
	cfg.CleanupInterval.SetDefault(DefaultCleanupInterval)
}

func (cfg *DBConfig) Validate() error {
	return nil
}

// Sample writes a config sample to the writer.
func (cfg *DBConfig) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, sample)
}

// ConfigName is the key in the toml file.
func (cfg *DBConfig) ConfigName() string {
	return "storage"
}

// KeyStoreOptions are the optional parts of the key store.
type KeyStoreOptions struct {
	Metrics        *keystore.Metrics
	CleanerMetrics cleaner.Metrics
	// OnLinksRemoved is called after the cleaner removed orphaned key chain links.
	OnLinksRemoved func()
}

// NewKeyStorage opens the key store and starts a periodic task that prunes orphaned key chain
// links. Closing the returned store stops the task.
func NewKeyStorage(c DBConfig, opts KeyStoreOptions) (keystore.DB, error) {
	log.Info("Connecting KeyStore", "backend", BackendSqlite, "connection", c.Connection)
	backend, err := sqlitekeystore.New(c.Connection, &db.SqliteConfig{
		MaxOpenReadConns: c.MaxOpenConns,
		MaxIdleReadConns: c.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	store := &keystore.Database{Backend: backend, Metrics: opts.Metrics}

	interval := c.CleanupInterval.Duration
	if interval == 0 {
		interval = DefaultCleanupInterval
	}
	runner := cleaner.Start(&cleaner.Cleaner{
		Store:     store,
		Metrics:   opts.CleanerMetrics,
		OnRemoved: opts.OnLinksRemoved,
	}, interval)
	return keyStoreWithCleaner{DB: store, cleaner: runner}, nil
}

// keyStoreWithCleaner stops both the database and the cleanup task on Close.
type keyStoreWithCleaner struct {
	keystore.DB
	cleaner *periodic.Runner
}

func (s keyStoreWithCleaner) Close() error {
	s.cleaner.Kill()
	return s.DB.Close()
}
