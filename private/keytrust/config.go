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

package keytrust

import (
	"io"
	"time"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/backup"
	"github.com/crosstrust/keytrust/private/config"
	"github.com/crosstrust/keytrust/private/env"
	"github.com/crosstrust/keytrust/private/keyquery"
	"github.com/crosstrust/keytrust/private/keyrequest"
	"github.com/crosstrust/keytrust/private/retry"
	"github.com/crosstrust/keytrust/private/storage"
)

const (
	// DefaultLinkCacheSize is the default number of signing keys whose links are cached.
	DefaultLinkCacheSize = 1024
	// DefaultSweepInterval is the default interval of the request expiry sweeps.
	DefaultSweepInterval = 10 * time.Minute
	// DefaultKeyQueryInterval is the default interval of the key query updater.
	DefaultKeyQueryInterval = time.Minute
)

var _ config.Config = (*Config)(nil)

// Config is the configuration of the key trust core.
type Config struct {
	General  env.General      `toml:"general,omitempty"`
	Logging  log.Config       `toml:"log,omitempty"`
	Metrics  env.Metrics      `toml:"metrics,omitempty"`
	API      env.API          `toml:"api,omitempty"`
	Storage  storage.DBConfig `toml:"storage,omitempty"`
	Trust    TrustConfig      `toml:"trust,omitempty"`
	Backup   backup.Config    `toml:"backup,omitempty"`
	Requests RequestsConfig   `toml:"requests,omitempty"`
	KeyQuery KeyQueryConfig   `toml:"keyquery,omitempty"`
}

// LoadConfig reads the configuration from file, initializes the defaults and validates it.
func LoadConfig(file string) (Config, error) {
	var cfg Config
	if err := config.LoadFile(file, &cfg); err != nil {
		return Config{}, err
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, serrors.Wrap("validating config", err, "file", file)
	}
	return cfg, nil
}

// InitDefaults initializes the default values for all parts of the config.
func (cfg *Config) InitDefaults() {
	config.InitAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Storage,
		&cfg.Trust,
		&cfg.Backup,
		&cfg.Requests,
		&cfg.KeyQuery,
	)
}

// Validate validates all parts of the config.
func (cfg *Config) Validate() error {
	return config.ValidateAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Storage,
		&cfg.Trust,
		&cfg.Backup,
		&cfg.Requests,
		&cfg.KeyQuery,
	)
}

// Sample generates a sample config file.
func (cfg *Config) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteSample(dst, path, nil,
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Storage,
		&cfg.Trust,
		&cfg.Backup,
		&cfg.Requests,
		&cfg.KeyQuery,
	)
}

var _ config.Config = (*TrustConfig)(nil)

// TrustConfig configures the trust engine.
type TrustConfig struct {
	// LinkCacheSize is the number of signing keys whose key chain links are kept in memory.
	LinkCacheSize int `toml:"link_cache_size,omitempty"`
}

func (cfg *TrustConfig) InitDefaults() {
	if cfg.LinkCacheSize == 0 {
		cfg.LinkCacheSize = DefaultLinkCacheSize
	}
}

func (cfg *TrustConfig) Validate() error {
	if cfg.LinkCacheSize < 0 {
		return serrors.New("link_cache_size must not be negative",
			"link_cache_size", cfg.LinkCacheSize)
	}
	return nil
}

func (cfg *TrustConfig) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, trustSample)
}

func (cfg *TrustConfig) ConfigName() string {
	return "trust"
}

var _ config.Config = (*RequestsConfig)(nil)

// RequestsConfig configures the expiry of outgoing secret and room key requests.
type RequestsConfig struct {
	config.NoValidator
	// SweepInterval is the interval in which expired requests are cancelled.
	SweepInterval config.Duration `toml:"sweep_interval,omitempty"`
	// Horizon is the age after which an unanswered request expires.
	Horizon config.Duration `toml:"horizon,omitempty"`
}

func (cfg *RequestsConfig) InitDefaults() {
	cfg.SweepInterval.SetDefault(DefaultSweepInterval)
	cfg.Horizon.SetDefault(keyrequest.DefaultHorizon)
}

func (cfg *RequestsConfig) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, requestsSample)
}

func (cfg *RequestsConfig) ConfigName() string {
	return "requests"
}

var _ config.Config = (*KeyQueryConfig)(nil)

// KeyQueryConfig configures the updater of outdated keys.
type KeyQueryConfig struct {
	// Interval is the interval in which outdated users are queried without being triggered.
	Interval config.Duration `toml:"interval,omitempty"`
	// BatchSize is the maximum number of users per key query.
	BatchSize int          `toml:"batch_size,omitempty"`
	Retry     retry.Config `toml:"retry"`
}

func (cfg *KeyQueryConfig) InitDefaults() {
	cfg.Interval.SetDefault(DefaultKeyQueryInterval)
	if cfg.BatchSize == 0 {
		cfg.BatchSize = keyquery.DefaultBatchSize
	}
	config.InitAll(&cfg.Retry)
}

func (cfg *KeyQueryConfig) Validate() error {
	if cfg.BatchSize < 0 {
		return serrors.New("batch_size must not be negative", "batch_size", cfg.BatchSize)
	}
	return config.ValidateAll(&cfg.Retry)
}

func (cfg *KeyQueryConfig) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, keyQuerySample)
	config.WriteSample(dst, path, ctx, &cfg.Retry)
}

func (cfg *KeyQueryConfig) ConfigName() string {
	return "keyquery"
}
