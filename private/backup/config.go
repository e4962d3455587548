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
	"io"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/config"
	"github.com/crosstrust/keytrust/private/retry"
)

const defaultVersionCacheExpiration = 30 * time.Second

var _ config.Config = (*Config)(nil)

// Config is the key backup configuration.
type Config struct {
	// UploadDebounce is the quiet period before new sessions are uploaded.
	UploadDebounce config.Duration `toml:"upload_debounce,omitempty"`
	// UploadBatchSize is the maximum number of sessions per upload request.
	UploadBatchSize int          `toml:"upload_batch_size,omitempty"`
	Cache           Cache        `toml:"cache"`
	Retry           retry.Config `toml:"retry"`
}

func (cfg *Config) InitDefaults() {
	cfg.UploadDebounce.SetDefault(DefaultUploadDebounce)
	if cfg.UploadBatchSize == 0 {
		cfg.UploadBatchSize = DefaultUploadBatchSize
	}
	config.InitAll(
		&cfg.Cache,
		&cfg.Retry,
	)
}

func (cfg *Config) Validate() error {
	if cfg.UploadBatchSize < 0 {
		return serrors.New("upload_batch_size must not be negative",
			"upload_batch_size", cfg.UploadBatchSize)
	}
	return config.ValidateAll(
		&cfg.Cache,
		&cfg.Retry,
	)
}

func (cfg *Config) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, `
# The quiet period after the last new session before sessions are uploaded.
upload_debounce = "2s"

# The maximum number of sessions uploaded in one request.
upload_batch_size = 100
`)
	config.WriteSample(dst, path, ctx,
		&cfg.Cache,
		&cfg.Retry,
	)
}

func (cfg *Config) ConfigName() string {
	return "backup"
}

// Cache configures the cache of the server's backup version.
type Cache struct {
	config.NoValidator
	Disable    bool            `toml:"disable,omitempty"`
	Expiration config.Duration `toml:"expiration,omitempty"`
}

// New creates the version cache. It returns nil if caching is disabled.
func (cfg *Cache) New() *cache.Cache {
	if cfg.Disable {
		return nil
	}
	return cache.New(cfg.Expiration.Duration, time.Minute)
}

func (cfg *Cache) InitDefaults() {
	cfg.Expiration.SetDefault(defaultVersionCacheExpiration)
}

func (cfg *Cache) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, `
# Disable caching of the backup version.
disable = false

# Time after which a cached backup version is fetched again.
expiration = "30s"
`)
}

func (cfg *Cache) ConfigName() string {
	return "cache"
}
