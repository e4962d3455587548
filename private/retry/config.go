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

package retry

import (
	"io"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/config"
)

var _ config.Config = (*Config)(nil)

// Config is the configurable part of a retry policy.
type Config struct {
	InitialInterval  config.Duration `toml:"initial_interval,omitempty"`
	MaxInterval      config.Duration `toml:"max_interval,omitempty"`
	MaxElapsedTime   config.Duration `toml:"max_elapsed_time,omitempty"`
	NotFoundInterval config.Duration `toml:"not_found_interval,omitempty"`
}

func (cfg *Config) InitDefaults() {
	cfg.InitialInterval.SetDefault(DefaultInitialInterval)
	cfg.MaxInterval.SetDefault(DefaultMaxInterval)
	cfg.NotFoundInterval.SetDefault(DefaultNotFoundInterval)
}

func (cfg *Config) Validate() error {
	if cfg.MaxInterval.Duration < cfg.InitialInterval.Duration {
		return serrors.New("max_interval must not be smaller than initial_interval")
	}
	return nil
}

func (cfg *Config) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, `
# The wait before the first retry.
initial_interval = "100ms"

# The maximum wait between two attempts.
max_interval = "5m0s"

# The total time after which the operation is given up. "0s" retries forever.
max_elapsed_time = "0s"

# The minimum wait after the server reported that the resource does not exist.
not_found_interval = "10s"
`)
}

func (cfg *Config) ConfigName() string {
	return "retry"
}

// Policy returns the policy described by the configuration.
func (cfg *Config) Policy() Policy {
	return Policy{
		InitialInterval:  cfg.InitialInterval.Duration,
		MaxInterval:      cfg.MaxInterval.Duration,
		Multiplier:       DefaultMultiplier,
		MaxElapsedTime:   cfg.MaxElapsedTime.Duration,
		NotFoundInterval: cfg.NotFoundInterval.Duration,
	}
}
