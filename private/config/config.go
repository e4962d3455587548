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

// Package config defines how keytrust configuration sections are defaulted, validated and
// documented.
//
// Each section implements Config. InitDefaults fills the fields that were left unset in the
// TOML file, so values set by the operator always win. Validate checks the section after
// defaulting. Sample writes a commented TOML block with the default values, and tests decode
// the samples to keep them in line with the defaults.
//
// Sample panics if writing fails.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

// Config is implemented by every configuration section.
type Config interface {
	Sampler
	Validator
	Defaulter
}

type Validator interface {
	// Validate checks the section and all its subsections.
	Validate() error
}

type Defaulter interface {
	// InitDefaults sets the unset fields of the section and all its subsections.
	InitDefaults()
}

type Sampler interface {
	// Sample writes a commented sample of the section to dst.
	Sample(dst io.Writer, path Path, ctx CtxMap)
}

// TableSampler is a Sampler whose sample is a TOML table named ConfigName.
type TableSampler interface {
	Sampler
	ConfigName() string
}

// Path is the dotted name of a TOML table, one element per level.
type Path []string

// Extend returns a copy of p with s appended.
func (p Path) Extend(s string) Path {
	return append(append(make(Path, 0, len(p)+1), p...), s)
}

// NoValidator can be embedded by sections without validation.
type NoValidator struct{}

func (NoValidator) Validate() error {
	return nil
}

// NoDefaulter can be embedded by sections without defaults.
type NoDefaulter struct{}

func (NoDefaulter) InitDefaults() {}

// ValidateAll validates the sections in order and stops at the first error.
func ValidateAll(validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return serrors.Wrap("invalid config section", err, "section", sectionName(v))
		}
	}
	return nil
}

// InitAll sets the defaults of all sections.
func InitAll(defaulters ...Defaulter) {
	for _, d := range defaulters {
		d.InitDefaults()
	}
}

func sectionName(v any) string {
	if ts, ok := v.(TableSampler); ok {
		return ts.ConfigName()
	}
	return fmt.Sprintf("%T", v)
}

// Decode decodes a raw config. Unknown fields are an error.
func Decode(raw []byte, cfg any) error {
	return toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(cfg)
}

// LoadFile loads the config from file.
func LoadFile(file string, cfg any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return serrors.Wrap("reading config file", err, "file", file)
	}
	if err := Decode(raw, cfg); err != nil {
		return serrors.Wrap("decoding config file", err, "file", file)
	}
	return nil
}

// Duration is a time.Duration that is encoded as a string such as "1h30m" in
// TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return serrors.Wrap("parsing duration", err, "input", string(text))
	}
	d.Duration = v
	return nil
}

// MarshalText encodes the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// SetDefault sets the duration to def if it is unset.
func (d *Duration) SetDefault(def time.Duration) {
	if d.Duration == 0 {
		d.Duration = def
	}
}
