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

package config_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstrust/keytrust/private/config"
)

type innerCfg struct {
	config.NoValidator
	Timeout config.Duration `toml:"timeout,omitempty"`
}

func (c *innerCfg) InitDefaults() {
	c.Timeout.SetDefault(5 * time.Second)
}

func (c *innerCfg) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, "timeout = \"5s\"\n")
}

func (c *innerCfg) ConfigName() string {
	return "inner"
}

type outerCfg struct {
	Inner innerCfg `toml:"inner,omitempty"`
}

func TestWriteSampleDecodes(t *testing.T) {
	var buf bytes.Buffer
	inner := &innerCfg{}
	config.WriteSample(&buf, nil, nil, inner)
	assert.Contains(t, buf.String(), "[inner]")

	var parsed outerCfg
	require.NoError(t, config.Decode(buf.Bytes(), &parsed))
	inner.InitDefaults()
	assert.Equal(t, inner.Timeout, parsed.Inner.Timeout)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var parsed outerCfg
	err := config.Decode([]byte("[inner]\nbogus = 1\n"), &parsed)
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	var d config.Duration
	assert.Error(t, d.UnmarshalText([]byte("soon")))
	require.NoError(t, d.UnmarshalText([]byte("1h30m")))
	assert.Equal(t, 90*time.Minute, d.Duration)
	raw, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", string(raw))
	d.SetDefault(time.Second)
	assert.Equal(t, 90*time.Minute, d.Duration)
}
