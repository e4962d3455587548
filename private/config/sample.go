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

package config

import (
	"io"
	"strings"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

// CtxMap contains the context for sample generation.
type CtxMap map[string]string

// WriteSample writes the samples of all samplers to dst in order. The sample of a
// TableSampler is preceded by its [path] header and indented. It panics if writing to dst
// fails.
func WriteSample(dst io.Writer, path Path, ctx CtxMap, samplers ...Sampler) {
	for _, sampler := range samplers {
		var buf strings.Builder
		ts, ok := sampler.(TableSampler)
		if !ok {
			sampler.Sample(&buf, path, ctx)
			WriteString(dst, buf.String())
			continue
		}
		table := path.Extend(ts.ConfigName())
		ts.Sample(&buf, table, ctx)
		WriteString(dst, "\n["+strings.Join(table, ".")+"]\n")
		WriteString(dst, indent(buf.String()))
	}
}

// WriteString writes the string to dst. It panics if an error occurs.
func WriteString(dst io.Writer, s string) {
	if _, err := io.WriteString(dst, s); err != nil {
		panic(serrors.Wrap("writing sample", err))
	}
}

// indent prefixes every non-empty line of s with four spaces.
func indent(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(s, "\n"), "\n") {
		if line != "" {
			b.WriteString("    ")
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
