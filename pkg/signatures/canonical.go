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

// Package signatures signs and verifies JSON objects with ed25519 keys the
// way Matrix does: the signature covers the canonical JSON encoding of the
// object without its "signatures" and "unsigned" members.
package signatures

import (
	"bytes"
	"encoding/json"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

// Canonical returns the canonical JSON encoding of v with the "signatures"
// and "unsigned" members removed. Object keys are sorted, insignificant
// whitespace is dropped and no HTML escaping is applied.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, serrors.Wrap("encoding object", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, serrors.Wrap("decoding object", err)
	}
	if obj, ok := generic.(map[string]any); ok {
		delete(obj, "signatures")
		delete(obj, "unsigned")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json sorts map keys.
	if err := enc.Encode(generic); err != nil {
		return nil, serrors.Wrap("encoding canonical json", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	ca, err := canonicalRaw(a)
	if err != nil {
		return false
	}
	cb, err := canonicalRaw(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// canonicalRaw keeps every member, including signatures.
func canonicalRaw(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
