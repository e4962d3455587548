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

package matrix_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstrust/keytrust/pkg/matrix"
)

func TestTrustLevelPredicates(t *testing.T) {
	testCases := map[string]struct {
		Level       matrix.TrustLevel
		Verified    bool
		CrossSigned bool
		MasterOnly  bool
	}{
		"valid verified":         {Level: matrix.Valid(true), Verified: true},
		"valid unverified":       {Level: matrix.Valid(false)},
		"cross signed verified":  {Level: matrix.CrossSigned(true), Verified: true, CrossSigned: true},
		"cross signed":           {Level: matrix.CrossSigned(false), CrossSigned: true},
		"not cross signed":       {Level: matrix.NotCrossSigned()},
		"not all devices": {
			Level:      matrix.NotAllDeviceKeysCrossSigned(true),
			Verified:   true,
			MasterOnly: true,
		},
		"master changed": {Level: matrix.MasterKeyChangedRecently(true), MasterOnly: true},
		"blocked":        {Level: matrix.Blocked()},
		"invalid":        {Level: matrix.Invalid("broken")},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.Verified, tc.Level.IsVerified())
			assert.Equal(t, tc.CrossSigned, tc.Level.IsCrossSigned())
			assert.Equal(t, tc.MasterOnly, tc.Level.MasterOnly())
		})
	}
}

func TestTrustLevelJSON(t *testing.T) {
	raw, err := json.Marshal(matrix.Invalid("missing key"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"invalid","reason":"missing key"}`, string(raw))

	var lvl matrix.TrustLevel
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"cross_signed","verified":true}`), &lvl))
	assert.Equal(t, matrix.CrossSigned(true), lvl)
	assert.Equal(t, "cross_signed(verified=true)", lvl.String())
}

func TestKeyID(t *testing.T) {
	id := matrix.NewKeyID(matrix.AlgorithmEd25519, "DEVICE")
	assert.Equal(t, matrix.KeyID("ed25519:DEVICE"), id)
	assert.Equal(t, "ed25519", id.Algorithm())
	assert.Equal(t, "DEVICE", id.ID())
}

func TestSignaturesCopyOnWrite(t *testing.T) {
	orig := matrix.Signatures{"@a:x": {"ed25519:A": "sig"}}
	added := orig.Add("@b:x", "ed25519:B", "sig2")
	_, ok := orig.Get("@b:x", "ed25519:B")
	assert.False(t, ok)
	sig, ok := added.Get("@b:x", "ed25519:B")
	assert.True(t, ok)
	assert.Equal(t, "sig2", sig)

	removed := added.Remove("@a:x", "ed25519:A")
	assert.NotContains(t, removed, matrix.UserID("@a:x"))
	assert.Contains(t, added, matrix.UserID("@a:x"))

	merged := orig.Merge(matrix.Signatures{"@a:x": {"ed25519:C": "sig3"}})
	assert.Len(t, merged["@a:x"], 2)
	assert.Len(t, orig["@a:x"], 1)
}

func TestCrossSigningKeyAccessors(t *testing.T) {
	k := matrix.CrossSigningKey{
		UserID: "@a:x",
		Usage:  []matrix.KeyUsage{matrix.UsageSelfSigning},
		Keys:   map[matrix.KeyID]string{"ed25519:PUB": "PUB"},
	}
	usage, ok := k.PrimaryUsage()
	require.True(t, ok)
	assert.Equal(t, matrix.UsageSelfSigning, usage)
	pub, ok := k.PublicKey()
	require.True(t, ok)
	assert.Equal(t, matrix.Ed25519Key{ID: "ed25519:PUB", Value: "PUB"}, pub)

	d := matrix.DeviceKeys{
		UserID:   "@a:x",
		DeviceID: "DEV",
		Keys:     map[matrix.KeyID]string{"ed25519:DEV": "SIGN", "curve25519:DEV": "IDENT"},
	}
	sk, ok := d.SigningKey()
	require.True(t, ok)
	assert.Equal(t, "SIGN", sk.Value)
	ik, ok := d.IdentityKey()
	require.True(t, ok)
	assert.Equal(t, "IDENT", ik)
}
