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

package trust_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/private/xtest"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/matrixapi/mock_matrixapi"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/storage/keystore"
	"github.com/crosstrust/keytrust/private/storage/keystore/sqlite"
	"github.com/crosstrust/keytrust/private/trust"
	"github.com/crosstrust/keytrust/private/trust/keychain"
	trustmetrics "github.com/crosstrust/keytrust/private/trust/metrics"
)

const (
	alice matrix.UserID = "@alice:example.org"
	bob   matrix.UserID = "@bob:example.org"
	carol matrix.UserID = "@carol:example.org"
)

func TestCalculateTrustLevel(t *testing.T) {
	type setup func(t *testing.T, e *trust.Engine, id *identity)

	withKeys := func(cross bool, devices ...func(*testing.T, *identity) matrix.DeviceKeys) setup {
		return func(t *testing.T, e *trust.Engine, id *identity) {
			var keys map[matrix.KeyUsage]*matrix.CrossSigningKey
			if cross {
				keys = id.crossKeys(t)
			}
			var dks []matrix.DeviceKeys
			for _, d := range devices {
				dks = append(dks, d(t, id))
			}
			require.NoError(t, e.UpdateUserKeys(context.Background(), alice, keys, dks))
		}
	}
	signedDevice := func(d matrix.DeviceID) func(*testing.T, *identity) matrix.DeviceKeys {
		return func(t *testing.T, id *identity) matrix.DeviceKeys {
			return id.device(t, d, id.bySSK())
		}
	}
	unsignedDevice := func(d matrix.DeviceID) func(*testing.T, *identity) matrix.DeviceKeys {
		return func(t *testing.T, id *identity) matrix.DeviceKeys {
			return id.device(t, d)
		}
	}
	verify := func(key func(*identity) matrix.KeyID) setup {
		return func(t *testing.T, e *trust.Engine, id *identity) {
			require.NoError(t, e.VerifyKey(context.Background(), alice, key(id)))
		}
	}
	block := func(key func(*identity) matrix.KeyID) setup {
		return func(t *testing.T, e *trust.Engine, id *identity) {
			require.NoError(t, e.BlockKey(context.Background(), alice, key(id)))
		}
	}
	deviceA := func(id *identity) matrix.KeyID { return id.deviceKey("A").ID }
	master := func(id *identity) matrix.KeyID { return id.master.Key.ID }
	ssk := func(id *identity) matrix.KeyID { return id.ssk.Key.ID }

	tests := map[string]struct {
		Setup    []setup
		Key      func(*identity) matrix.KeyID
		Expected matrix.TrustLevel
	}{
		"device without cross-signing keys": {
			Setup:    []setup{withKeys(false, unsignedDevice("A"))},
			Key:      deviceA,
			Expected: matrix.Valid(false),
		},
		"verified device without cross-signing keys": {
			Setup:    []setup{withKeys(false, unsignedDevice("A")), verify(deviceA)},
			Key:      deviceA,
			Expected: matrix.Valid(true),
		},
		"device signed by self-signing key": {
			Setup:    []setup{withKeys(true, signedDevice("A"))},
			Key:      deviceA,
			Expected: matrix.CrossSigned(false),
		},
		"device of verified master key": {
			Setup:    []setup{withKeys(true, signedDevice("A")), verify(master)},
			Key:      deviceA,
			Expected: matrix.CrossSigned(true),
		},
		"device not signed by self-signing key": {
			Setup:    []setup{withKeys(true, unsignedDevice("A"))},
			Key:      deviceA,
			Expected: matrix.NotCrossSigned(),
		},
		"verified device not signed by self-signing key": {
			Setup:    []setup{withKeys(true, unsignedDevice("A")), verify(deviceA)},
			Key:      deviceA,
			Expected: matrix.NotCrossSigned(),
		},
		"blocked device": {
			Setup:    []setup{withKeys(true, signedDevice("A")), block(deviceA)},
			Key:      deviceA,
			Expected: matrix.Blocked(),
		},
		"device signed by blocked self-signing key": {
			Setup:    []setup{withKeys(true, signedDevice("A")), block(ssk)},
			Key:      deviceA,
			Expected: matrix.Blocked(),
		},
		"device with forged self-signing signature": {
			Setup: []setup{withKeys(true, func(t *testing.T, id *identity) matrix.DeviceKeys {
				forger, _ := newSigner(t, alice)
				return id.device(t, "A", by{user: alice, signer: forged{id: id.ssk.Key.ID, s: forger}})
			})},
			Key:      deviceA,
			Expected: matrix.NotCrossSigned(),
		},
		"master key": {
			Setup:    []setup{withKeys(true, signedDevice("A"), signedDevice("B"))},
			Key:      master,
			Expected: matrix.CrossSigned(false),
		},
		"master key with device that is not cross-signed": {
			Setup:    []setup{withKeys(true, signedDevice("A"), unsignedDevice("B"))},
			Key:      master,
			Expected: matrix.NotAllDeviceKeysCrossSigned(false),
		},
		"verified master key": {
			Setup:    []setup{withKeys(true, signedDevice("A")), verify(master)},
			Key:      master,
			Expected: matrix.CrossSigned(true),
		},
		"master key signed by verified device": {
			Setup: []setup{
				func(t *testing.T, e *trust.Engine, id *identity) {
					keys := id.crossKeys(t, id.byDevice("A"))
					require.NoError(t, e.UpdateUserKeys(context.Background(), alice, keys,
						[]matrix.DeviceKeys{id.device(t, "A", id.bySSK())}))
				},
				verify(deviceA),
			},
			Key:      master,
			Expected: matrix.CrossSigned(true),
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			e, _ := newEngine(t)
			id := newIdentity(t, alice, "A", "B")
			for _, s := range test.Setup {
				s(t, e, id)
			}
			level, err := e.CalculateTrustLevel(context.Background(), alice, test.Key(id))
			require.NoError(t, err)
			assert.Equal(t, test.Expected, level)
		})
	}
}

func TestUnknownKey(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	_, err := e.CalculateTrustLevel(ctx, alice, "ed25519:UNKNOWN")
	assert.ErrorIs(t, err, trust.ErrUnknownKey)
	assert.ErrorIs(t, e.VerifyKey(ctx, alice, "ed25519:UNKNOWN"), trust.ErrUnknownKey)
	assert.ErrorIs(t, e.BlockKey(ctx, alice, "curve25519:UNKNOWN"), trust.ErrUnknownKey)
}

func TestMalformedDevice(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	dk := matrix.DeviceKeys{
		UserID:   alice,
		DeviceID: "X",
		Keys:     map[matrix.KeyID]string{"curve25519:X": "identity"},
	}
	require.NoError(t, e.UpdateDeviceKeys(ctx, alice, []matrix.DeviceKeys{dk}))
	assert.Equal(t, matrix.Invalid("device has no ed25519 key"), deviceTrust(t, db, alice, "X"))

	other := dk
	other.UserID = bob
	assert.Error(t, e.UpdateDeviceKeys(ctx, alice, []matrix.DeviceKeys{other}))
}

func TestSignatureCycle(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id := newIdentity(t, carol, "A", "B", "C")
	// A is signed by B, B by C and C by A.
	devices := []matrix.DeviceKeys{
		id.device(t, "A", id.byDevice("B")),
		id.device(t, "B", id.byDevice("C")),
		id.device(t, "C", id.byDevice("A")),
	}
	require.NoError(t, e.UpdateDeviceKeys(ctx, carol, devices))
	for _, d := range []matrix.DeviceID{"A", "B", "C"} {
		assert.Equal(t, matrix.Valid(false), deviceTrust(t, db, carol, d), d)
	}

	level, err := e.CalculateTrustLevel(ctx, carol, id.deviceKey("A").ID)
	require.NoError(t, err)
	assert.Equal(t, matrix.Valid(false), level)

	require.NoError(t, e.VerifyKey(ctx, carol, id.deviceKey("C").ID))
	assert.Equal(t, matrix.Valid(true), deviceTrust(t, db, carol, "C"))
	assert.Equal(t, matrix.CrossSigned(true), deviceTrust(t, db, carol, "B"))
	assert.Equal(t, matrix.CrossSigned(true), deviceTrust(t, db, carol, "A"))

	require.NoError(t, e.UpdateTrustLevelOfKeyChainSignedBy(ctx, carol, id.deviceKey("A")))
	assert.Equal(t, matrix.CrossSigned(true), deviceTrust(t, db, carol, "A"))
}

func TestMasterOnlyLevels(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id := newIdentity(t, alice, "A", "B")
	require.NoError(t, e.UpdateUserKeys(ctx, alice, id.crossKeys(t), []matrix.DeviceKeys{
		id.device(t, "A", id.bySSK()),
		id.device(t, "B"),
	}))
	assert.Equal(t, matrix.NotAllDeviceKeysCrossSigned(false),
		crossTrust(t, db, alice, matrix.UsageMaster))
	assertMasterOnly(t, db, alice)

	require.NoError(t, e.UpdateDeviceKeys(ctx, alice, []matrix.DeviceKeys{
		id.device(t, "A", id.bySSK()),
		id.device(t, "B", id.bySSK()),
	}))
	assert.Equal(t, matrix.CrossSigned(false), crossTrust(t, db, alice, matrix.UsageMaster))
	assertMasterOnly(t, db, alice)

	require.NoError(t, e.VerifyKey(ctx, alice, id.master.Key.ID))
	assert.Equal(t, matrix.CrossSigned(true), crossTrust(t, db, alice, matrix.UsageMaster))
	require.NoError(t, e.UpdateDeviceKeys(ctx, alice, []matrix.DeviceKeys{
		id.device(t, "A", id.bySSK()),
		id.device(t, "B", id.bySSK()),
		id.device(t, "C"),
	}))
	assert.Equal(t, matrix.NotAllDeviceKeysCrossSigned(true),
		crossTrust(t, db, alice, matrix.UsageMaster))
	assert.Equal(t, matrix.NotCrossSigned(), deviceTrust(t, db, alice, "C"))
	assertMasterOnly(t, db, alice)
}

func TestIncrementalMatchesFullRecalculation(t *testing.T) {
	type change struct {
		User  matrix.UserID
		Key   func(w *world) matrix.Ed25519Key
		State matrix.VerificationKind
	}
	tests := map[string]change{
		"verify own master key": {
			User:  alice,
			Key:   func(w *world) matrix.Ed25519Key { return w.alice.master.Key },
			State: matrix.VerificationVerified,
		},
		"verify own device": {
			User:  alice,
			Key:   func(w *world) matrix.Ed25519Key { return w.alice.deviceKey("A") },
			State: matrix.VerificationVerified,
		},
		"block own self-signing key": {
			User:  alice,
			Key:   func(w *world) matrix.Ed25519Key { return w.alice.ssk.Key },
			State: matrix.VerificationBlocked,
		},
		"verify other master key": {
			User:  bob,
			Key:   func(w *world) matrix.Ed25519Key { return w.bob.master.Key },
			State: matrix.VerificationVerified,
		},
		"block own user-signing key": {
			User:  alice,
			Key:   func(w *world) matrix.Ed25519Key { return w.alice.usk.Key },
			State: matrix.VerificationBlocked,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			w := newWorld(t)
			key := test.Key(w)
			state := matrix.KeyVerificationState{Kind: test.State, KeyValue: key.Value}

			incremental, incrementalDB := newEngine(t)
			w.store(t, incremental)
			before := snapshot(t, incrementalDB, alice, bob)
			require.NoError(t, incrementalDB.SetKeyVerificationState(ctx, test.User, key.ID, state))
			require.NoError(t, incremental.UpdateTrustLevelOfKeyChainSignedBy(ctx, test.User, key))

			full, fullDB := newEngine(t)
			require.NoError(t, fullDB.SetKeyVerificationState(ctx, test.User, key.ID, state))
			w.store(t, full)

			after := snapshot(t, incrementalDB, alice, bob)
			assert.Equal(t, snapshot(t, fullDB, alice, bob), after)
			assert.NotEqual(t, before, after)
		})
	}
}

func TestMasterKeyChangedRecently(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id := newIdentity(t, alice, "A")
	require.NoError(t, e.UpdateUserKeys(ctx, alice, id.crossKeys(t),
		[]matrix.DeviceKeys{id.device(t, "A", id.bySSK())}))
	require.NoError(t, e.VerifyKey(ctx, alice, id.master.Key.ID))
	require.Equal(t, matrix.CrossSigned(true), crossTrust(t, db, alice, matrix.UsageMaster))

	id.rotate(t)
	require.NoError(t, e.UpdateCrossSigningKeys(ctx, alice, id.crossKeys(t)))
	assert.Equal(t, matrix.MasterKeyChangedRecently(true),
		crossTrust(t, db, alice, matrix.UsageMaster))
	assert.Equal(t, matrix.NotCrossSigned(), deviceTrust(t, db, alice, "A"))

	require.NoError(t, e.UpdateDeviceKeys(ctx, alice,
		[]matrix.DeviceKeys{id.device(t, "A", id.bySSK())}))
	assert.Equal(t, matrix.MasterKeyChangedRecently(true),
		crossTrust(t, db, alice, matrix.UsageMaster))
	assert.Equal(t, matrix.CrossSigned(false), deviceTrust(t, db, alice, "A"))

	id.rotate(t)
	require.NoError(t, e.UpdateUserKeys(ctx, alice, id.crossKeys(t),
		[]matrix.DeviceKeys{id.device(t, "A", id.bySSK())}))
	assert.Equal(t, matrix.MasterKeyChangedRecently(true),
		crossTrust(t, db, alice, matrix.UsageMaster))

	require.NoError(t, e.VerifyKey(ctx, alice, id.master.Key.ID))
	assert.Equal(t, matrix.CrossSigned(true), crossTrust(t, db, alice, matrix.UsageMaster))

	require.NoError(t, e.UpdateCrossSigningKeys(ctx, alice,
		map[matrix.KeyUsage]*matrix.CrossSigningKey{matrix.UsageMaster: nil}))
	k, err := db.CrossSigningKey(ctx, alice, matrix.UsageMaster)
	require.NoError(t, err)
	assert.Nil(t, k)
	assert.Equal(t, matrix.Valid(false), crossTrust(t, db, alice, matrix.UsageSelfSigning))
}

func TestUpdateUserKeysRemovesCrossSigningKeys(t *testing.T) {
	ctx := context.Background()
	e, db := newEngine(t)
	id := newIdentity(t, alice, "A")
	require.NoError(t, e.UpdateUserKeys(ctx, alice, id.crossKeys(t),
		[]matrix.DeviceKeys{id.device(t, "A", id.bySSK())}))
	require.Equal(t, matrix.CrossSigned(false), deviceTrust(t, db, alice, "A"))

	require.NoError(t, e.UpdateUserKeys(ctx, alice, map[matrix.KeyUsage]*matrix.CrossSigningKey{
		matrix.UsageMaster:      nil,
		matrix.UsageSelfSigning: nil,
		matrix.UsageUserSigning: nil,
	}, []matrix.DeviceKeys{id.device(t, "A", id.bySSK())}))
	keys, err := db.CrossSigningKeys(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, matrix.Valid(false), deviceTrust(t, db, alice, "A"))
}

func TestTrustAndSignKeys(t *testing.T) {
	verifyUpload := func(t *testing.T, raw json.RawMessage, obj any, sigs func() matrix.Signatures,
		signer signatures.SigningKey) {

		require.NoError(t, json.Unmarshal(raw, obj))
		res := signatures.Ed25519Verifier{}.Verify(obj, sigs(), signer)
		assert.True(t, res.Valid(), res.Reason)
		assert.Len(t, sigs(), 1)
	}
	tests := map[string]struct {
		User        matrix.UserID
		Keys        func(w *world) []matrix.Ed25519Key
		NoSecrets   bool
		Expect      func(t *testing.T, w *world, api *mock_matrixapi.MockKeysAPI)
		ExpectedErr error
	}{
		"own device": {
			User: alice,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{w.alice.deviceKey("B")}
			},
			Expect: func(t *testing.T, w *world, api *mock_matrixapi.MockKeysAPI) {
				api.EXPECT().UploadSignatures(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context,
						upload matrixapi.SignatureUpload) (*matrixapi.SignatureUploadResponse, error) {

						require.Len(t, upload[alice], 1)
						var dk matrix.DeviceKeys
						verifyUpload(t, upload[alice]["B"], &dk,
							func() matrix.Signatures { return dk.Signatures },
							signatures.SigningKey{UserID: alice, Key: w.alice.ssk.Key})
						return &matrixapi.SignatureUploadResponse{}, nil
					})
			},
		},
		"own master key": {
			User: alice,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{w.alice.master.Key}
			},
			Expect: func(t *testing.T, w *world, api *mock_matrixapi.MockKeysAPI) {
				api.EXPECT().UploadSignatures(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context,
						upload matrixapi.SignatureUpload) (*matrixapi.SignatureUploadResponse, error) {

						var k matrix.CrossSigningKey
						verifyUpload(t, upload[alice][w.alice.master.Key.Value], &k,
							func() matrix.Signatures { return k.Signatures },
							signatures.SigningKey{UserID: alice, Key: w.alice.deviceKey("A")})
						return &matrixapi.SignatureUploadResponse{}, nil
					})
			},
		},
		"other master key": {
			User: bob,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{w.bob.master.Key}
			},
			Expect: func(t *testing.T, w *world, api *mock_matrixapi.MockKeysAPI) {
				api.EXPECT().UploadSignatures(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context,
						upload matrixapi.SignatureUpload) (*matrixapi.SignatureUploadResponse, error) {

						assert.NotContains(t, upload, alice)
						var k matrix.CrossSigningKey
						verifyUpload(t, upload[bob][w.bob.master.Key.Value], &k,
							func() matrix.Signatures { return k.Signatures },
							signatures.SigningKey{UserID: alice, Key: w.alice.usk.Key})
						return &matrixapi.SignatureUploadResponse{}, nil
					})
			},
		},
		"other device": {
			User: bob,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{w.bob.deviceKey("C")}
			},
			Expect: func(*testing.T, *world, *mock_matrixapi.MockKeysAPI) {},
		},
		"missing secret": {
			User: alice,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{w.alice.deviceKey("B")}
			},
			NoSecrets: true,
			Expect:    func(*testing.T, *world, *mock_matrixapi.MockKeysAPI) {},
		},
		"unknown key": {
			User: alice,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{{ID: "ed25519:Z", Value: "unknown"}}
			},
			Expect: func(*testing.T, *world, *mock_matrixapi.MockKeysAPI) {},
		},
		"upload rejected": {
			User: bob,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{w.bob.master.Key}
			},
			Expect: func(t *testing.T, w *world, api *mock_matrixapi.MockKeysAPI) {
				api.EXPECT().UploadSignatures(gomock.Any(), gomock.Any()).Return(
					&matrixapi.SignatureUploadResponse{
						Failures: map[matrix.UserID]map[string]json.RawMessage{
							bob: {w.bob.master.Key.Value: json.RawMessage(`{"errcode":"M_INVALID_SIGNATURE"}`)},
						},
					}, nil)
			},
			ExpectedErr: trust.ErrUploadSignatures,
		},
		"upload error": {
			User: alice,
			Keys: func(w *world) []matrix.Ed25519Key {
				return []matrix.Ed25519Key{w.alice.deviceKey("B")}
			},
			Expect: func(t *testing.T, w *world, api *mock_matrixapi.MockKeysAPI) {
				api.EXPECT().UploadSignatures(gomock.Any(), gomock.Any()).Return(
					nil, serrors.New("connection reset"))
			},
			ExpectedErr: trust.ErrUploadSignatures,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mctrl := gomock.NewController(t)
			defer mctrl.Finish()
			api := mock_matrixapi.NewMockKeysAPI(mctrl)

			w := newWorld(t)
			e, db := newEngine(t)
			e.KeysAPI = api
			e.DeviceSigner = w.alice.devices["A"]
			w.store(t, e)
			if !test.NoSecrets {
				require.NoError(t, db.SetSecret(ctx, matrix.SecretCrossSigningSelfSigning,
					matrix.StoredSecret{DecryptedPrivateKey: w.alice.seeds[matrix.UsageSelfSigning]}))
				require.NoError(t, db.SetSecret(ctx, matrix.SecretCrossSigningUserSigning,
					matrix.StoredSecret{DecryptedPrivateKey: w.alice.seeds[matrix.UsageUserSigning]}))
			}
			test.Expect(t, w, api)

			keys := test.Keys(w)
			err := e.TrustAndSignKeys(ctx, test.User, keys)
			if test.ExpectedErr != nil {
				assert.ErrorIs(t, err, test.ExpectedErr)
			} else {
				require.NoError(t, err)
			}
			for _, k := range keys {
				state, err := db.KeyVerificationState(ctx, test.User, k.ID)
				require.NoError(t, err)
				if k.Value == "unknown" {
					assert.Nil(t, state)
					continue
				}
				require.NotNil(t, state)
				assert.Equal(t, matrix.VerificationVerified, state.Kind)
				assert.Equal(t, k.Value, state.KeyValue)
			}
		})
	}
}

func TestSubscribeTrustLevels(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	sub := e.SubscribeTrustLevels()
	defer sub.Close()
	id := newIdentity(t, alice, "A")
	require.NoError(t, e.UpdateDeviceKeys(ctx, alice, []matrix.DeviceKeys{id.device(t, "A")}))
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)

	require.NoError(t, e.VerifyKey(ctx, alice, id.deviceKey("A").ID))
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	verified := metrics.NewTestCounter()
	calculations := metrics.NewTestCounter()
	e.Metrics = trustmetrics.Metrics{
		VerifiedSignatures: func(result string) metrics.Counter {
			return verified.With("result", result)
		},
		Calculations: func(keyType, trigger, level string) metrics.Counter {
			return calculations.With("type", keyType, "trigger", trigger, "level", level)
		},
	}
	id := newIdentity(t, alice, "A")
	forger, _ := newSigner(t, alice)
	require.NoError(t, e.UpdateUserKeys(ctx, alice, id.crossKeys(t), []matrix.DeviceKeys{
		id.device(t, "A", by{user: alice, signer: forged{id: id.ssk.Key.ID, s: forger}}),
	}))
	assert.Equal(t, float64(1), metrics.CounterValue(verified.With("result", trustmetrics.ErrVerify)))
	assert.Equal(t, float64(1), metrics.CounterValue(calculations.With("type", trustmetrics.DeviceKey,
		"trigger", trustmetrics.Full, "level", string(matrix.TrustNotCrossSigned))))
}

// world is alice, the own user, with a master key signed by her device A and both devices signed
// by her self-signing key, and bob, whose master key is signed by alice's user-signing key and
// who has a cross-signed device C and a device D that is not cross-signed.
type world struct {
	alice *identity
	bob   *identity
}

func newWorld(t *testing.T) *world {
	return &world{
		alice: newIdentity(t, alice, "A", "B"),
		bob:   newIdentity(t, bob, "C", "D"),
	}
}

func (w *world) store(t *testing.T, e *trust.Engine) {
	ctx := context.Background()
	require.NoError(t, e.UpdateUserKeys(ctx, alice, w.alice.crossKeys(t, w.alice.byDevice("A")),
		[]matrix.DeviceKeys{
			w.alice.device(t, "A", w.alice.bySSK()),
			w.alice.device(t, "B", w.alice.bySSK()),
		}))
	require.NoError(t, e.UpdateUserKeys(ctx, bob, w.bob.crossKeys(t, w.alice.byUSK()),
		[]matrix.DeviceKeys{
			w.bob.device(t, "C", w.bob.bySSK()),
			w.bob.device(t, "D"),
		}))
}

func newEngine(t *testing.T) (*trust.Engine, keystore.DB) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "keys.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	links, err := keychain.New(db, 64)
	require.NoError(t, err)
	return &trust.Engine{
		OwnUserID:   alice,
		OwnDeviceID: "A",
		Store:       db,
		Links:       links,
		Secrets:     db,
		Verifier:    signatures.Ed25519Verifier{},
	}, db
}

type signer interface {
	Sign(obj any) (matrix.KeyID, string, error)
}

type by struct {
	user   matrix.UserID
	signer signer
}

// forged signs with s but claims the key id of another key.
type forged struct {
	id matrix.KeyID
	s  *signatures.SeedSigner
}

func (f forged) Sign(obj any) (matrix.KeyID, string, error) {
	_, sig, err := f.s.Sign(obj)
	return f.id, sig, err
}

type identity struct {
	user    matrix.UserID
	master  *signatures.SeedSigner
	ssk     *signatures.SeedSigner
	usk     *signatures.SeedSigner
	seeds   map[matrix.KeyUsage]string
	devices map[matrix.DeviceID]*olm.SeedDeviceSigner
}

func newIdentity(t *testing.T, user matrix.UserID, devices ...matrix.DeviceID) *identity {
	id := &identity{
		user:    user,
		devices: make(map[matrix.DeviceID]*olm.SeedDeviceSigner),
	}
	id.rotate(t)
	for _, d := range devices {
		seed, _, err := signatures.GenerateSeed()
		require.NoError(t, err)
		id.devices[d], err = olm.NewSeedDeviceSigner(user, d, seed)
		require.NoError(t, err)
	}
	return id
}

// rotate replaces the cross-signing keys.
func (id *identity) rotate(t *testing.T) {
	id.seeds = make(map[matrix.KeyUsage]string)
	id.master, id.seeds[matrix.UsageMaster] = newSigner(t, id.user)
	id.ssk, id.seeds[matrix.UsageSelfSigning] = newSigner(t, id.user)
	id.usk, id.seeds[matrix.UsageUserSigning] = newSigner(t, id.user)
}

func (id *identity) bySSK() by { return by{user: id.user, signer: id.ssk} }

func (id *identity) byUSK() by { return by{user: id.user, signer: id.usk} }

func (id *identity) byDevice(d matrix.DeviceID) by {
	return by{user: id.user, signer: id.devices[d]}
}

func (id *identity) deviceKey(d matrix.DeviceID) matrix.Ed25519Key {
	return id.devices[d].DeviceKey()
}

// crossKeys returns the cross-signing keys. The master key is additionally signed by
// masterSigners.
func (id *identity) crossKeys(t *testing.T,
	masterSigners ...by) map[matrix.KeyUsage]*matrix.CrossSigningKey {

	byMaster := by{user: id.user, signer: id.master}
	return map[matrix.KeyUsage]*matrix.CrossSigningKey{
		matrix.UsageMaster:      id.crossKey(t, matrix.UsageMaster, id.master, masterSigners...),
		matrix.UsageSelfSigning: id.crossKey(t, matrix.UsageSelfSigning, id.ssk, byMaster),
		matrix.UsageUserSigning: id.crossKey(t, matrix.UsageUserSigning, id.usk, byMaster),
	}
}

func (id *identity) crossKey(t *testing.T, usage matrix.KeyUsage, s *signatures.SeedSigner,
	signers ...by) *matrix.CrossSigningKey {

	k := &matrix.CrossSigningKey{
		UserID: id.user,
		Usage:  []matrix.KeyUsage{usage},
		Keys:   map[matrix.KeyID]string{s.Key.ID: s.Key.Value},
	}
	k.Signatures = sign(t, k, signers...)
	return k
}

// device returns the self-signed device keys of d, additionally signed by signers.
func (id *identity) device(t *testing.T, d matrix.DeviceID, signers ...by) matrix.DeviceKeys {
	key := id.deviceKey(d)
	dk := matrix.DeviceKeys{
		UserID:     id.user,
		DeviceID:   d,
		Algorithms: []string{matrix.AlgorithmOlm, matrix.AlgorithmMegolm},
		Keys: map[matrix.KeyID]string{
			key.ID: key.Value,
			matrix.NewKeyID(matrix.AlgorithmCurve25519, string(d)): "curve-" + string(d),
		},
	}
	dk.Signatures = sign(t, &dk, append([]by{id.byDevice(d)}, signers...)...)
	return dk
}

func newSigner(t *testing.T, user matrix.UserID) (*signatures.SeedSigner, string) {
	seed, _, err := signatures.GenerateSeed()
	require.NoError(t, err)
	s, err := signatures.NewSeedSigner(user, seed)
	require.NoError(t, err)
	return s, seed
}

func sign(t *testing.T, obj any, signers ...by) matrix.Signatures {
	t.Helper()
	var sigs matrix.Signatures
	for _, s := range signers {
		keyID, sig, err := s.signer.Sign(obj)
		require.NoError(t, err)
		sigs = sigs.Add(s.user, keyID, sig)
	}
	return sigs
}

func deviceTrust(t *testing.T, db keystore.DB, user matrix.UserID,
	device matrix.DeviceID) matrix.TrustLevel {

	t.Helper()
	k, err := db.DeviceKey(context.Background(), user, device)
	require.NoError(t, err)
	require.NotNil(t, k)
	return k.Trust
}

func crossTrust(t *testing.T, db keystore.DB, user matrix.UserID,
	usage matrix.KeyUsage) matrix.TrustLevel {

	t.Helper()
	k, err := db.CrossSigningKey(context.Background(), user, usage)
	require.NoError(t, err)
	require.NotNil(t, k)
	return k.Trust
}

// snapshot returns the stored trust levels of all keys of the users.
func snapshot(t *testing.T, db keystore.DB, users ...matrix.UserID) map[string]matrix.TrustLevel {
	t.Helper()
	ctx := context.Background()
	levels := make(map[string]matrix.TrustLevel)
	for _, user := range users {
		cross, err := db.CrossSigningKeys(ctx, user)
		require.NoError(t, err)
		for usage, k := range cross {
			levels[string(user)+"/"+string(usage)] = k.Trust
		}
		devices, err := db.DeviceKeys(ctx, user)
		require.NoError(t, err)
		for id, d := range devices {
			levels[string(user)+"/"+string(id)] = d.Trust
		}
	}
	return levels
}

func assertMasterOnly(t *testing.T, db keystore.DB, user matrix.UserID) {
	t.Helper()
	for key, level := range snapshot(t, db, user) {
		if key == string(user)+"/"+string(matrix.UsageMaster) {
			continue
		}
		assert.False(t, level.MasterOnly(), "%s has level %s", key, level)
	}
}
