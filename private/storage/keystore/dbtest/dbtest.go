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

package dbtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/xtest"
	"github.com/crosstrust/keytrust/private/storage/keystore"
)

const (
	timeout = 3 * time.Second

	alice matrix.UserID = "@alice:example.org"
	bob   matrix.UserID = "@bob:example.org"
)

// TestableDB extends the key store with a preparation step that creates a fresh instance.
type TestableDB interface {
	keystore.DB
	Prepare(t *testing.T, ctx context.Context)
}

// TestDB should be used to test any implementation of the keystore.DB interface. An
// implementation of the interface should at least have one test method that calls this
// test-suite.
func TestDB(t *testing.T, db TestableDB) {
	tests := map[string]func(*testing.T, keystore.DB){
		"device keys":         testDeviceKeys,
		"cross-signing keys":  testCrossSigningKeys,
		"verification states": testVerificationStates,
		"outdated users":      testOutdatedUsers,
		"key chain links":     testKeyChainLinks,
		"secrets":             testSecrets,
		"account data":        testAccountData,
		"secret requests":     testSecretKeyRequests,
		"room key requests":   testRoomKeyRequests,
		"megolm sessions":     testMegolmSessions,
		"megolm backup state": testMegolmBackupState,
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			prepareCtx, cancelF := context.WithTimeout(context.Background(), timeout)
			db.Prepare(t, prepareCtx)
			cancelF()
			defer db.Close()
			test(t, db)
		})
	}
}

// Device builds device keys with a fixed signing key value.
func Device(user matrix.UserID, device matrix.DeviceID, signingKey string) matrix.DeviceKeys {
	return matrix.DeviceKeys{
		UserID:     user,
		DeviceID:   device,
		Algorithms: []string{matrix.AlgorithmOlm, matrix.AlgorithmMegolm},
		Keys: map[matrix.KeyID]string{
			matrix.NewKeyID(matrix.AlgorithmEd25519, string(device)):    signingKey,
			matrix.NewKeyID(matrix.AlgorithmCurve25519, string(device)): "curve-" + signingKey,
		},
	}
}

// CrossSigning builds a cross-signing key with the given public key value.
func CrossSigning(user matrix.UserID, usage matrix.KeyUsage, pub string) matrix.CrossSigningKey {
	return matrix.CrossSigningKey{
		UserID: user,
		Usage:  []matrix.KeyUsage{usage},
		Keys:   map[matrix.KeyID]string{matrix.NewKeyID(matrix.AlgorithmEd25519, pub): pub},
	}
}

func testDeviceKeys(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	d, err := db.DeviceKey(ctx, alice, "DEV1")
	require.NoError(t, err)
	assert.Nil(t, d)

	dev1 := matrix.StoredDeviceKeys{
		Value: Device(alice, "DEV1", "k1"),
		Trust: matrix.Valid(false),
	}
	dev2 := matrix.StoredDeviceKeys{
		Value: Device(alice, "DEV2", "k2"),
		Trust: matrix.NotCrossSigned(),
	}
	require.NoError(t, db.ReplaceDeviceKeys(ctx, alice, []matrix.StoredDeviceKeys{dev1, dev2}))

	devices, err := db.DeviceKeys(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, map[matrix.DeviceID]matrix.StoredDeviceKeys{"DEV1": dev1, "DEV2": dev2}, devices)

	dev1.Trust = matrix.CrossSigned(true)
	require.NoError(t, db.SetDeviceKey(ctx, dev1))
	d, err = db.DeviceKey(ctx, alice, "DEV1")
	require.NoError(t, err)
	assert.Equal(t, &dev1, d)

	// Replacing drops devices missing from the new list.
	require.NoError(t, db.ReplaceDeviceKeys(ctx, alice, []matrix.StoredDeviceKeys{dev2}))
	devices, err = db.DeviceKeys(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, map[matrix.DeviceID]matrix.StoredDeviceKeys{"DEV2": dev2}, devices)

	err = db.ReplaceDeviceKeys(ctx, bob, []matrix.StoredDeviceKeys{dev2})
	assert.Error(t, err)
}

func testCrossSigningKeys(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	master := matrix.StoredCrossSigningKey{
		Value: CrossSigning(alice, matrix.UsageMaster, "mpub"),
		Trust: matrix.CrossSigned(false),
	}
	ssk := matrix.StoredCrossSigningKey{
		Value: CrossSigning(alice, matrix.UsageSelfSigning, "spub"),
		Trust: matrix.NotCrossSigned(),
	}
	require.NoError(t, db.SetCrossSigningKey(ctx, matrix.UsageMaster, master))
	require.NoError(t, db.SetCrossSigningKey(ctx, matrix.UsageSelfSigning, ssk))

	keys, err := db.CrossSigningKeys(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, map[matrix.KeyUsage]matrix.StoredCrossSigningKey{
		matrix.UsageMaster:      master,
		matrix.UsageSelfSigning: ssk,
	}, keys)

	k, err := db.CrossSigningKey(ctx, alice, matrix.UsageUserSigning)
	require.NoError(t, err)
	assert.Nil(t, k)

	require.NoError(t, db.DeleteCrossSigningKey(ctx, alice, matrix.UsageSelfSigning))
	k, err = db.CrossSigningKey(ctx, alice, matrix.UsageSelfSigning)
	require.NoError(t, err)
	assert.Nil(t, k)
	k, err = db.CrossSigningKey(ctx, alice, matrix.UsageMaster)
	require.NoError(t, err)
	assert.Equal(t, &master, k)
}

func testVerificationStates(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	keyID := matrix.NewKeyID(matrix.AlgorithmEd25519, "DEV1")
	state := matrix.KeyVerificationState{Kind: matrix.VerificationVerified, KeyValue: "k1"}
	require.NoError(t, db.SetKeyVerificationState(ctx, alice, keyID, state))

	s, err := db.KeyVerificationState(ctx, alice, keyID)
	require.NoError(t, err)
	assert.Equal(t, &state, s)

	s, err = db.KeyVerificationState(ctx, bob, keyID)
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, db.DeleteKeyVerificationState(ctx, alice, keyID))
	s, err = db.KeyVerificationState(ctx, alice, keyID)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func testOutdatedUsers(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	sub := db.SubscribeOutdatedUsers()
	defer sub.Close()

	require.NoError(t, db.AddOutdatedUsers(ctx, bob, alice, bob))
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)

	users, err := db.OutdatedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []matrix.UserID{alice, bob}, users)

	require.NoError(t, db.RemoveOutdatedUsers(ctx, alice))
	users, err = db.OutdatedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []matrix.UserID{bob}, users)
}

func testKeyChainLinks(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	master := CrossSigning(alice, matrix.UsageMaster, "mpub")
	ssk := CrossSigning(alice, matrix.UsageSelfSigning, "spub")
	require.NoError(t, db.SetCrossSigningKey(ctx, matrix.UsageMaster,
		matrix.StoredCrossSigningKey{Value: master}))
	require.NoError(t, db.SetCrossSigningKey(ctx, matrix.UsageSelfSigning,
		matrix.StoredCrossSigningKey{Value: ssk}))
	mk, _ := master.PublicKey()
	sk, _ := ssk.PublicKey()
	devKey := matrix.Ed25519Key{ID: matrix.NewKeyID(matrix.AlgorithmEd25519, "DEV1"), Value: "k1"}

	sskByMaster := matrix.KeyChainLink{
		SigningUserID: alice, SigningKey: mk, SignedUserID: alice, SignedKey: sk,
	}
	devBySSK := matrix.KeyChainLink{
		SigningUserID: alice, SigningKey: sk, SignedUserID: alice, SignedKey: devKey,
	}
	devByMaster := matrix.KeyChainLink{
		SigningUserID: alice, SigningKey: mk, SignedUserID: alice, SignedKey: devKey,
	}

	removed, err := db.ReplaceKeyChainLinks(ctx, alice, sk.Value,
		[]matrix.KeyChainLink{sskByMaster})
	require.NoError(t, err)
	assert.Empty(t, removed)
	_, err = db.ReplaceKeyChainLinks(ctx, alice, devKey.Value,
		[]matrix.KeyChainLink{devBySSK, devByMaster})
	require.NoError(t, err)

	links, err := db.KeyChainLinksBySigner(ctx, alice, mk.Value)
	require.NoError(t, err)
	assert.ElementsMatch(t, []matrix.KeyChainLink{sskByMaster, devByMaster}, links)
	links, err = db.KeyChainLinksBySigned(ctx, alice, devKey.Value)
	require.NoError(t, err)
	assert.ElementsMatch(t, []matrix.KeyChainLink{devBySSK, devByMaster}, links)

	// Replacing the device's links drops the master edge.
	removed, err = db.ReplaceKeyChainLinks(ctx, alice, devKey.Value,
		[]matrix.KeyChainLink{devBySSK})
	require.NoError(t, err)
	assert.ElementsMatch(t, []matrix.KeyChainLink{devBySSK, devByMaster}, removed)
	links, err = db.KeyChainLinksBySigner(ctx, alice, mk.Value)
	require.NoError(t, err)
	assert.Equal(t, []matrix.KeyChainLink{sskByMaster}, links)

	_, err = db.ReplaceKeyChainLinks(ctx, bob, devKey.Value, []matrix.KeyChainLink{devBySSK})
	assert.Error(t, err)

	// The device is not stored, so its link is orphaned.
	n, err := db.DeleteOrphanedKeyChainLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	links, err = db.KeyChainLinksBySigner(ctx, alice, sk.Value)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func testSecrets(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	sub := db.SubscribeSecrets()
	defer sub.Close()

	secret := matrix.StoredSecret{
		Origin:              json.RawMessage(`{"encrypted":{}}`),
		DecryptedPrivateKey: "c2VjcmV0",
	}
	require.NoError(t, db.SetSecret(ctx, matrix.SecretCrossSigningSelfSigning, secret))
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)

	s, err := db.Secret(ctx, matrix.SecretCrossSigningSelfSigning)
	require.NoError(t, err)
	assert.Equal(t, &secret, s)
	all, err := db.Secrets(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[matrix.SecretType]matrix.StoredSecret{
		matrix.SecretCrossSigningSelfSigning: secret,
	}, all)

	require.NoError(t, db.DeleteSecret(ctx, matrix.SecretCrossSigningSelfSigning))
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)
	s, err = db.Secret(ctx, matrix.SecretCrossSigningSelfSigning)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func testAccountData(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	content, err := db.GlobalAccountData(ctx, string(matrix.SecretCrossSigningUserSigning))
	require.NoError(t, err)
	assert.Nil(t, content)

	raw := json.RawMessage(`{"encrypted":{"key":{"ciphertext":"x"}}}`)
	require.NoError(t, db.SetGlobalAccountData(ctx, string(matrix.SecretCrossSigningUserSigning), raw))
	content, err = db.GlobalAccountData(ctx, string(matrix.SecretCrossSigningUserSigning))
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(content))

	err = db.SetGlobalAccountData(ctx, "m.other", json.RawMessage(`{`))
	assert.Error(t, err)
}

func testSecretKeyRequests(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	now := time.Now().UTC().Truncate(time.Second)
	older := matrix.StoredSecretKeyRequest{
		Content: matrix.SecretKeyRequest{
			Name: matrix.SecretCrossSigningUserSigning, Action: matrix.ActionRequest,
			RequestingDeviceID: "OWN", RequestID: "b",
		},
		ReceiverDeviceIDs: []matrix.DeviceID{"DEV1", "DEV2"},
		CreatedAt:         now.Add(-time.Hour),
	}
	newer := older
	newer.Content.RequestID = "a"
	newer.Content.Name = matrix.SecretCrossSigningSelfSigning
	newer.CreatedAt = now
	require.NoError(t, db.AddSecretKeyRequest(ctx, newer))
	require.NoError(t, db.AddSecretKeyRequest(ctx, older))

	reqs, err := db.SecretKeyRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []matrix.StoredSecretKeyRequest{older, newer}, reqs)

	r, err := db.SecretKeyRequest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, &newer, r)

	require.NoError(t, db.DeleteSecretKeyRequest(ctx, "a"))
	r, err = db.SecretKeyRequest(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, r)

	empty := older
	empty.Content.RequestID = ""
	assert.Error(t, db.AddSecretKeyRequest(ctx, empty))
}

func testRoomKeyRequests(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	sub := db.SubscribeRoomKeyRequests()
	defer sub.Close()

	req := matrix.StoredRoomKeyRequest{
		Content: matrix.RoomKeyRequest{
			Action: matrix.ActionRequest,
			Body: &matrix.RoomKeyRequestBody{
				Algorithm: matrix.AlgorithmMegolm, RoomID: "!room:example.org", SessionID: "s1",
			},
			RequestingDeviceID: "OWN",
			RequestID:          "r1",
		},
		ReceiverDeviceIDs: []matrix.DeviceID{"DEV1"},
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.AddRoomKeyRequest(ctx, req))
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)

	reqs, err := db.RoomKeyRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []matrix.StoredRoomKeyRequest{req}, reqs)

	require.NoError(t, db.DeleteRoomKeyRequest(ctx, "r1"))
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)
	r, err := db.RoomKeyRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, r)
}

// Session builds a stored inbound megolm session.
func Session(room matrix.RoomID, session matrix.SessionID,
	index int64) matrix.StoredInboundMegolmSession {

	return matrix.StoredInboundMegolmSession{
		SenderKey:        "sender-curve",
		SenderSigningKey: "sender-ed",
		SessionID:        session,
		RoomID:           room,
		FirstKnownIndex:  index,
		Pickled:          "pickle-" + string(session),
	}
}

func testMegolmSessions(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	const room matrix.RoomID = "!room:example.org"

	s, err := db.InboundMegolmSession(ctx, room, "s1")
	require.NoError(t, err)
	assert.Nil(t, s)

	tests := map[string]struct {
		Index  int64
		Stored bool
		Want   int64
	}{
		"insert":         {Index: 5, Stored: true, Want: 5},
		"higher index":   {Index: 7, Stored: false, Want: 5},
		"equal index":    {Index: 5, Stored: false, Want: 5},
		"lower index":    {Index: 2, Stored: true, Want: 2},
		"after lowering": {Index: 3, Stored: false, Want: 2},
	}
	// The cases build on each other.
	for _, name := range []string{
		"insert", "higher index", "equal index", "lower index", "after lowering",
	} {
		tc := tests[name]
		stored, err := db.MergeInboundMegolmSession(ctx, Session(room, "s1", tc.Index))
		require.NoError(t, err, name)
		assert.Equal(t, tc.Stored, stored, name)
		s, err := db.InboundMegolmSession(ctx, room, "s1")
		require.NoError(t, err, name)
		assert.Equal(t, tc.Want, s.FirstKnownIndex, name)
	}

	_, err = db.MergeInboundMegolmSession(ctx, Session("", "s1", 0))
	assert.Error(t, err)
}

func testMegolmBackupState(t *testing.T, db keystore.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	const room matrix.RoomID = "!room:example.org"
	sub := db.SubscribeNotBackedUp()
	defer sub.Close()

	for _, id := range []matrix.SessionID{"s1", "s2", "s3"} {
		_, err := db.MergeInboundMegolmSession(ctx, Session(room, id, 10))
		require.NoError(t, err)
	}
	xtest.AssertReadReturnsBefore(t, sub.Updates, time.Second)

	pending, err := db.NotBackedUpInboundMegolmSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// s2 is improved before the upload finishes and must stay pending.
	_, err = db.MergeInboundMegolmSession(ctx, Session(room, "s2", 1))
	require.NoError(t, err)
	require.NoError(t, db.MarkInboundMegolmSessionsBackedUp(ctx, pending))

	pending, err = db.NotBackedUpInboundMegolmSessions(ctx, 10)
	require.NoError(t, err)
	var ids []matrix.SessionID
	for _, s := range pending {
		ids = append(ids, s.SessionID)
	}
	assert.Equal(t, []matrix.SessionID{"s2", "s3"}, ids)

	s1, err := db.InboundMegolmSession(ctx, room, "s1")
	require.NoError(t, err)
	assert.True(t, s1.HasBeenBackedUp)

	backedUp := Session(room, "s4", 0)
	backedUp.HasBeenBackedUp = true
	_, err = db.MergeInboundMegolmSession(ctx, backedUp)
	require.NoError(t, err)

	require.NoError(t, db.ResetInboundMegolmSessionsBackedUp(ctx))
	pending, err = db.NotBackedUpInboundMegolmSessions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}
