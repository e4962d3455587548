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

package backup_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/megolmbackup"
	"github.com/crosstrust/keytrust/pkg/private/xtest"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/backup"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/matrixapi/mock_matrixapi"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/olm/mock_olm"
	"github.com/crosstrust/keytrust/private/retry"
	"github.com/crosstrust/keytrust/private/storage/keystore"
	"github.com/crosstrust/keytrust/private/storage/keystore/sqlite"
)

const (
	alice matrix.UserID    = "@alice:example.org"
	room  matrix.RoomID    = "!room:example.org"
	other matrix.RoomID    = "!other:example.org"
	sess  matrix.SessionID = "session"
)

type env struct {
	engine  *backup.Engine
	db      keystore.DB
	api     *mock_matrixapi.MockBackupAPI
	account *mock_matrixapi.MockAccountDataAPI
	codec   *mock_olm.MockSessionCodec
	secrets *mock_olm.MockSecretStorage
	device  *olm.SeedDeviceSigner
	priv    string
	pub     string
}

func newEnv(t *testing.T, mctrl *gomock.Controller) *env {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "keys.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seed, _, err := signatures.GenerateSeed()
	require.NoError(t, err)
	device, err := olm.NewSeedDeviceSigner(alice, "A", seed)
	require.NoError(t, err)
	priv, pub, err := megolmbackup.GenerateKey()
	require.NoError(t, err)

	e := &env{
		db:      db,
		api:     mock_matrixapi.NewMockBackupAPI(mctrl),
		account: mock_matrixapi.NewMockAccountDataAPI(mctrl),
		codec:   mock_olm.NewMockSessionCodec(mctrl),
		secrets: mock_olm.NewMockSecretStorage(mctrl),
		device:  device,
		priv:    priv,
		pub:     pub,
	}
	e.engine = &backup.Engine{
		OwnUserID:    alice,
		DeviceSigner: device,
		Store:        db,
		API:          e.api,
		AccountData:  e.account,
		Codec:        e.codec,
		Secrets:      e.secrets,
		Retry: retry.Policy{
			InitialInterval:  time.Millisecond,
			MaxInterval:      5 * time.Millisecond,
			MaxElapsedTime:   time.Second,
			NotFoundInterval: 10 * time.Millisecond,
		},
	}
	t.Cleanup(e.engine.Close)
	return e
}

func (e *env) storeKey(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, e.db.SetSecret(context.Background(), matrix.SecretMegolmBackupV1,
		matrix.StoredSecret{Origin: json.RawMessage(`{}`), DecryptedPrivateKey: key}))
}

// version returns a version for the env's backup key, signed by the own device if signed is
// set.
func (e *env) version(t *testing.T, signed bool) *matrix.BackupVersion {
	t.Helper()
	v := &matrix.BackupVersion{
		Algorithm: matrix.BackupAlgorithmMegolmV1,
		AuthData:  matrix.BackupAuthData{PublicKey: e.pub},
		Version:   "1",
	}
	v.AuthData.Signatures = matrix.Signatures{}.Add(alice, "ed25519:MASTER", "master-sig")
	if signed {
		id, sig, err := e.device.Sign(v.AuthData)
		require.NoError(t, err)
		v.AuthData.Signatures = v.AuthData.Signatures.Add(alice, id, sig)
	}
	return v
}

// trusted makes the env's version the current version.
func (e *env) trusted(t *testing.T) *matrix.BackupVersion {
	t.Helper()
	e.storeKey(t, e.priv)
	v := e.version(t, true)
	e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).Return(v, nil)
	require.NoError(t, e.engine.Reconcile(context.Background()))
	require.NotNil(t, e.engine.CurrentVersion())
	return v
}

func (e *env) backupData(t *testing.T, sessionKey string) *matrix.KeyBackupData {
	t.Helper()
	raw, err := json.Marshal(matrix.BackupSessionPlaintext{
		Algorithm:         matrix.AlgorithmMegolm,
		SenderClaimedKeys: map[string]string{"ed25519": "claimed"},
		SenderKey:         "sender",
		SessionKey:        sessionKey,
	})
	require.NoError(t, err)
	enc, err := megolmbackup.Encrypt(e.pub, raw)
	require.NoError(t, err)
	return &matrix.KeyBackupData{SessionData: enc}
}

func TestKeyBackupCanBeTrusted(t *testing.T) {
	priv, pub, err := megolmbackup.GenerateKey()
	require.NoError(t, err)
	otherPriv, _, err := megolmbackup.GenerateKey()
	require.NoError(t, err)
	version := func(alg string) *matrix.BackupVersion {
		return &matrix.BackupVersion{
			Algorithm: alg,
			AuthData:  matrix.BackupAuthData{PublicKey: pub},
			Version:   "1",
		}
	}

	testCases := map[string]struct {
		Version *matrix.BackupVersion
		Key     string
		Trusted bool
	}{
		"matching key": {
			Version: version(matrix.BackupAlgorithmMegolmV1),
			Key:     priv,
			Trusted: true,
		},
		"other key": {
			Version: version(matrix.BackupAlgorithmMegolmV1),
			Key:     otherPriv,
		},
		"undecodable key": {
			Version: version(matrix.BackupAlgorithmMegolmV1),
			Key:     "not base64!",
		},
		"unsupported algorithm": {
			Version: version("org.example.backup"),
			Key:     priv,
		},
		"no version": {
			Key: priv,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.Trusted, backup.KeyBackupCanBeTrusted(tc.Version, tc.Key))
		})
	}
}

func TestReconcile(t *testing.T) {
	testCases := map[string]struct {
		Setup         func(t *testing.T, e *env)
		Current       bool
		SecretDeleted bool
	}{
		"no version": {
			Setup: func(t *testing.T, e *env) {
				e.storeKey(t, e.priv)
				e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).
					Return(nil, matrixapi.ErrNotFound)
			},
		},
		"trusted and unsigned": {
			Setup: func(t *testing.T, e *env) {
				e.storeKey(t, e.priv)
				v := e.version(t, false)
				e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).Return(v, nil)
				e.api.EXPECT().UpdateRoomKeysVersion(gomock.Any(), "1",
					matrix.BackupAlgorithmMegolmV1, gomock.Any()).DoAndReturn(
					func(_ context.Context, _, _ string, authData matrix.BackupAuthData) error {
						_, ok := authData.Signatures.Get(alice, "ed25519:MASTER")
						assert.True(t, ok, "existing signature kept")
						res := signatures.Ed25519Verifier{}.Verify(authData,
							authData.Signatures, signatures.SigningKey{
								UserID: alice,
								Key:    e.device.DeviceKey(),
							})
						assert.True(t, res.Valid(), res.Reason)
						return nil
					},
				)
			},
			Current: true,
		},
		"trusted and signed": {
			Setup: func(t *testing.T, e *env) {
				e.storeKey(t, e.priv)
				e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).Return(e.version(t, true), nil)
			},
			Current: true,
		},
		"untrusted and signed": {
			Setup: func(t *testing.T, e *env) {
				otherPriv, _, err := megolmbackup.GenerateKey()
				require.NoError(t, err)
				e.storeKey(t, otherPriv)
				e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).Return(e.version(t, true), nil)
				e.api.EXPECT().UpdateRoomKeysVersion(gomock.Any(), "1",
					matrix.BackupAlgorithmMegolmV1, gomock.Any()).DoAndReturn(
					func(_ context.Context, _, _ string, authData matrix.BackupAuthData) error {
						_, ok := authData.Signatures.Get(alice, e.device.DeviceKey().ID)
						assert.False(t, ok, "own signature removed")
						_, ok = authData.Signatures.Get(alice, "ed25519:MASTER")
						assert.True(t, ok, "other signature kept")
						return nil
					},
				)
			},
			SecretDeleted: true,
		},
		"no key": {
			Setup: func(t *testing.T, e *env) {
				e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).
					Return(e.version(t, false), nil)
			},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			mctrl := gomock.NewController(t)
			e := newEnv(t, mctrl)
			tc.Setup(t, e)

			require.NoError(t, e.engine.Reconcile(context.Background()))
			if tc.Current {
				v := e.engine.CurrentVersion()
				require.NotNil(t, v)
				_, ok := v.AuthData.Signatures.Get(alice, e.device.DeviceKey().ID)
				assert.True(t, ok)
			} else {
				assert.Nil(t, e.engine.CurrentVersion())
			}
			if tc.SecretDeleted {
				s, err := e.db.Secret(context.Background(), matrix.SecretMegolmBackupV1)
				require.NoError(t, err)
				assert.Nil(t, s)
			}
		})
	}
}

func TestReconcileCachesVersion(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	e.engine.VersionCache = cache.New(time.Minute, 0)
	e.storeKey(t, e.priv)
	e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).Return(e.version(t, true), nil).Times(1)

	require.NoError(t, e.engine.Reconcile(context.Background()))
	require.NoError(t, e.engine.Reconcile(context.Background()))
	assert.NotNil(t, e.engine.CurrentVersion())

	e.engine.TriggerRefresh()
	e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).Return(nil, matrixapi.ErrNotFound)
	require.NoError(t, e.engine.Reconcile(context.Background()))
	assert.Nil(t, e.engine.CurrentVersion())
}

func TestLoadMegolmSession(t *testing.T) {
	testCases := map[string]struct {
		Stored      *int64
		Fetched     int64
		NotFound    int
		WantIndex   int64
		WantPickled string
	}{
		"no stored session": {
			Fetched:     3,
			WantIndex:   3,
			WantPickled: "downloaded",
		},
		"lower index replaces": {
			Stored:      index(5),
			Fetched:     3,
			WantIndex:   3,
			WantPickled: "downloaded",
		},
		"equal index keeps stored": {
			Stored:      index(5),
			Fetched:     5,
			WantIndex:   5,
			WantPickled: "stored",
		},
		"higher index keeps stored": {
			Stored:      index(2),
			Fetched:     3,
			WantIndex:   2,
			WantPickled: "stored",
		},
		"not found is retried": {
			Fetched:     0,
			NotFound:    2,
			WantIndex:   0,
			WantPickled: "downloaded",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			mctrl := gomock.NewController(t)
			e := newEnv(t, mctrl)
			e.trusted(t)
			ctx := context.Background()
			if tc.Stored != nil {
				_, err := e.db.MergeInboundMegolmSession(ctx, matrix.StoredInboundMegolmSession{
					RoomID:          room,
					SessionID:       sess,
					FirstKnownIndex: *tc.Stored,
					IsTrusted:       true,
					Pickled:         "stored",
				})
				require.NoError(t, err)
			}
			if tc.NotFound > 0 {
				e.api.EXPECT().GetRoomKeys(gomock.Any(), "1", room, sess).
					Return(nil, matrixapi.ErrNotFound).Times(tc.NotFound)
			}
			e.api.EXPECT().GetRoomKeys(gomock.Any(), "1", room, sess).
				Return(e.backupData(t, "session-key"), nil)
			e.codec.EXPECT().ImportSession("session-key").Return(olm.InboundSession{
				FirstKnownIndex: tc.Fetched,
				Pickled:         "downloaded",
			}, nil)

			require.NoError(t, e.engine.LoadMegolmSession(ctx, room, sess))
			s, err := e.db.InboundMegolmSession(ctx, room, sess)
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Equal(t, tc.WantIndex, s.FirstKnownIndex)
			assert.Equal(t, tc.WantPickled, s.Pickled)
			if tc.WantPickled == "downloaded" {
				assert.False(t, s.IsTrusted)
				assert.True(t, s.HasBeenBackedUp)
				assert.Equal(t, "claimed", s.SenderSigningKey)
				assert.Equal(t, "sender", s.SenderKey)
			}
		})
	}
}

func TestLoadMegolmSessionErrors(t *testing.T) {
	t.Run("no backup key", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		e.trusted(t)
		require.NoError(t, e.db.DeleteSecret(context.Background(), matrix.SecretMegolmBackupV1))
		err := e.engine.LoadMegolmSession(context.Background(), room, sess)
		assert.ErrorIs(t, err, backup.ErrNoBackupKey)
	})
	t.Run("encrypted to other key", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		e.trusted(t)
		_, otherPub, err := megolmbackup.GenerateKey()
		require.NoError(t, err)
		enc, err := megolmbackup.Encrypt(otherPub, []byte(`{}`))
		require.NoError(t, err)
		e.api.EXPECT().GetRoomKeys(gomock.Any(), "1", room, sess).
			Return(&matrix.KeyBackupData{SessionData: enc}, nil)

		err = e.engine.LoadMegolmSession(context.Background(), room, sess)
		assert.ErrorIs(t, err, megolmbackup.ErrMACMismatch)
		s, err := e.db.InboundMegolmSession(context.Background(), room, sess)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
	t.Run("cancelled while waiting for version", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := e.engine.LoadMegolmSession(ctx, room, sess)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLoadMegolmSessionSingleFetch(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	e.trusted(t)

	release := make(chan struct{})
	data := e.backupData(t, "session-key")
	e.api.EXPECT().GetRoomKeys(gomock.Any(), "1", room, sess).DoAndReturn(
		func(context.Context, string, matrix.RoomID,
			matrix.SessionID) (*matrix.KeyBackupData, error) {

			<-release
			return data, nil
		},
	).Times(1)
	e.codec.EXPECT().ImportSession("session-key").
		Return(olm.InboundSession{Pickled: "downloaded"}, nil).Times(1)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.engine.LoadMegolmSession(context.Background(), room, sess))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
}

func TestLoadMegolmSessionCallerCanceled(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	e.trusted(t)

	release := make(chan struct{})
	data := e.backupData(t, "session-key")
	e.api.EXPECT().GetRoomKeys(gomock.Any(), "1", room, sess).DoAndReturn(
		func(ctx context.Context, _ string, _ matrix.RoomID,
			_ matrix.SessionID) (*matrix.KeyBackupData, error) {

			select {
			case <-release:
				return data, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	).Times(1)
	e.codec.EXPECT().ImportSession("session-key").
		Return(olm.InboundSession{Pickled: "downloaded"}, nil).Times(1)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	first := make(chan error, 1)
	go func() { first <- e.engine.LoadMegolmSession(firstCtx, room, sess) }()
	time.Sleep(20 * time.Millisecond)
	second := make(chan error, 1)
	go func() { second <- e.engine.LoadMegolmSession(context.Background(), room, sess) }()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller did not return")
	}
	select {
	case err := <-second:
		t.Fatalf("second caller returned before the download finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-second:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	stored, err := e.db.InboundMegolmSession(context.Background(), room, sess)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "downloaded", stored.Pickled)
}

func TestLoadMegolmSessionClose(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	e.trusted(t)

	started := make(chan struct{})
	e.api.EXPECT().GetRoomKeys(gomock.Any(), "1", room, sess).DoAndReturn(
		func(ctx context.Context, _ string, _ matrix.RoomID,
			_ matrix.SessionID) (*matrix.KeyBackupData, error) {

			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	).Times(1)

	done := make(chan error, 1)
	go func() { done <- e.engine.LoadMegolmSession(context.Background(), room, sess) }()
	xtest.AssertReadReturnsBefore(t, started, time.Second)
	e.engine.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("download was not aborted by Close")
	}
}

func TestUploadRoomKeys(t *testing.T) {
	sessions := []matrix.StoredInboundMegolmSession{
		{RoomID: room, SessionID: "s1", FirstKnownIndex: 1, Pickled: "p1", SenderKey: "k"},
		{RoomID: room, SessionID: "s2", FirstKnownIndex: 2, Pickled: "p2", SenderKey: "k"},
		{RoomID: other, SessionID: "s3", FirstKnownIndex: 3, Pickled: "p3", SenderKey: "k"},
	}
	setup := func(t *testing.T) *env {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		e.engine.VersionCache = cache.New(time.Minute, 0)
		e.trusted(t)
		for _, s := range sessions {
			_, err := e.db.MergeInboundMegolmSession(context.Background(), s)
			require.NoError(t, err)
			e.codec.EXPECT().ExportSession(s.Pickled).
				Return("key-"+s.Pickled, s.FirstKnownIndex, nil).AnyTimes()
		}
		return e
	}
	notBackedUp := func(t *testing.T, e *env) int {
		s, err := e.db.NotBackedUpInboundMegolmSessions(context.Background(), 10)
		require.NoError(t, err)
		return len(s)
	}

	t.Run("uploads grouped by room", func(t *testing.T) {
		e := setup(t)
		e.api.EXPECT().SetRoomKeys(gomock.Any(), "1", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, b matrix.RoomKeyBackup) error {
				require.Len(t, b.Rooms, 2)
				assert.Len(t, b.Rooms[room].Sessions, 2)
				data := b.Rooms[other].Sessions["s3"]
				assert.EqualValues(t, 3, data.FirstMessageIndex)
				raw, err := megolmbackup.Decrypt(e.priv, data.SessionData)
				require.NoError(t, err)
				var pt matrix.BackupSessionPlaintext
				require.NoError(t, json.Unmarshal(raw, &pt))
				assert.Equal(t, "key-p3", pt.SessionKey)
				assert.Equal(t, matrix.AlgorithmMegolm, pt.Algorithm)
				return nil
			},
		)
		require.NoError(t, e.engine.UploadRoomKeys(context.Background(), 10))
		assert.Zero(t, notBackedUp(t, e))
	})
	t.Run("batches", func(t *testing.T) {
		e := setup(t)
		e.api.EXPECT().SetRoomKeys(gomock.Any(), "1", gomock.Any()).Return(nil).Times(2)
		require.NoError(t, e.engine.UploadRoomKeys(context.Background(), 2))
		assert.Zero(t, notBackedUp(t, e))
	})
	t.Run("wrong version", func(t *testing.T) {
		e := setup(t)
		require.Equal(t, 1, e.engine.VersionCache.ItemCount())
		e.api.EXPECT().SetRoomKeys(gomock.Any(), "1", gomock.Any()).
			Return(matrixapi.ErrWrongRoomKeysVersion).Times(1)
		require.NoError(t, e.engine.UploadRoomKeys(context.Background(), 10))
		assert.Equal(t, 3, notBackedUp(t, e))
		assert.Zero(t, e.engine.VersionCache.ItemCount())
	})
	t.Run("no version", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		_, err := e.db.MergeInboundMegolmSession(context.Background(), sessions[0])
		require.NoError(t, err)
		require.NoError(t, e.engine.UploadRoomKeys(context.Background(), 10))
		assert.Equal(t, 1, notBackedUp(t, e))
	})
}

func TestUploader(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	e.trusted(t)
	uploaded := make(chan struct{})
	e.codec.EXPECT().ExportSession("p1").Return("key", int64(0), nil)
	e.api.EXPECT().SetRoomKeys(gomock.Any(), "1", gomock.Any()).DoAndReturn(
		func(context.Context, string, matrix.RoomKeyBackup) error {
			close(uploaded)
			return nil
		},
	)
	u := &backup.Uploader{Engine: e.engine, Debounce: 10 * time.Millisecond}
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, u.Run(context.Background()))
	}()

	_, err := e.db.MergeInboundMegolmSession(context.Background(),
		matrix.StoredInboundMegolmSession{RoomID: room, SessionID: sess, Pickled: "p1"})
	require.NoError(t, err)
	xtest.AssertReadReturnsBefore(t, uploaded, time.Second)
	require.NoError(t, u.Close(context.Background()))
	xtest.AssertReadReturnsBefore(t, done, time.Second)
}

func TestReconciler(t *testing.T) {
	mctrl := gomock.NewController(t)
	e := newEnv(t, mctrl)
	e.api.EXPECT().GetRoomKeysVersion(gomock.Any()).
		Return(e.version(t, false), nil).MinTimes(1)
	e.api.EXPECT().UpdateRoomKeysVersion(gomock.Any(), "1", matrix.BackupAlgorithmMegolmV1,
		gomock.Any()).Return(nil).MinTimes(1)
	r := &backup.Reconciler{Engine: e.engine}
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, r.Run(context.Background()))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e.storeKey(t, e.priv)
	v, err := e.engine.WaitCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", v.Version)
	require.NoError(t, r.Close(context.Background()))
	xtest.AssertReadReturnsBefore(t, done, time.Second)
}

func TestBootstrapRoomKeyBackup(t *testing.T) {
	masterSeed, masterPub, err := signatures.GenerateSeed()
	require.NoError(t, err)

	t.Run("creates signed version", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		content := json.RawMessage(`{"encrypted":{}}`)
		e.api.EXPECT().CreateRoomKeysVersion(gomock.Any(), matrix.BackupAlgorithmMegolmV1,
			gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, authData matrix.BackupAuthData) (string, error) {
				assert.Equal(t, e.pub, authData.PublicKey)
				for _, key := range []matrix.Ed25519Key{
					e.device.DeviceKey(),
					{ID: matrix.NewKeyID("ed25519", masterPub), Value: masterPub},
				} {
					res := signatures.Ed25519Verifier{}.Verify(authData, authData.Signatures,
						signatures.SigningKey{UserID: alice, Key: key})
					assert.True(t, res.Valid(), "%s: %s", key.ID, res.Reason)
				}
				return "7", nil
			},
		)
		e.secrets.EXPECT().EncryptSecret(gomock.Any(), "key1", matrix.SecretMegolmBackupV1,
			e.priv).Return(content, nil)
		e.account.EXPECT().SetGlobalAccountData(gomock.Any(), "m.megolm_backup.v1",
			content).Return(nil)

		version, err := e.engine.BootstrapRoomKeyBackup(context.Background(), e.priv, "key1",
			masterSeed, masterPub)
		require.NoError(t, err)
		assert.Equal(t, "7", version)
		s, err := e.db.Secret(context.Background(), matrix.SecretMegolmBackupV1)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, e.priv, s.DecryptedPrivateKey)
		assert.JSONEq(t, string(content), string(s.Origin))
	})
	t.Run("master key mismatch", func(t *testing.T) {
		mctrl := gomock.NewController(t)
		e := newEnv(t, mctrl)
		_, otherPub, err := signatures.GenerateSeed()
		require.NoError(t, err)
		_, err = e.engine.BootstrapRoomKeyBackup(context.Background(), e.priv, "key1",
			masterSeed, otherPub)
		assert.Error(t, err)
	})
}

func index(i int64) *int64 {
	return &i
}
