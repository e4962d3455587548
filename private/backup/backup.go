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

// Package backup keeps the server side room key backup in sync with the local megolm sessions.
//
// The current backup version is only exposed if the locally cached backup private key matches
// it. Sessions are downloaded from the backup on demand and uploaded whenever new sessions
// appear.
package backup

import (
	"context"
	"errors"
	"sync"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/megolmbackup"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/notify"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/retry"
	"github.com/crosstrust/keytrust/private/storage/keystore"
)

const versionCacheKey = "current"

var (
	// ErrNoBackupKey indicates that the backup private key is not cached locally.
	ErrNoBackupKey = serrors.New("no backup key")
	// ErrUnsupportedAlgorithm indicates a backup or session algorithm that is not supported.
	ErrUnsupportedAlgorithm = serrors.New("unsupported algorithm")
)

// Store is the part of the key store the backup engine uses.
type Store interface {
	keystore.SecretStore
	keystore.MegolmSessionStore
}

// Engine manages the key backup.
type Engine struct {
	OwnUserID    matrix.UserID
	DeviceSigner olm.DeviceSigner
	Store        Store
	API          matrixapi.BackupAPI
	AccountData  matrixapi.AccountDataAPI
	Codec        olm.SessionCodec
	Secrets      olm.SecretStorage
	// Retry is the policy for server requests.
	Retry retry.Policy
	// VersionCache caches the server's current version. If nil, every lookup goes to the
	// server.
	VersionCache *cache.Cache
	Metrics      Metrics

	mu      sync.Mutex
	version notify.Value[*matrix.BackupVersion]
	refresh notify.Broadcaster
	loading singleflight.Group

	lifeOnce   sync.Once
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

// Close aborts the pending session downloads. Downloads started afterwards fail immediately.
func (e *Engine) Close() {
	e.lifetime()
	e.lifeCancel()
}

func (e *Engine) lifetime() context.Context {
	e.lifeOnce.Do(func() {
		e.lifeCtx, e.lifeCancel = context.WithCancel(context.Background())
	})
	return e.lifeCtx
}

// KeyBackupCanBeTrusted returns whether privateKey belongs to version. It is false if the
// version uses an unsupported algorithm or if the key cannot be decoded.
func KeyBackupCanBeTrusted(version *matrix.BackupVersion, privateKey string) bool {
	if !version.Supported() {
		return false
	}
	pub, err := megolmbackup.PublicKey(privateKey)
	if err != nil {
		return false
	}
	return pub == version.AuthData.PublicKey
}

// CurrentVersion returns the current backup version if the local backup key matches it, and
// nil otherwise.
func (e *Engine) CurrentVersion() *matrix.BackupVersion {
	return e.version.Get()
}

// SubscribeCurrentVersion signals every change of the current version.
func (e *Engine) SubscribeCurrentVersion() *notify.Subscription {
	return e.version.Subscribe()
}

// WaitCurrentVersion blocks until a trusted version is known.
func (e *Engine) WaitCurrentVersion(ctx context.Context) (*matrix.BackupVersion, error) {
	return e.version.Wait(ctx, func(v *matrix.BackupVersion) bool { return v != nil })
}

// TriggerRefresh asks the reconciler to fetch the version from the server again.
func (e *Engine) TriggerRefresh() {
	e.invalidateVersion()
	e.refresh.Notify()
}

// Reconcile fetches the server's current version and compares it to the cached backup key.
// If the key matches, the own device signature is added to the version. Otherwise the own
// device signature is removed from the version and the cached key is deleted.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := log.FromCtx(ctx)
	version, err := e.ServerVersion(ctx)
	if err != nil {
		count(e.Metrics.Reconciliations, resultErrNetwork)
		return serrors.Wrap("fetching backup version", err)
	}
	secret, err := e.Store.Secret(ctx, matrix.SecretMegolmBackupV1)
	if err != nil {
		count(e.Metrics.Reconciliations, resultErrDB)
		return serrors.Wrap("loading backup key", err)
	}
	if version == nil {
		logger.Debug("No backup version on server")
		e.version.Set(nil)
		count(e.Metrics.Reconciliations, resultNoVersion)
		return nil
	}

	deviceKey := e.DeviceSigner.DeviceKey()
	_, signed := version.AuthData.Signatures.Get(e.OwnUserID, deviceKey.ID)
	trusted := secret != nil && KeyBackupCanBeTrusted(version, secret.DecryptedPrivateKey)
	switch {
	case trusted && !signed:
		authData := version.AuthData
		authData.Signatures = nil
		_, sig, err := e.DeviceSigner.Sign(authData)
		if err != nil {
			count(e.Metrics.Reconciliations, resultErrInternal)
			return serrors.Wrap("signing backup version", err)
		}
		authData.Signatures = version.AuthData.Signatures.Add(e.OwnUserID, deviceKey.ID, sig)
		if err := e.updateVersion(ctx, version, authData); err != nil {
			count(e.Metrics.Reconciliations, resultErrNetwork)
			return err
		}
		logger.Info("Signed backup version", "version", version.Version)
	case !trusted && signed:
		authData := version.AuthData
		authData.Signatures = version.AuthData.Signatures.Remove(e.OwnUserID, deviceKey.ID)
		if err := e.updateVersion(ctx, version, authData); err != nil {
			count(e.Metrics.Reconciliations, resultErrNetwork)
			return err
		}
		logger.Info("Removed signature from untrusted backup version",
			"version", version.Version)
	}

	if !trusted {
		if secret != nil {
			if err := e.Store.DeleteSecret(ctx, matrix.SecretMegolmBackupV1); err != nil {
				count(e.Metrics.Reconciliations, resultErrDB)
				return serrors.Wrap("deleting untrusted backup key", err)
			}
			logger.Info("Deleted backup key not matching the backup version",
				"version", version.Version)
		}
		e.version.Set(nil)
		count(e.Metrics.Reconciliations, resultUntrusted)
		return nil
	}
	if cur := e.version.Get(); cur == nil || cur.Version != version.Version ||
		cur.AuthData.PublicKey != version.AuthData.PublicKey {

		logger.Info("Using backup version", "version", version.Version)
	}
	e.version.Set(version)
	count(e.Metrics.Reconciliations, resultOk)
	return nil
}

// updateVersion replaces the auth data of the version on the server and in v.
func (e *Engine) updateVersion(ctx context.Context, v *matrix.BackupVersion,
	authData matrix.BackupAuthData) error {

	err := retry.Do(ctx, e.Retry, func(ctx context.Context) error {
		return e.API.UpdateRoomKeysVersion(ctx, v.Version, v.Algorithm, authData)
	})
	e.invalidateVersion()
	if err != nil {
		return serrors.Wrap("updating backup version", err, "version", v.Version)
	}
	v.AuthData = authData
	return nil
}

// ServerVersion returns the current version on the server, or nil if there is none. The
// version is not checked against the local backup key.
func (e *Engine) ServerVersion(ctx context.Context) (*matrix.BackupVersion, error) {
	if e.VersionCache != nil {
		if v, ok := e.VersionCache.Get(versionCacheKey); ok {
			return cloneVersion(v.(*matrix.BackupVersion)), nil
		}
	}
	v, err := retry.DoValue(ctx, e.Retry,
		func(ctx context.Context) (*matrix.BackupVersion, error) {
			v, err := e.API.GetRoomKeysVersion(ctx)
			if errors.Is(err, matrixapi.ErrNotFound) {
				return nil, retry.Permanent(err)
			}
			return v, err
		},
	)
	switch {
	case errors.Is(err, matrixapi.ErrNotFound):
		v = nil
	case err != nil:
		return nil, err
	}
	if e.VersionCache != nil {
		e.VersionCache.SetDefault(versionCacheKey, cloneVersion(v))
	}
	return v, nil
}

func (e *Engine) invalidateVersion() {
	if e.VersionCache != nil {
		e.VersionCache.Delete(versionCacheKey)
	}
}

func cloneVersion(v *matrix.BackupVersion) *matrix.BackupVersion {
	if v == nil {
		return nil
	}
	c := *v
	c.AuthData.Signatures = v.AuthData.Signatures.Clone()
	return &c
}
