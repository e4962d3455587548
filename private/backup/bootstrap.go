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

package backup

import (
	"context"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/megolmbackup"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/retry"
)

// BootstrapRoomKeyBackup creates a new backup version for the backup private key. The version
// is signed by the own device and by the master key. The private key is stored in the secret
// storage, encrypted with the secret storage key keyID, and cached locally. It returns the new
// version.
func (e *Engine) BootstrapRoomKeyBackup(ctx context.Context, key, keyID,
	masterSigningPrivateKey, masterSigningPublicKey string) (string, error) {

	pub, err := megolmbackup.PublicKey(key)
	if err != nil {
		return "", serrors.Wrap("deriving backup public key", err)
	}
	master, err := signatures.NewSeedSigner(e.OwnUserID, masterSigningPrivateKey)
	if err != nil {
		return "", serrors.Wrap("loading master key", err)
	}
	if master.Key.Value != masterSigningPublicKey {
		return "", serrors.New("master key does not match its public key",
			"expected", masterSigningPublicKey, "actual", master.Key.Value)
	}

	authData := matrix.BackupAuthData{PublicKey: pub}
	deviceKeyID, deviceSig, err := e.DeviceSigner.Sign(authData)
	if err != nil {
		return "", serrors.Wrap("signing with device key", err)
	}
	masterKeyID, masterSig, err := master.Sign(authData)
	if err != nil {
		return "", serrors.Wrap("signing with master key", err)
	}
	authData.Signatures = authData.Signatures.
		Add(e.OwnUserID, deviceKeyID, deviceSig).
		Add(e.OwnUserID, masterKeyID, masterSig)

	version, err := retry.DoValue(ctx, e.Retry, func(ctx context.Context) (string, error) {
		return e.API.CreateRoomKeysVersion(ctx, matrix.BackupAlgorithmMegolmV1, authData)
	})
	e.invalidateVersion()
	if err != nil {
		return "", serrors.Wrap("creating backup version", err)
	}

	content, err := e.Secrets.EncryptSecret(ctx, keyID, matrix.SecretMegolmBackupV1, key)
	if err != nil {
		return "", serrors.Wrap("encrypting backup key", err, "version", version)
	}
	eventType := string(matrix.SecretMegolmBackupV1)
	if err := retry.Do(ctx, e.Retry, func(ctx context.Context) error {
		return e.AccountData.SetGlobalAccountData(ctx, eventType, content)
	}); err != nil {
		return "", serrors.Wrap("uploading backup key", err, "version", version)
	}
	if err := e.Store.SetGlobalAccountData(ctx, eventType, content); err != nil {
		return "", serrors.Wrap("storing account data", err, "version", version)
	}
	if err := e.Store.SetSecret(ctx, matrix.SecretMegolmBackupV1, matrix.StoredSecret{
		Origin:              content,
		DecryptedPrivateKey: key,
	}); err != nil {
		return "", serrors.Wrap("storing backup key", err, "version", version)
	}
	if err := e.Store.ResetInboundMegolmSessionsBackedUp(ctx); err != nil {
		return "", serrors.Wrap("resetting backup state of sessions", err, "version", version)
	}
	log.FromCtx(ctx).Info("Created backup version", "version", version)
	e.TriggerRefresh()
	return version, nil
}
