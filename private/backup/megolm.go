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
	"encoding/json"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/megolmbackup"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/retry"
)

// LoadMegolmSession downloads the session from the backup and merges it into the store. The
// stored session is only replaced if the downloaded one has a strictly lower first known index.
// Concurrent calls for the same session share one download. It blocks until a trusted backup
// version is known. Sessions that are not in the backup yet are retried.
//
// The shared download is not bound to any single caller's context: a caller whose context ends
// returns early while the download continues for the others. The download stops when the
// engine is closed.
func (e *Engine) LoadMegolmSession(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) error {

	key := string(room) + "|" + string(session)
	ch := e.loading.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(e.lifetime(), cancel)
		defer stop()
		return nil, e.loadMegolmSession(fctx, room, session)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loadMegolmSession(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) error {

	logger := log.FromCtx(ctx)
	version, err := e.WaitCurrentVersion(ctx)
	if err != nil {
		return err
	}
	secret, err := e.Store.Secret(ctx, matrix.SecretMegolmBackupV1)
	if err != nil {
		count(e.Metrics.SessionLoads, resultErrDB)
		return serrors.Wrap("loading backup key", err)
	}
	if secret == nil {
		count(e.Metrics.SessionLoads, resultErrInternal)
		return ErrNoBackupKey
	}
	data, err := retry.DoValue(ctx, e.Retry,
		func(ctx context.Context) (*matrix.KeyBackupData, error) {
			return e.API.GetRoomKeys(ctx, version.Version, room, session)
		},
	)
	if err != nil {
		count(e.Metrics.SessionLoads, resultErrNetwork)
		return serrors.Wrap("downloading session", err,
			"room", room, "session", session, "version", version.Version)
	}
	stored, err := e.decryptSession(secret.DecryptedPrivateKey, room, session, data)
	if err != nil {
		return err
	}
	merged, err := e.Store.MergeInboundMegolmSession(ctx, stored)
	if err != nil {
		count(e.Metrics.SessionLoads, resultErrDB)
		return serrors.Wrap("storing session", err, "room", room, "session", session)
	}
	logger.Debug("Loaded megolm session from backup", "room", room, "session", session,
		"first_known_index", stored.FirstKnownIndex, "merged", merged)
	count(e.Metrics.SessionLoads, resultOk)
	return nil
}

func (e *Engine) decryptSession(privateKey string, room matrix.RoomID, session matrix.SessionID,
	data *matrix.KeyBackupData) (matrix.StoredInboundMegolmSession, error) {

	raw, err := megolmbackup.Decrypt(privateKey, data.SessionData)
	if err != nil {
		count(e.Metrics.SessionLoads, resultErrDecrypt)
		return matrix.StoredInboundMegolmSession{}, serrors.Wrap("decrypting session", err,
			"room", room, "session", session)
	}
	var pt matrix.BackupSessionPlaintext
	if err := json.Unmarshal(raw, &pt); err != nil {
		count(e.Metrics.SessionLoads, resultErrDecrypt)
		return matrix.StoredInboundMegolmSession{}, serrors.Wrap("decoding session", err,
			"room", room, "session", session)
	}
	if pt.Algorithm != matrix.AlgorithmMegolm {
		count(e.Metrics.SessionLoads, resultErrDecrypt)
		return matrix.StoredInboundMegolmSession{}, serrors.JoinNoStack(
			ErrUnsupportedAlgorithm, nil, "algorithm", pt.Algorithm)
	}
	in, err := e.Codec.ImportSession(pt.SessionKey)
	if err != nil {
		count(e.Metrics.SessionLoads, resultErrImport)
		return matrix.StoredInboundMegolmSession{}, serrors.Wrap("importing session", err,
			"room", room, "session", session)
	}
	return matrix.StoredInboundMegolmSession{
		SenderKey:                    pt.SenderKey,
		SenderSigningKey:             pt.SenderClaimedKeys[matrix.AlgorithmEd25519],
		SessionID:                    session,
		RoomID:                       room,
		FirstKnownIndex:              in.FirstKnownIndex,
		HasBeenBackedUp:              true,
		IsTrusted:                    false,
		ForwardingCurve25519KeyChain: pt.ForwardingCurve25519KeyChain,
		Pickled:                      in.Pickled,
	}, nil
}
