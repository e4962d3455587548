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
	"errors"
	"time"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/megolmbackup"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/retry"
	"github.com/crosstrust/keytrust/private/worker"
)

const (
	// DefaultUploadBatchSize is the default number of sessions uploaded in one request.
	DefaultUploadBatchSize = 100
	// DefaultUploadDebounce is the default quiet period before sessions are uploaded.
	DefaultUploadDebounce = 2 * time.Second
)

// UploadRoomKeys uploads all sessions that are not backed up yet to the current version, in
// batches of at most batchSize sessions grouped by room. Uploaded sessions are marked as backed
// up. If the server reports that the version is outdated, a refresh of the version is
// triggered and the sessions are left for the next run. Without a trusted version nothing is
// uploaded.
func (e *Engine) UploadRoomKeys(ctx context.Context, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultUploadBatchSize
	}
	for {
		version := e.CurrentVersion()
		if version == nil {
			return nil
		}
		sessions, err := e.Store.NotBackedUpInboundMegolmSessions(ctx, batchSize)
		if err != nil {
			count(e.Metrics.Uploads, resultErrDB)
			return serrors.Wrap("loading sessions to back up", err)
		}
		if len(sessions) == 0 {
			return nil
		}
		backup, uploaded := e.encryptSessions(ctx, version, sessions)
		if len(uploaded) == 0 {
			return nil
		}
		err = retry.Do(ctx, e.Retry, func(ctx context.Context) error {
			err := e.API.SetRoomKeys(ctx, version.Version, backup)
			if errors.Is(err, matrixapi.ErrWrongRoomKeysVersion) {
				return retry.Permanent(err)
			}
			return err
		})
		switch {
		case errors.Is(err, matrixapi.ErrWrongRoomKeysVersion):
			count(e.Metrics.Uploads, resultErrVersion)
			log.FromCtx(ctx).Info("Backup version outdated, refreshing",
				"version", version.Version)
			e.TriggerRefresh()
			return nil
		case err != nil:
			count(e.Metrics.Uploads, resultErrNetwork)
			return serrors.Wrap("uploading sessions", err, "version", version.Version)
		}
		if err := e.Store.MarkInboundMegolmSessionsBackedUp(ctx, uploaded); err != nil {
			count(e.Metrics.Uploads, resultErrDB)
			return serrors.Wrap("marking sessions backed up", err)
		}
		count(e.Metrics.Uploads, resultOk)
		metrics.CounterAdd(e.Metrics.UploadedSessions, float64(len(uploaded)))
		log.FromCtx(ctx).Debug("Uploaded sessions to backup", "version", version.Version,
			"sessions", len(uploaded))
		if len(sessions) < batchSize || len(uploaded) < len(sessions) {
			return nil
		}
	}
}

// encryptSessions encrypts the sessions for the version. Sessions that cannot be exported or
// encrypted are logged and skipped.
func (e *Engine) encryptSessions(ctx context.Context, version *matrix.BackupVersion,
	sessions []matrix.StoredInboundMegolmSession) (matrix.RoomKeyBackup,
	[]matrix.StoredInboundMegolmSession) {

	logger := log.FromCtx(ctx)
	backup := matrix.RoomKeyBackup{Rooms: make(map[matrix.RoomID]matrix.RoomKeyBackupRoom)}
	var uploaded []matrix.StoredInboundMegolmSession
	for _, s := range sessions {
		data, err := e.encryptSession(version.AuthData.PublicKey, s)
		if err != nil {
			logger.Info("Skipping session for backup", "room", s.RoomID,
				"session", s.SessionID, "err", err)
			continue
		}
		room, ok := backup.Rooms[s.RoomID]
		if !ok {
			room = matrix.RoomKeyBackupRoom{
				Sessions: make(map[matrix.SessionID]matrix.KeyBackupData),
			}
			backup.Rooms[s.RoomID] = room
		}
		room.Sessions[s.SessionID] = data
		uploaded = append(uploaded, s)
	}
	return backup, uploaded
}

func (e *Engine) encryptSession(publicKey string,
	s matrix.StoredInboundMegolmSession) (matrix.KeyBackupData, error) {

	sessionKey, firstIndex, err := e.Codec.ExportSession(s.Pickled)
	if err != nil {
		return matrix.KeyBackupData{}, serrors.Wrap("exporting session", err)
	}
	raw, err := json.Marshal(matrix.BackupSessionPlaintext{
		Algorithm:                    matrix.AlgorithmMegolm,
		ForwardingCurve25519KeyChain: nonNil(s.ForwardingCurve25519KeyChain),
		SenderClaimedKeys:            map[string]string{matrix.AlgorithmEd25519: s.SenderSigningKey},
		SenderKey:                    s.SenderKey,
		SessionKey:                   sessionKey,
	})
	if err != nil {
		return matrix.KeyBackupData{}, serrors.Wrap("encoding session", err)
	}
	enc, err := megolmbackup.Encrypt(publicKey, raw)
	if err != nil {
		return matrix.KeyBackupData{}, serrors.Wrap("encrypting session", err)
	}
	return matrix.KeyBackupData{
		FirstMessageIndex: firstIndex,
		ForwardedCount:    len(s.ForwardingCurve25519KeyChain),
		IsVerified:        s.IsTrusted,
		SessionData:       enc,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Uploader uploads new sessions to the backup. An upload starts once no new session appeared
// for the debounce period.
type Uploader struct {
	Engine    *Engine
	Debounce  time.Duration
	BatchSize int

	worker.Base
}

// Run runs the uploader until ctx is done or Close is called.
func (u *Uploader) Run(ctx context.Context) error {
	return u.RunWrapper(ctx, nil, u.run)
}

// Close stops the uploader.
func (u *Uploader) Close(ctx context.Context) error {
	return u.CloseWrapper(ctx, nil)
}

func (u *Uploader) run(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	sessions := u.Engine.Store.SubscribeNotBackedUp()
	defer sessions.Close()
	versions := u.Engine.SubscribeCurrentVersion()
	defer versions.Close()

	debounce := u.Debounce
	if debounce <= 0 {
		debounce = DefaultUploadDebounce
	}
	timer := time.NewTimer(debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-u.GetDoneChan():
			return nil
		case <-sessions.Updates:
			resetTimer(timer, debounce)
		case <-versions.Updates:
			resetTimer(timer, debounce)
		case <-timer.C:
			if err := u.Engine.UploadRoomKeys(ctx, u.BatchSize); err != nil {
				logger.Info("Uploading room keys failed", "err", err)
			}
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
