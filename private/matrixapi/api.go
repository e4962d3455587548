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

// Package matrixapi defines the parts of the Matrix client-server API the key trust core
// consumes. The HTTP transport is provided by the embedding client.
package matrixapi

import (
	"context"
	"encoding/json"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

var (
	// ErrNotFound is returned if the server does not know the requested resource.
	ErrNotFound = serrors.New("not found")
	// ErrWrongRoomKeysVersion is returned if a backup request names a version that is not the
	// current version anymore.
	ErrWrongRoomKeysVersion = serrors.New("wrong room keys version")
)

// SignatureUpload maps users to the signed objects to upload. Objects are keyed by device ID for
// device keys and by public key for cross-signing keys, and only carry the new signatures.
type SignatureUpload map[matrix.UserID]map[string]json.RawMessage

// SignatureUploadResponse carries the per key failures reported by the server.
type SignatureUploadResponse struct {
	Failures map[matrix.UserID]map[string]json.RawMessage `json:"failures,omitempty"`
}

// KeysAPI queries keys and uploads signatures.
type KeysAPI interface {
	QueryKeys(ctx context.Context, users []matrix.UserID) (*matrix.KeysQueryResponse, error)
	UploadSignatures(ctx context.Context, upload SignatureUpload) (*SignatureUploadResponse, error)
}

// BackupAPI manages the server side room key backup.
type BackupAPI interface {
	// GetRoomKeysVersion returns the current backup version. It returns ErrNotFound if there is
	// none.
	GetRoomKeysVersion(ctx context.Context) (*matrix.BackupVersion, error)
	// CreateRoomKeysVersion creates a new backup version and returns its version string.
	CreateRoomKeysVersion(ctx context.Context, algorithm string,
		authData matrix.BackupAuthData) (string, error)
	UpdateRoomKeysVersion(ctx context.Context, version, algorithm string,
		authData matrix.BackupAuthData) error
	// GetRoomKeys returns a single backed up session. It returns ErrNotFound if the session is
	// not in the backup.
	GetRoomKeys(ctx context.Context, version string, room matrix.RoomID,
		session matrix.SessionID) (*matrix.KeyBackupData, error)
	// SetRoomKeys uploads sessions. It returns ErrWrongRoomKeysVersion if version is outdated.
	SetRoomKeys(ctx context.Context, version string, backup matrix.RoomKeyBackup) error
}

// ToDeviceAPI sends to-device messages.
type ToDeviceAPI interface {
	SendToDevice(ctx context.Context, eventType string,
		messages map[matrix.UserID]map[matrix.DeviceID]json.RawMessage) error
}

// AccountDataAPI writes global account data.
type AccountDataAPI interface {
	SetGlobalAccountData(ctx context.Context, eventType string, content json.RawMessage) error
}

// Client is the full API surface.
type Client interface {
	KeysAPI
	BackupAPI
	ToDeviceAPI
	AccountDataAPI
}
