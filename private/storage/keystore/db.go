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

// Package keystore defines the persistent state of the key trust core: device and cross-signing
// keys with their trust levels, verification states, key chain links, secrets, outstanding key
// requests and inbound megolm sessions.
//
// Getters for single items return (nil, nil) if the item does not exist.
package keystore

import (
	"context"
	"encoding/json"
	"io"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/private/notify"
)

// KeyStore stores the public key material of users.
type KeyStore interface {
	// DeviceKeys returns all devices of the user keyed by device ID.
	DeviceKeys(ctx context.Context,
		user matrix.UserID) (map[matrix.DeviceID]matrix.StoredDeviceKeys, error)
	DeviceKey(ctx context.Context, user matrix.UserID,
		device matrix.DeviceID) (*matrix.StoredDeviceKeys, error)
	// ReplaceDeviceKeys replaces the full device list of the user.
	ReplaceDeviceKeys(ctx context.Context, user matrix.UserID,
		devices []matrix.StoredDeviceKeys) error
	// SetDeviceKey inserts or updates a single device.
	SetDeviceKey(ctx context.Context, device matrix.StoredDeviceKeys) error

	// CrossSigningKeys returns the cross-signing keys of the user keyed by usage.
	CrossSigningKeys(ctx context.Context,
		user matrix.UserID) (map[matrix.KeyUsage]matrix.StoredCrossSigningKey, error)
	CrossSigningKey(ctx context.Context, user matrix.UserID,
		usage matrix.KeyUsage) (*matrix.StoredCrossSigningKey, error)
	SetCrossSigningKey(ctx context.Context, usage matrix.KeyUsage,
		key matrix.StoredCrossSigningKey) error
	DeleteCrossSigningKey(ctx context.Context, user matrix.UserID, usage matrix.KeyUsage) error

	// OutdatedUsers returns the users whose keys must be queried again.
	OutdatedUsers(ctx context.Context) ([]matrix.UserID, error)
	AddOutdatedUsers(ctx context.Context, users ...matrix.UserID) error
	RemoveOutdatedUsers(ctx context.Context, users ...matrix.UserID) error
	SubscribeOutdatedUsers() *notify.Subscription
}

// VerificationStore stores the results of out-of-band verification.
type VerificationStore interface {
	KeyVerificationState(ctx context.Context, user matrix.UserID,
		keyID matrix.KeyID) (*matrix.KeyVerificationState, error)
	SetKeyVerificationState(ctx context.Context, user matrix.UserID, keyID matrix.KeyID,
		state matrix.KeyVerificationState) error
	DeleteKeyVerificationState(ctx context.Context, user matrix.UserID, keyID matrix.KeyID) error
}

// KeyChainLinkStore stores the signer to signed relationships found during trust calculation.
// Keys are identified by their owner and public key value.
type KeyChainLinkStore interface {
	// ReplaceKeyChainLinks replaces all links pointing to the signed key and returns the links
	// that were removed.
	ReplaceKeyChainLinks(ctx context.Context, signedUser matrix.UserID, signedKey string,
		links []matrix.KeyChainLink) ([]matrix.KeyChainLink, error)
	KeyChainLinksBySigner(ctx context.Context, signingUser matrix.UserID,
		signingKey string) ([]matrix.KeyChainLink, error)
	KeyChainLinksBySigned(ctx context.Context, signedUser matrix.UserID,
		signedKey string) ([]matrix.KeyChainLink, error)
	// DeleteOrphanedKeyChainLinks removes the links whose signed key is no longer known.
	DeleteOrphanedKeyChainLinks(ctx context.Context) (int, error)
}

// SecretStore stores the locally cached secrets and global account data.
type SecretStore interface {
	Secrets(ctx context.Context) (map[matrix.SecretType]matrix.StoredSecret, error)
	Secret(ctx context.Context, typ matrix.SecretType) (*matrix.StoredSecret, error)
	SetSecret(ctx context.Context, typ matrix.SecretType, secret matrix.StoredSecret) error
	DeleteSecret(ctx context.Context, typ matrix.SecretType) error
	SubscribeSecrets() *notify.Subscription

	GlobalAccountData(ctx context.Context, eventType string) (json.RawMessage, error)
	SetGlobalAccountData(ctx context.Context, eventType string, content json.RawMessage) error
}

// SecretRequestStore stores the outgoing secret requests.
type SecretRequestStore interface {
	SecretKeyRequests(ctx context.Context) ([]matrix.StoredSecretKeyRequest, error)
	SecretKeyRequest(ctx context.Context, requestID string) (*matrix.StoredSecretKeyRequest, error)
	AddSecretKeyRequest(ctx context.Context, req matrix.StoredSecretKeyRequest) error
	DeleteSecretKeyRequest(ctx context.Context, requestID string) error
}

// RoomKeyRequestStore stores the outgoing room key requests.
type RoomKeyRequestStore interface {
	RoomKeyRequests(ctx context.Context) ([]matrix.StoredRoomKeyRequest, error)
	RoomKeyRequest(ctx context.Context, requestID string) (*matrix.StoredRoomKeyRequest, error)
	AddRoomKeyRequest(ctx context.Context, req matrix.StoredRoomKeyRequest) error
	DeleteRoomKeyRequest(ctx context.Context, requestID string) error
	SubscribeRoomKeyRequests() *notify.Subscription
}

// MegolmSessionStore stores inbound megolm sessions.
type MegolmSessionStore interface {
	InboundMegolmSession(ctx context.Context, room matrix.RoomID,
		session matrix.SessionID) (*matrix.StoredInboundMegolmSession, error)
	// MergeInboundMegolmSession stores the session if there is none for its room and session ID
	// or if its first known index is strictly lower than the stored one. It returns whether the
	// session was stored.
	MergeInboundMegolmSession(ctx context.Context,
		session matrix.StoredInboundMegolmSession) (bool, error)
	// NotBackedUpInboundMegolmSessions returns up to limit sessions that are not backed up.
	NotBackedUpInboundMegolmSessions(ctx context.Context,
		limit int) ([]matrix.StoredInboundMegolmSession, error)
	// MarkInboundMegolmSessionsBackedUp marks the sessions as backed up, unless they were
	// replaced in the meantime.
	MarkInboundMegolmSessionsBackedUp(ctx context.Context,
		sessions []matrix.StoredInboundMegolmSession) error
	// ResetInboundMegolmSessionsBackedUp marks all sessions as not backed up.
	ResetInboundMegolmSessionsBackedUp(ctx context.Context) error
	SubscribeNotBackedUp() *notify.Subscription
}

// DB is the full persistent state.
type DB interface {
	KeyStore
	VerificationStore
	KeyChainLinkStore
	SecretStore
	SecretRequestStore
	RoomKeyRequestStore
	MegolmSessionStore
	io.Closer
}
