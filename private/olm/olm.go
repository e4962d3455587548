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

// Package olm defines the Olm and Megolm services the key trust core relies on. The session
// cryptography itself lives in the embedding client; only device signing is implemented here.
package olm

import (
	"context"
	"encoding/json"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/signatures"
)

// Encrypter encrypts to-device content for a single device.
type Encrypter interface {
	// EncryptDirect returns the m.room.encrypted content carrying the encrypted event.
	EncryptDirect(ctx context.Context, user matrix.UserID, device matrix.DeviceID,
		eventType string, content json.RawMessage) (json.RawMessage, error)
}

// DeviceSigner signs with the ed25519 key of the own device.
type DeviceSigner interface {
	DeviceKey() matrix.Ed25519Key
	Sign(obj any) (matrix.KeyID, string, error)
}

// InboundSession is an imported megolm session.
type InboundSession struct {
	FirstKnownIndex int64
	Pickled         string
}

// SessionCodec converts between exported megolm session keys and pickled sessions.
type SessionCodec interface {
	ImportSession(sessionKey string) (InboundSession, error)
	// ExportSession exports the session at its first known index.
	ExportSession(pickled string) (sessionKey string, firstKnownIndex int64, err error)
}

// DehydratedDevices gives access to the dehydrated device stored on the server.
type DehydratedDevices interface {
	// CanUnpickle reports whether key decrypts the dehydrated device account.
	CanUnpickle(ctx context.Context, key string) (bool, error)
}

// SecretStorage encrypts secrets for the account data secret storage.
type SecretStorage interface {
	// EncryptSecret returns the account data content holding the secret encrypted with the
	// secret storage key keyID.
	EncryptSecret(ctx context.Context, keyID string, typ matrix.SecretType,
		secret string) (json.RawMessage, error)
}

var _ DeviceSigner = (*SeedDeviceSigner)(nil)

// SeedDeviceSigner is a DeviceSigner backed by the seed of the device's ed25519 key.
type SeedDeviceSigner struct {
	key    matrix.Ed25519Key
	signer *signatures.SeedSigner
}

// NewSeedDeviceSigner creates a device signer from an unpadded base64 ed25519 seed.
func NewSeedDeviceSigner(user matrix.UserID, device matrix.DeviceID,
	seed string) (*SeedDeviceSigner, error) {

	s, err := signatures.NewSeedSigner(user, seed)
	if err != nil {
		return nil, err
	}
	return &SeedDeviceSigner{
		key: matrix.Ed25519Key{
			ID:    matrix.NewKeyID(matrix.AlgorithmEd25519, string(device)),
			Value: s.Key.Value,
		},
		signer: s,
	}, nil
}

func (s *SeedDeviceSigner) DeviceKey() matrix.Ed25519Key {
	return s.key
}

func (s *SeedDeviceSigner) Sign(obj any) (matrix.KeyID, string, error) {
	_, sig, err := s.signer.Sign(obj)
	if err != nil {
		return "", "", err
	}
	return s.key.ID, sig, nil
}
