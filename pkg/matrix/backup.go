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

package matrix

// BackupAlgorithmMegolmV1 is the only supported key backup algorithm.
const BackupAlgorithmMegolmV1 = "m.megolm_backup.v1.curve25519-aes-sha2"

// BackupAuthData is the auth_data of an m.megolm_backup.v1 backup version.
type BackupAuthData struct {
	PublicKey  string     `json:"public_key"`
	Signatures Signatures `json:"signatures,omitempty"`
}

// BackupVersion describes a server side key backup version.
type BackupVersion struct {
	Algorithm string         `json:"algorithm"`
	AuthData  BackupAuthData `json:"auth_data"`
	Count     int64          `json:"count"`
	ETag      string         `json:"etag"`
	Version   string         `json:"version"`
}

// Supported returns whether the version uses a supported algorithm.
func (v *BackupVersion) Supported() bool {
	return v != nil && v.Algorithm == BackupAlgorithmMegolmV1
}

// EncryptedSessionData is the encrypted session_data of a backed up session.
type EncryptedSessionData struct {
	Ephemeral  string `json:"ephemeral"`
	Ciphertext string `json:"ciphertext"`
	MAC        string `json:"mac"`
}

// KeyBackupData is one backed up session.
type KeyBackupData struct {
	FirstMessageIndex int64                `json:"first_message_index"`
	ForwardedCount    int                  `json:"forwarded_count"`
	IsVerified        bool                 `json:"is_verified"`
	SessionData       EncryptedSessionData `json:"session_data"`
}

// RoomKeyBackup is a batch of backed up sessions grouped by room.
type RoomKeyBackup struct {
	Rooms map[RoomID]RoomKeyBackupRoom `json:"rooms"`
}

// RoomKeyBackupRoom holds the backed up sessions of one room.
type RoomKeyBackupRoom struct {
	Sessions map[SessionID]KeyBackupData `json:"sessions"`
}

// BackupSessionPlaintext is the decrypted content of session_data.
type BackupSessionPlaintext struct {
	Algorithm                    string            `json:"algorithm"`
	ForwardingCurve25519KeyChain []string          `json:"forwarding_curve25519_key_chain"`
	SenderClaimedKeys            map[string]string `json:"sender_claimed_keys"`
	SenderKey                    string            `json:"sender_key"`
	SessionKey                   string            `json:"session_key"`
}

// StoredInboundMegolmSession is an inbound megolm session as kept in the
// store. FirstKnownIndex only decreases: a lower index means more history.
type StoredInboundMegolmSession struct {
	SenderKey                    string    `json:"sender_key"`
	SenderSigningKey             string    `json:"sender_signing_key"`
	SessionID                    SessionID `json:"session_id"`
	RoomID                       RoomID    `json:"room_id"`
	FirstKnownIndex              int64     `json:"first_known_index"`
	HasBeenBackedUp              bool      `json:"has_been_backed_up"`
	IsTrusted                    bool      `json:"is_trusted"`
	ForwardingCurve25519KeyChain []string  `json:"forwarding_curve25519_key_chain"`
	Pickled                      string    `json:"pickled"`
}
