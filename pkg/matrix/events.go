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

import (
	"encoding/json"
	"time"
)

// Event types used by the request protocols.
const (
	EventSecretRequest    = "m.secret.request"
	EventSecretSend       = "m.secret.send"
	EventRoomKeyRequest   = "m.room_key_request"
	EventForwardedRoomKey = "m.forwarded_room_key"
	EventEncrypted        = "m.room.encrypted"
)

// KeyRequestAction is the action of a secret or room key request.
type KeyRequestAction string

// Request actions.
const (
	ActionRequest             KeyRequestAction = "request"
	ActionRequestCancellation KeyRequestAction = "request_cancellation"
)

// SecretKeyRequest is the content of an m.secret.request event.
type SecretKeyRequest struct {
	Name               SecretType       `json:"name,omitempty"`
	Action             KeyRequestAction `json:"action"`
	RequestingDeviceID DeviceID         `json:"requesting_device_id"`
	RequestID          string           `json:"request_id"`
}

// SecretKeySend is the content of an m.secret.send event.
type SecretKeySend struct {
	RequestID string `json:"request_id"`
	Secret    string `json:"secret"`
}

// RoomKeyRequestBody names the requested session.
type RoomKeyRequestBody struct {
	Algorithm string    `json:"algorithm"`
	RoomID    RoomID    `json:"room_id"`
	SenderKey string    `json:"sender_key,omitempty"`
	SessionID SessionID `json:"session_id"`
}

// RoomKeyRequest is the content of an m.room_key_request event.
type RoomKeyRequest struct {
	Action             KeyRequestAction    `json:"action"`
	Body               *RoomKeyRequestBody `json:"body,omitempty"`
	RequestingDeviceID DeviceID            `json:"requesting_device_id"`
	RequestID          string              `json:"request_id"`
}

// ForwardedRoomKey is the content of an m.forwarded_room_key event.
type ForwardedRoomKey struct {
	Algorithm                    string    `json:"algorithm"`
	RoomID                       RoomID    `json:"room_id"`
	SenderKey                    string    `json:"sender_key"`
	SessionID                    SessionID `json:"session_id"`
	SessionKey                   string    `json:"session_key"`
	SenderClaimedEd25519Key      string    `json:"sender_claimed_ed25519_key"`
	ForwardingCurve25519KeyChain []string  `json:"forwarding_curve25519_key_chain"`
}

// ToDeviceEvent is a to-device event as received from sync.
type ToDeviceEvent struct {
	Sender  UserID          `json:"sender"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// DecryptedEvent is a to-device event that was decrypted by the olm layer.
type DecryptedEvent struct {
	Sender UserID
	// SenderSigningKey is the ed25519 key the sender claims in the
	// encrypted payload.
	SenderSigningKey string
	// SenderIdentityKey is the curve25519 key of the olm session.
	SenderIdentityKey string
	Type              string
	Content           json.RawMessage
}

// StoredSecretKeyRequest is an outgoing secret request that is waiting for
// an answer.
type StoredSecretKeyRequest struct {
	Content           SecretKeyRequest `json:"content"`
	ReceiverDeviceIDs []DeviceID       `json:"receiver_device_ids"`
	CreatedAt         time.Time        `json:"created_at"`
}

// StoredRoomKeyRequest is an outgoing room key request that is waiting for
// an answer.
type StoredRoomKeyRequest struct {
	Content           RoomKeyRequest `json:"content"`
	ReceiverDeviceIDs []DeviceID     `json:"receiver_device_ids"`
	CreatedAt         time.Time      `json:"created_at"`
}

// HasReceiver returns whether d is one of the receivers.
func HasReceiver(receivers []DeviceID, d DeviceID) bool {
	for _, r := range receivers {
		if r == d {
			return true
		}
	}
	return false
}
