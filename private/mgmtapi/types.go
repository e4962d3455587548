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

package mgmtapi

import (
	"sort"
	"time"

	"github.com/crosstrust/keytrust/pkg/matrix"
)

// Problem is an RFC 7807 error response.
type Problem struct {
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status"`
	Title  string `json:"title"`
	Type   string `json:"type,omitempty"`
}

// Problem types.
const (
	BadRequest    = "/problems/bad-request"
	NotFound      = "/problems/not-found"
	InternalError = "/problems/internal-error"
)

// Device is a device of a user with its trust level.
type Device struct {
	DeviceID   matrix.DeviceID   `json:"device_id" yaml:"device_id"`
	SigningKey string            `json:"signing_key,omitempty" yaml:"signing_key,omitempty"`
	Trust      matrix.TrustLevel `json:"trust" yaml:"trust"`
	Verified   bool              `json:"verified" yaml:"verified"`
}

// DevicesResponse lists the devices of a user ordered by device ID.
type DevicesResponse struct {
	UserID  matrix.UserID `json:"user_id" yaml:"user_id"`
	Devices []Device      `json:"devices" yaml:"devices"`
}

// CrossSigningKey is a cross-signing key of a user with its trust level.
type CrossSigningKey struct {
	Usage     matrix.KeyUsage   `json:"usage" yaml:"usage"`
	PublicKey string            `json:"public_key" yaml:"public_key"`
	Trust     matrix.TrustLevel `json:"trust" yaml:"trust"`
	Verified  bool              `json:"verified" yaml:"verified"`
}

// CrossSigningResponse lists the cross-signing keys of a user ordered by usage.
type CrossSigningResponse struct {
	UserID matrix.UserID     `json:"user_id" yaml:"user_id"`
	Keys   []CrossSigningKey `json:"keys" yaml:"keys"`
}

// BackupVersionResponse describes the trusted backup version.
type BackupVersionResponse struct {
	Version   string `json:"version" yaml:"version"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	PublicKey string `json:"public_key" yaml:"public_key"`
	Count     int64  `json:"count" yaml:"count"`
}

// SecretRequest is an outgoing secret request.
type SecretRequest struct {
	RequestID string            `json:"request_id" yaml:"request_id"`
	Name      matrix.SecretType `json:"name" yaml:"name"`
	Receivers []matrix.DeviceID `json:"receivers" yaml:"receivers"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// RoomKeyRequest is an outgoing room key request.
type RoomKeyRequest struct {
	RequestID string            `json:"request_id" yaml:"request_id"`
	RoomID    matrix.RoomID     `json:"room_id" yaml:"room_id"`
	SessionID matrix.SessionID  `json:"session_id" yaml:"session_id"`
	Receivers []matrix.DeviceID `json:"receivers" yaml:"receivers"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// NewDevicesResponse lists the stored devices of user.
func NewDevicesResponse(user matrix.UserID,
	devices map[matrix.DeviceID]matrix.StoredDeviceKeys) DevicesResponse {

	rep := DevicesResponse{UserID: user, Devices: make([]Device, 0, len(devices))}
	for _, d := range devices {
		dk := d.Value
		key, _ := dk.SigningKey()
		rep.Devices = append(rep.Devices, Device{
			DeviceID:   dk.DeviceID,
			SigningKey: key.Value,
			Trust:      d.Trust,
			Verified:   d.Trust.IsVerified(),
		})
	}
	sort.Slice(rep.Devices, func(i, j int) bool {
		return rep.Devices[i].DeviceID < rep.Devices[j].DeviceID
	})
	return rep
}

// NewCrossSigningResponse lists the stored cross-signing keys of user.
func NewCrossSigningResponse(user matrix.UserID,
	keys map[matrix.KeyUsage]matrix.StoredCrossSigningKey) CrossSigningResponse {

	rep := CrossSigningResponse{UserID: user, Keys: make([]CrossSigningKey, 0, len(keys))}
	for usage, k := range keys {
		ck := k.Value
		pub, _ := ck.PublicKey()
		rep.Keys = append(rep.Keys, CrossSigningKey{
			Usage:     usage,
			PublicKey: pub.Value,
			Trust:     k.Trust,
			Verified:  k.Trust.IsVerified(),
		})
	}
	sort.Slice(rep.Keys, func(i, j int) bool {
		return rep.Keys[i].Usage < rep.Keys[j].Usage
	})
	return rep
}

// NewSecretRequests lists the stored outgoing secret requests in storage order.
func NewSecretRequests(requests []matrix.StoredSecretKeyRequest) []SecretRequest {
	rep := make([]SecretRequest, 0, len(requests))
	for _, req := range requests {
		rep = append(rep, SecretRequest{
			RequestID: req.Content.RequestID,
			Name:      req.Content.Name,
			Receivers: req.ReceiverDeviceIDs,
			CreatedAt: req.CreatedAt.UTC(),
		})
	}
	return rep
}

// NewRoomKeyRequests lists the stored outgoing room key requests in storage order.
func NewRoomKeyRequests(requests []matrix.StoredRoomKeyRequest) []RoomKeyRequest {
	rep := make([]RoomKeyRequest, 0, len(requests))
	for _, req := range requests {
		entry := RoomKeyRequest{
			RequestID: req.Content.RequestID,
			Receivers: req.ReceiverDeviceIDs,
			CreatedAt: req.CreatedAt.UTC(),
		}
		if b := req.Content.Body; b != nil {
			entry.RoomID = b.RoomID
			entry.SessionID = b.SessionID
		}
		rep = append(rep, entry)
	}
	return rep
}
