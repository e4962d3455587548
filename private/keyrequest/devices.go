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

package keyrequest

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/private/matrixapi"
)

// DeviceStore gives access to the stored device keys.
type DeviceStore interface {
	DeviceKeys(ctx context.Context,
		user matrix.UserID) (map[matrix.DeviceID]matrix.StoredDeviceKeys, error)
	DeviceKey(ctx context.Context, user matrix.UserID,
		device matrix.DeviceID) (*matrix.StoredDeviceKeys, error)
}

// SelectReceivers returns the devices of the own user, except the own device, that are
// cross-signed and verified. The result is sorted.
func SelectReceivers(ctx context.Context, store DeviceStore, user matrix.UserID,
	own matrix.DeviceID) ([]matrix.DeviceID, error) {

	devices, err := store.DeviceKeys(ctx, user)
	if err != nil {
		return nil, serrors.Wrap("loading own devices", err)
	}
	var receivers []matrix.DeviceID
	for id, d := range devices {
		if id == own {
			continue
		}
		if d.Trust.IsCrossSigned() && d.Trust.IsVerified() {
			receivers = append(receivers, id)
		}
	}
	sort.Slice(receivers, func(i, j int) bool { return receivers[i] < receivers[j] })
	return receivers, nil
}

// ResolveSender returns the device of user whose ed25519 key is signingKey, or nil if there is
// none.
func ResolveSender(ctx context.Context, store DeviceStore, user matrix.UserID,
	signingKey string) (*matrix.StoredDeviceKeys, error) {

	if signingKey == "" {
		return nil, nil
	}
	devices, err := store.DeviceKeys(ctx, user)
	if err != nil {
		return nil, serrors.Wrap("loading devices", err, "user", user)
	}
	for _, d := range devices {
		if key, ok := d.Value.SigningKey(); ok && key.Value == signingKey {
			return &d, nil
		}
	}
	return nil, nil
}

// IsVerified returns whether the device is known and verified.
func IsVerified(ctx context.Context, store DeviceStore, user matrix.UserID,
	device matrix.DeviceID) (bool, error) {

	d, err := store.DeviceKey(ctx, user, device)
	if err != nil {
		return false, serrors.Wrap("loading device", err, "user", user, "device", device)
	}
	return d != nil && d.Trust.IsVerified(), nil
}

// SendToDevices sends the same content unencrypted to every listed device of user.
func SendToDevices(ctx context.Context, api matrixapi.ToDeviceAPI, eventType string,
	user matrix.UserID, devices []matrix.DeviceID, content any) error {

	if len(devices) == 0 {
		return nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return serrors.Wrap("encoding content", err, "type", eventType)
	}
	msgs := make(map[matrix.DeviceID]json.RawMessage, len(devices))
	for _, d := range devices {
		msgs[d] = raw
	}
	if err := api.SendToDevice(ctx, eventType,
		map[matrix.UserID]map[matrix.DeviceID]json.RawMessage{user: msgs}); err != nil {

		return serrors.Wrap("sending to-device message", err, "type", eventType,
			"devices", len(devices))
	}
	return nil
}

// Without returns receivers without device.
func Without(receivers []matrix.DeviceID, device matrix.DeviceID) []matrix.DeviceID {
	var r []matrix.DeviceID
	for _, d := range receivers {
		if d != device {
			r = append(r, d)
		}
	}
	return r
}
