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
	"sort"
)

// DeviceKeys are the identity and signing keys published by one device.
type DeviceKeys struct {
	UserID     UserID           `json:"user_id"`
	DeviceID   DeviceID         `json:"device_id"`
	Algorithms []string         `json:"algorithms"`
	Keys       map[KeyID]string `json:"keys"`
	Signatures Signatures       `json:"signatures,omitempty"`
	Unsigned   map[string]any   `json:"unsigned,omitempty"`
}

// SigningKeyID returns the id of the device's ed25519 key.
func (d *DeviceKeys) SigningKeyID() KeyID {
	return NewKeyID(AlgorithmEd25519, string(d.DeviceID))
}

// SigningKey returns the device's ed25519 key.
func (d *DeviceKeys) SigningKey() (Ed25519Key, bool) {
	id := d.SigningKeyID()
	v, ok := d.Keys[id]
	if !ok || v == "" {
		return Ed25519Key{}, false
	}
	return Ed25519Key{ID: id, Value: v}, true
}

// IdentityKey returns the device's curve25519 key.
func (d *DeviceKeys) IdentityKey() (string, bool) {
	v, ok := d.Keys[NewKeyID(AlgorithmCurve25519, string(d.DeviceID))]
	return v, ok && v != ""
}

// KeyUsage is the role of a cross-signing key.
type KeyUsage string

// Cross-signing key usages.
const (
	UsageMaster      KeyUsage = "master"
	UsageSelfSigning KeyUsage = "self_signing"
	UsageUserSigning KeyUsage = "user_signing"
)

// CrossSigningKey is a master, self-signing or user-signing key.
type CrossSigningKey struct {
	UserID     UserID           `json:"user_id"`
	Usage      []KeyUsage       `json:"usage"`
	Keys       map[KeyID]string `json:"keys"`
	Signatures Signatures       `json:"signatures,omitempty"`
}

// HasUsage returns whether the key is marked with usage u.
func (k *CrossSigningKey) HasUsage(u KeyUsage) bool {
	for _, usage := range k.Usage {
		if usage == u {
			return true
		}
	}
	return false
}

// PrimaryUsage returns the usage the key is stored under. Master takes
// precedence over self-signing, which takes precedence over user-signing.
func (k *CrossSigningKey) PrimaryUsage() (KeyUsage, bool) {
	for _, u := range []KeyUsage{UsageMaster, UsageSelfSigning, UsageUserSigning} {
		if k.HasUsage(u) {
			return u, true
		}
	}
	return "", false
}

// PublicKey returns the ed25519 key of the cross-signing key. If several are
// listed, the lowest key id is used.
func (k *CrossSigningKey) PublicKey() (Ed25519Key, bool) {
	ids := make([]string, 0, len(k.Keys))
	for id := range k.Keys {
		if id.Algorithm() == AlgorithmEd25519 {
			ids = append(ids, string(id))
		}
	}
	if len(ids) == 0 {
		return Ed25519Key{}, false
	}
	sort.Strings(ids)
	id := KeyID(ids[0])
	return Ed25519Key{ID: id, Value: k.Keys[id]}, true
}

// StoredDeviceKeys are device keys together with their computed trust level.
type StoredDeviceKeys struct {
	Value DeviceKeys `json:"value"`
	Trust TrustLevel `json:"trust"`
}

// StoredCrossSigningKey is a cross-signing key together with its computed
// trust level.
type StoredCrossSigningKey struct {
	Value CrossSigningKey `json:"value"`
	Trust TrustLevel      `json:"trust"`
}

// KeyChainLink records that SigningKey of SigningUserID signed SignedKey of
// SignedUserID.
type KeyChainLink struct {
	SigningUserID UserID     `json:"signing_user_id"`
	SigningKey    Ed25519Key `json:"signing_key"`
	SignedUserID  UserID     `json:"signed_user_id"`
	SignedKey     Ed25519Key `json:"signed_key"`
}

// KeysQueryResponse is the result of a key query for a set of users.
type KeysQueryResponse struct {
	DeviceKeys      map[UserID]map[DeviceID]DeviceKeys `json:"device_keys"`
	MasterKeys      map[UserID]CrossSigningKey         `json:"master_keys,omitempty"`
	SelfSigningKeys map[UserID]CrossSigningKey         `json:"self_signing_keys,omitempty"`
	UserSigningKeys map[UserID]CrossSigningKey         `json:"user_signing_keys,omitempty"`
	Failures        map[string]any                     `json:"failures,omitempty"`
}
