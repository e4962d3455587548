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

// Package matrix contains the identifiers, key material and event contents
// exchanged by the trust and secret distribution engines.
package matrix

import (
	"strings"
)

// Key algorithms.
const (
	AlgorithmEd25519    = "ed25519"
	AlgorithmCurve25519 = "curve25519"
	// AlgorithmMegolm is the room encryption algorithm whose sessions are
	// shared and backed up.
	AlgorithmMegolm = "m.megolm.v1.aes-sha2"
	// AlgorithmOlm is the device-to-device encryption algorithm.
	AlgorithmOlm = "m.olm.v1.curve25519-aes-sha2"
)

// UserID is a fully qualified Matrix user id such as @alice:example.org.
type UserID string

func (u UserID) String() string { return string(u) }

// DeviceID identifies one device of a user.
type DeviceID string

func (d DeviceID) String() string { return string(d) }

// RoomID identifies a room.
type RoomID string

// SessionID identifies a megolm session.
type SessionID string

// KeyID is an algorithm-qualified key identifier such as "ed25519:DEVICEID".
type KeyID string

// NewKeyID builds a key id from an algorithm and an identifier.
func NewKeyID(algorithm, id string) KeyID {
	return KeyID(algorithm + ":" + id)
}

// Algorithm returns the algorithm part of the key id.
func (k KeyID) Algorithm() string {
	alg, _, _ := strings.Cut(string(k), ":")
	return alg
}

// ID returns the part of the key id after the algorithm.
func (k KeyID) ID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

func (k KeyID) String() string { return string(k) }

// Ed25519Key is a public signing key together with its key id.
type Ed25519Key struct {
	ID    KeyID  `json:"id"`
	Value string `json:"value"`
}

// IsZero returns whether the key is unset.
func (k Ed25519Key) IsZero() bool {
	return k.ID == "" && k.Value == ""
}

// Signatures maps a signing user to the signatures of that user's keys.
type Signatures map[UserID]map[KeyID]string

// Get returns the signature by the given key, if present.
func (s Signatures) Get(user UserID, key KeyID) (string, bool) {
	sig, ok := s[user][key]
	return sig, ok
}

// Add returns a copy of s with the given signature added.
func (s Signatures) Add(user UserID, key KeyID, sig string) Signatures {
	c := s.Clone()
	if c[user] == nil {
		c[user] = make(map[KeyID]string)
	}
	c[user][key] = sig
	return c
}

// Remove returns a copy of s without the given signature.
func (s Signatures) Remove(user UserID, key KeyID) Signatures {
	c := s.Clone()
	delete(c[user], key)
	if len(c[user]) == 0 {
		delete(c, user)
	}
	return c
}

// Merge returns a copy of s with all signatures of o added.
func (s Signatures) Merge(o Signatures) Signatures {
	c := s.Clone()
	for user, keys := range o {
		if c[user] == nil {
			c[user] = make(map[KeyID]string, len(keys))
		}
		for k, v := range keys {
			c[user][k] = v
		}
	}
	return c
}

// Clone returns a deep copy.
func (s Signatures) Clone() Signatures {
	c := make(Signatures, len(s))
	for user, keys := range s {
		m := make(map[KeyID]string, len(keys))
		for k, v := range keys {
			m[k] = v
		}
		c[user] = m
	}
	return c
}
