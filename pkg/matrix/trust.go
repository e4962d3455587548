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
	"fmt"
)

// TrustKind discriminates the variants of TrustLevel.
type TrustKind string

// Trust level kinds.
const (
	TrustValid                       TrustKind = "valid"
	TrustCrossSigned                 TrustKind = "cross_signed"
	TrustNotCrossSigned              TrustKind = "not_cross_signed"
	TrustNotAllDeviceKeysCrossSigned TrustKind = "not_all_device_keys_cross_signed"
	TrustMasterKeyChangedRecently    TrustKind = "master_key_changed_recently"
	TrustBlocked                     TrustKind = "blocked"
	TrustInvalid                     TrustKind = "invalid"
)

// TrustLevel is the computed trust of a device or cross-signing key.
//
// Verified is meaningful for Valid, CrossSigned and
// NotAllDeviceKeysCrossSigned. For MasterKeyChangedRecently it carries
// whether the previous master key was verified. Reason is only set for
// Invalid.
type TrustLevel struct {
	Kind     TrustKind `json:"kind"`
	Verified bool      `json:"verified,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// Valid is the level of a key whose user has no master key, or of a leaf
// device that is trusted directly.
func Valid(verified bool) TrustLevel {
	return TrustLevel{Kind: TrustValid, Verified: verified}
}

// CrossSigned is the level of a key reachable from a trusted anchor.
func CrossSigned(verified bool) TrustLevel {
	return TrustLevel{Kind: TrustCrossSigned, Verified: verified}
}

// NotCrossSigned is the level of a key whose user has a master key that does
// not vouch for it.
func NotCrossSigned() TrustLevel {
	return TrustLevel{Kind: TrustNotCrossSigned}
}

// NotAllDeviceKeysCrossSigned is a master key level: at least one device of
// the user is not cross-signed.
func NotAllDeviceKeysCrossSigned(verified bool) TrustLevel {
	return TrustLevel{Kind: TrustNotAllDeviceKeysCrossSigned, Verified: verified}
}

// MasterKeyChangedRecently is a master key level: the master key rotated and
// must be verified again.
func MasterKeyChangedRecently(previousWasVerified bool) TrustLevel {
	return TrustLevel{Kind: TrustMasterKeyChangedRecently, Verified: previousWasVerified}
}

// Blocked is the level of a key that was blocked or is only vouched for by
// blocked keys.
func Blocked() TrustLevel {
	return TrustLevel{Kind: TrustBlocked}
}

// Invalid is the level of a key whose trust could not be determined.
func Invalid(reason string) TrustLevel {
	return TrustLevel{Kind: TrustInvalid, Reason: reason}
}

// IsVerified returns whether the level represents a verified key.
func (t TrustLevel) IsVerified() bool {
	switch t.Kind {
	case TrustValid, TrustCrossSigned, TrustNotAllDeviceKeysCrossSigned:
		return t.Verified
	default:
		return false
	}
}

// IsCrossSigned returns whether the level is CrossSigned.
func (t TrustLevel) IsCrossSigned() bool {
	return t.Kind == TrustCrossSigned
}

// MasterOnly returns whether the kind may only be assigned to master keys.
func (t TrustLevel) MasterOnly() bool {
	return t.Kind == TrustNotAllDeviceKeysCrossSigned || t.Kind == TrustMasterKeyChangedRecently
}

func (t TrustLevel) String() string {
	switch t.Kind {
	case TrustValid, TrustCrossSigned, TrustNotAllDeviceKeysCrossSigned:
		return fmt.Sprintf("%s(verified=%t)", t.Kind, t.Verified)
	case TrustMasterKeyChangedRecently:
		return fmt.Sprintf("%s(previous_verified=%t)", t.Kind, t.Verified)
	case TrustInvalid:
		return fmt.Sprintf("%s(%s)", t.Kind, t.Reason)
	default:
		return string(t.Kind)
	}
}

// VerificationKind is the outcome of an out-of-band verification.
type VerificationKind string

// Verification kinds.
const (
	VerificationVerified VerificationKind = "verified"
	VerificationBlocked  VerificationKind = "blocked"
)

// KeyVerificationState is the verification recorded for a key. It only
// applies while KeyValue equals the key's current value.
type KeyVerificationState struct {
	Kind     VerificationKind `json:"kind"`
	KeyValue string           `json:"key_value"`
}

// AppliesTo returns whether the state was recorded for the given key value.
func (s *KeyVerificationState) AppliesTo(value string) bool {
	return s != nil && s.KeyValue == value
}
