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
)

// SecretType names a secret that can be stored in account data and shared
// between devices.
type SecretType string

// Known secret types.
const (
	SecretCrossSigningSelfSigning SecretType = "m.cross_signing.self_signing"
	SecretCrossSigningUserSigning SecretType = "m.cross_signing.user_signing"
	SecretMegolmBackupV1          SecretType = "m.megolm_backup.v1"
	SecretDehydratedDevice        SecretType = "org.matrix.msc3814"
)

// SecretTypes lists all known secret types in a stable order.
var SecretTypes = []SecretType{
	SecretCrossSigningSelfSigning,
	SecretCrossSigningUserSigning,
	SecretMegolmBackupV1,
	SecretDehydratedDevice,
}

// ParseSecretType returns the secret type with the given name.
func ParseSecretType(name string) (SecretType, bool) {
	for _, t := range SecretTypes {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// StoredSecret is a decrypted secret together with the encrypted account data
// content it belongs to. The secret is stale once the account data content
// changes.
type StoredSecret struct {
	Origin              json.RawMessage `json:"origin"`
	DecryptedPrivateKey string          `json:"decrypted_private_key"`
}
