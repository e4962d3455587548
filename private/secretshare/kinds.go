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

package secretshare

import (
	"context"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/backup"
)

// authenticityCheck reports whether a received secret is the genuine secret of its kind.
type authenticityCheck func(ctx context.Context, p *Protocol, secret string) (bool, error)

// kinds lists the shareable secrets with the check a received secret must pass.
var kinds = map[matrix.SecretType]authenticityCheck{
	matrix.SecretCrossSigningSelfSigning: crossSigningCheck(matrix.UsageSelfSigning),
	matrix.SecretCrossSigningUserSigning: crossSigningCheck(matrix.UsageUserSigning),
	matrix.SecretMegolmBackupV1:          backupCheck,
	matrix.SecretDehydratedDevice:        dehydratedDeviceCheck,
}

// crossSigningCheck accepts a private key that derives the stored public key of the own
// cross-signing key with the given usage.
func crossSigningCheck(usage matrix.KeyUsage) authenticityCheck {
	return func(ctx context.Context, p *Protocol, secret string) (bool, error) {
		stored, err := p.Store.CrossSigningKey(ctx, p.OwnUserID, usage)
		if err != nil {
			return false, serrors.Wrap("loading cross-signing key", err, "usage", usage)
		}
		if stored == nil {
			return false, nil
		}
		k := stored.Value
		pub, ok := k.PublicKey()
		if !ok {
			return false, nil
		}
		derived, err := signatures.PublicKeyFromSeed(secret)
		if err != nil {
			return false, nil
		}
		return derived == pub.Value, nil
	}
}

// backupCheck accepts a backup key that matches the current version on the server.
func backupCheck(ctx context.Context, p *Protocol, secret string) (bool, error) {
	if p.Backup == nil {
		return false, nil
	}
	version, err := p.Backup.ServerVersion(ctx)
	if err != nil {
		return false, serrors.Wrap("fetching backup version", err)
	}
	return backup.KeyBackupCanBeTrusted(version, secret), nil
}

// dehydratedDeviceCheck accepts a key that unpickles the dehydrated device.
func dehydratedDeviceCheck(ctx context.Context, p *Protocol, secret string) (bool, error) {
	if p.Dehydrated == nil {
		return false, nil
	}
	ok, err := p.Dehydrated.CanUnpickle(ctx, secret)
	if err != nil {
		return false, serrors.Wrap("unpickling dehydrated device", err)
	}
	return ok, nil
}
