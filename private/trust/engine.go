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

// Package trust computes the trust levels of device keys and cross-signing keys.
//
// A key is trusted if it is verified out of band, or if a chain of valid signatures leads from
// it to a verified key. Every signature found valid during the search is recorded as a key chain
// link. When the verification state of a key changes, the links are walked outward from that key
// to find and recompute the keys whose trust depends on it, without verifying signatures again.
package trust

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/signatures"
	"github.com/crosstrust/keytrust/private/matrixapi"
	"github.com/crosstrust/keytrust/private/notify"
	"github.com/crosstrust/keytrust/private/olm"
	"github.com/crosstrust/keytrust/private/storage/keystore"
	trustmetrics "github.com/crosstrust/keytrust/private/trust/metrics"
)

var (
	// ErrUploadSignatures indicates that the server rejected the upload of at least one
	// signature.
	ErrUploadSignatures = serrors.New("uploading signatures failed")
	// ErrUnknownKey indicates that the key is neither a known device key nor a known
	// cross-signing key.
	ErrUnknownKey = serrors.New("unknown key")
)

// Store is the part of the key store the engine reads and writes.
type Store interface {
	keystore.KeyStore
	keystore.VerificationStore
}

// LinkCache stores key chain links.
type LinkCache interface {
	// Replace replaces all links pointing to the signed key.
	Replace(ctx context.Context, signedUser matrix.UserID, signedKey matrix.Ed25519Key,
		links []matrix.KeyChainLink) error
	// SignedBy returns the links whose signer is the given key.
	SignedBy(ctx context.Context, signingUser matrix.UserID,
		signingKey matrix.Ed25519Key) ([]matrix.KeyChainLink, error)
	// Signers returns the links pointing to the signed key.
	Signers(ctx context.Context, signedUser matrix.UserID,
		signedKey matrix.Ed25519Key) ([]matrix.KeyChainLink, error)
}

// SecretStore provides the private cross-signing keys used for signing.
type SecretStore interface {
	Secret(ctx context.Context, typ matrix.SecretType) (*matrix.StoredSecret, error)
}

// Engine computes and persists trust levels. Operations that change stored trust levels are
// serialized.
type Engine struct {
	OwnUserID    matrix.UserID
	OwnDeviceID  matrix.DeviceID
	Store        Store
	Links        LinkCache
	Secrets      SecretStore
	Verifier     signatures.Verifier
	DeviceSigner olm.DeviceSigner
	KeysAPI      matrixapi.KeysAPI
	Metrics      trustmetrics.Metrics

	mu      sync.Mutex
	changes notify.Broadcaster
}

// SubscribeTrustLevels returns a subscription that is signalled whenever a stored trust level
// changes.
func (e *Engine) SubscribeTrustLevels() *notify.Subscription {
	return e.changes.Subscribe()
}

// CalculateTrustLevel computes the trust level of the key of user identified by keyID from the
// current signatures and verification states. The key chain links of every key visited are
// refreshed, the trust level itself is not persisted.
func (e *Engine) CalculateTrustLevel(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID) (matrix.TrustLevel, error) {

	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.resolve(ctx, user, keyID)
	if err != nil {
		return matrix.TrustLevel{}, err
	}
	if s == nil {
		return matrix.TrustLevel{}, serrors.JoinNoStack(ErrUnknownKey, nil,
			"user", user, "key", keyID)
	}
	return e.level(ctx, s, modeSignatures), nil
}

// UpdateCrossSigningKeys stores the cross-signing keys of user and recalculates the trust
// levels of all keys that depend on them. A nil entry deletes the key with that usage, usages
// not present in keys are left untouched. A master key that replaces a different master key is
// marked as changed recently until it is verified.
func (e *Engine) UpdateCrossSigningKeys(ctx context.Context, user matrix.UserID,
	keys map[matrix.KeyUsage]*matrix.CrossSigningKey) error {

	return e.UpdateUserKeys(ctx, user, keys, nil)
}

// UpdateDeviceKeys replaces the device keys of user and recalculates the trust levels of all
// keys that depend on them.
func (e *Engine) UpdateDeviceKeys(ctx context.Context, user matrix.UserID,
	devices []matrix.DeviceKeys) error {

	return e.UpdateUserKeys(ctx, user, nil, devices)
}

// UpdateUserKeys combines UpdateCrossSigningKeys and UpdateDeviceKeys. Cross-signing keys are
// stored first. If devices is nil, the stored devices are kept.
func (e *Engine) UpdateUserKeys(ctx context.Context, user matrix.UserID,
	keys map[matrix.KeyUsage]*matrix.CrossSigningKey, devices []matrix.DeviceKeys) error {

	e.mu.Lock()
	defer e.mu.Unlock()

	var sources []keyRef
	if len(keys) > 0 {
		changed, err := e.storeCrossSigningKeys(ctx, user, keys)
		if err != nil {
			return err
		}
		sources = append(sources, changed...)
	}
	if devices != nil {
		changed, err := e.storeDeviceKeys(ctx, user, devices)
		if err != nil {
			return err
		}
		sources = append(sources, changed...)
	}
	current, err := e.recalculateUser(ctx, user, modeSignatures)
	if err != nil {
		return err
	}
	return e.propagate(ctx, append(sources, current...), false)
}

// UpdateTrustLevelOfKeyChainSignedBy recalculates the trust levels of the keys of the signing
// user and of all keys that are reachable from the given signing key over key chain links.
// Signatures are not verified again.
func (e *Engine) UpdateTrustLevelOfKeyChainSignedBy(ctx context.Context,
	signingUser matrix.UserID, signingKey matrix.Ed25519Key) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.propagate(ctx, []keyRef{{user: signingUser, key: signingKey}}, true)
}

// VerifyKey marks the key as verified and updates the trust levels depending on it.
func (e *Engine) VerifyKey(ctx context.Context, user matrix.UserID, keyID matrix.KeyID) error {
	return e.markKey(ctx, user, keyID, matrix.VerificationVerified)
}

// BlockKey marks the key as blocked and updates the trust levels depending on it.
func (e *Engine) BlockKey(ctx context.Context, user matrix.UserID, keyID matrix.KeyID) error {
	return e.markKey(ctx, user, keyID, matrix.VerificationBlocked)
}

func (e *Engine) markKey(ctx context.Context, user matrix.UserID, keyID matrix.KeyID,
	kind matrix.VerificationKind) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.resolve(ctx, user, keyID)
	if err != nil {
		return err
	}
	if s == nil {
		return serrors.JoinNoStack(ErrUnknownKey, nil, "user", user, "key", keyID)
	}
	return e.setVerificationState(ctx, s, kind)
}

// TrustAndSignKeys marks the given keys of user as verified and signs them where the own
// account is able to: own devices with the self-signing key, the own master key with the own
// device key and the master keys of other users with the user-signing key. All signatures are
// uploaded in one batch. Keys that are not known are skipped.
func (e *Engine) TrustAndSignKeys(ctx context.Context, user matrix.UserID,
	keys []matrix.Ed25519Key) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	logger := log.FromCtx(ctx)

	upload := matrixapi.SignatureUpload{}
	for _, key := range keys {
		s, err := e.resolve(ctx, user, key.ID)
		if err != nil {
			return err
		}
		if s == nil || s.key.Value != key.Value {
			logger.Info("Skipping unknown key", "user", user, "key", key.ID)
			continue
		}
		if err := e.setVerificationState(ctx, s, matrix.VerificationVerified); err != nil {
			return err
		}
		id, signed, err := e.sign(ctx, s)
		if err != nil {
			logger.Info("Not signing key", "user", user, "key", key.ID, "err", err)
			e.countCreated(s.keyType(), trustmetrics.ErrKey)
			continue
		}
		if signed == nil {
			continue
		}
		e.countCreated(s.keyType(), trustmetrics.Success)
		if upload[user] == nil {
			upload[user] = make(map[string]json.RawMessage)
		}
		upload[user][id] = signed
	}
	if len(upload) == 0 {
		return nil
	}
	resp, err := e.KeysAPI.UploadSignatures(ctx, upload)
	if err != nil {
		e.countUpload(trustmetrics.ErrTransmit)
		return serrors.JoinNoStack(ErrUploadSignatures, err)
	}
	if resp != nil && len(resp.Failures) > 0 {
		e.countUpload(trustmetrics.ErrNotAllowed)
		return serrors.JoinNoStack(ErrUploadSignatures, nil, "failures", resp.Failures)
	}
	e.countUpload(trustmetrics.Success)
	return nil
}

// setVerificationState records the state for the current value of the key and recalculates the
// trust levels of the owner and of everything reachable from the owner's keys.
func (e *Engine) setVerificationState(ctx context.Context, s *subject,
	kind matrix.VerificationKind) error {

	state := matrix.KeyVerificationState{Kind: kind, KeyValue: s.key.Value}
	if err := e.Store.SetKeyVerificationState(ctx, s.user, s.key.ID, state); err != nil {
		return serrors.Wrap("storing verification state", err, "user", s.user, "key", s.key.ID)
	}
	current, err := e.recalculateUser(ctx, s.user, modeSignatures)
	if err != nil {
		return err
	}
	return e.propagate(ctx, current, false)
}

// sign returns the object to upload for the key, or nil if the own account does not sign it.
func (e *Engine) sign(ctx context.Context, s *subject) (string, json.RawMessage, error) {
	switch {
	case s.user == e.OwnUserID && s.device != nil:
		signer, err := e.crossSigner(ctx, matrix.SecretCrossSigningSelfSigning,
			matrix.UsageSelfSigning)
		if err != nil {
			return "", nil, err
		}
		v := s.device.Value
		v.Unsigned = nil
		keyID, sig, err := signer.Sign(&v)
		if err != nil {
			return "", nil, err
		}
		v.Signatures = matrix.Signatures{}.Add(e.OwnUserID, keyID, sig)
		raw, err := json.Marshal(v)
		return string(v.DeviceID), raw, err
	case s.user == e.OwnUserID && s.isMaster():
		if e.DeviceSigner == nil {
			return "", nil, serrors.New("no device signer")
		}
		v := s.cross.Value
		keyID, sig, err := e.DeviceSigner.Sign(&v)
		if err != nil {
			return "", nil, err
		}
		v.Signatures = matrix.Signatures{}.Add(e.OwnUserID, keyID, sig)
		raw, err := json.Marshal(v)
		return s.key.Value, raw, err
	case s.user != e.OwnUserID && s.isMaster():
		signer, err := e.crossSigner(ctx, matrix.SecretCrossSigningUserSigning,
			matrix.UsageUserSigning)
		if err != nil {
			return "", nil, err
		}
		v := s.cross.Value
		keyID, sig, err := signer.Sign(&v)
		if err != nil {
			return "", nil, err
		}
		v.Signatures = matrix.Signatures{}.Add(e.OwnUserID, keyID, sig)
		raw, err := json.Marshal(v)
		return s.key.Value, raw, err
	default:
		return "", nil, nil
	}
}

// crossSigner loads the private part of an own cross-signing key and checks that it belongs to
// the stored public key.
func (e *Engine) crossSigner(ctx context.Context, typ matrix.SecretType,
	usage matrix.KeyUsage) (*signatures.SeedSigner, error) {

	if e.Secrets == nil {
		return nil, serrors.New("no secret store")
	}
	secret, err := e.Secrets.Secret(ctx, typ)
	if err != nil {
		return nil, serrors.Wrap("reading secret", err, "type", typ)
	}
	if secret == nil {
		return nil, serrors.New("secret not available", "type", typ)
	}
	signer, err := signatures.NewSeedSigner(e.OwnUserID, secret.DecryptedPrivateKey)
	if err != nil {
		return nil, err
	}
	stored, err := e.Store.CrossSigningKey(ctx, e.OwnUserID, usage)
	if err != nil {
		return nil, serrors.Wrap("reading cross-signing key", err, "usage", usage)
	}
	if stored == nil {
		return nil, serrors.New("cross-signing key not known", "usage", usage)
	}
	pub, ok := stored.Value.PublicKey()
	if !ok || pub.Value != signer.Key.Value {
		return nil, serrors.New("secret does not match public key", "usage", usage)
	}
	return signer, nil
}

func (e *Engine) countCreated(keyType, result string) {
	if e.Metrics.CreatedSignatures != nil {
		metrics.CounterInc(e.Metrics.CreatedSignatures(keyType, result))
	}
}

func (e *Engine) countUpload(result string) {
	if e.Metrics.SignatureUploads != nil {
		metrics.CounterInc(e.Metrics.SignatureUploads(result))
	}
}

func (e *Engine) countVerification(result string) {
	if e.Metrics.VerifiedSignatures != nil {
		metrics.CounterInc(e.Metrics.VerifiedSignatures(result))
	}
}

func (e *Engine) countCalculation(keyType string, m mode, level matrix.TrustLevel) {
	if e.Metrics.Calculations != nil {
		metrics.CounterInc(e.Metrics.Calculations(keyType, m.String(), string(level.Kind)))
	}
}
