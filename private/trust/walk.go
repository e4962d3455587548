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

package trust

import (
	"context"
	"sort"

	"github.com/crosstrust/keytrust/pkg/log"
	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
	"github.com/crosstrust/keytrust/pkg/signatures"
	trustmetrics "github.com/crosstrust/keytrust/private/trust/metrics"
)

// mode selects how the signers of a key are found.
type mode int

const (
	// modeSignatures verifies the signatures attached to the key and records the valid ones
	// as key chain links.
	modeSignatures mode = iota
	// modeLinks uses the recorded key chain links.
	modeLinks
)

func (m mode) String() string {
	if m == modeLinks {
		return trustmetrics.Incremental
	}
	return trustmetrics.Full
}

// usageOrder is the order in which the cross-signing keys of a user are evaluated. Keys signed
// by the master key rely on its stored trust level.
var usageOrder = []matrix.KeyUsage{
	matrix.UsageMaster,
	matrix.UsageSelfSigning,
	matrix.UsageUserSigning,
}

type keyRef struct {
	user matrix.UserID
	key  matrix.Ed25519Key
}

type visitKey struct {
	user matrix.UserID
	key  matrix.KeyID
}

// visited guards the signature walk against cycles.
type visited map[visitKey]struct{}

// subject is a key whose trust level is computed, together with its stored record.
type subject struct {
	user   matrix.UserID
	key    matrix.Ed25519Key
	usage  matrix.KeyUsage
	device *matrix.StoredDeviceKeys
	cross  *matrix.StoredCrossSigningKey
	// malformed is set if the record has no usable ed25519 key.
	malformed string
}

func deviceSubject(user matrix.UserID, d matrix.StoredDeviceKeys) *subject {
	s := &subject{user: user, device: &d}
	key, ok := d.Value.SigningKey()
	if !ok {
		s.malformed = "device has no ed25519 key"
	}
	s.key = key
	return s
}

func crossSubject(user matrix.UserID, usage matrix.KeyUsage,
	k matrix.StoredCrossSigningKey) *subject {

	s := &subject{user: user, usage: usage, cross: &k}
	key, ok := k.Value.PublicKey()
	if !ok {
		s.malformed = "cross-signing key has no ed25519 key"
	}
	s.key = key
	return s
}

func (s *subject) isMaster() bool {
	return s.cross != nil && s.usage == matrix.UsageMaster
}

func (s *subject) ref() keyRef {
	return keyRef{user: s.user, key: s.key}
}

func (s *subject) visitKey() visitKey {
	return visitKey{user: s.user, key: s.key.ID}
}

func (s *subject) signatures() matrix.Signatures {
	if s.device != nil {
		return s.device.Value.Signatures
	}
	return s.cross.Value.Signatures
}

func (s *subject) object() any {
	if s.device != nil {
		return &s.device.Value
	}
	return &s.cross.Value
}

func (s *subject) trust() matrix.TrustLevel {
	if s.device != nil {
		return s.device.Trust
	}
	return s.cross.Trust
}

func (s *subject) keyType() string {
	if s.device != nil {
		return trustmetrics.DeviceKey
	}
	switch s.usage {
	case matrix.UsageMaster:
		return trustmetrics.MasterKey
	case matrix.UsageSelfSigning:
		return trustmetrics.SelfSigningKey
	case matrix.UsageUserSigning:
		return trustmetrics.UserSigningKey
	default:
		return trustmetrics.UnknownKeyClass
	}
}

// resolve finds the cross-signing key or device key of user with the given key id. It returns
// nil if there is none.
func (e *Engine) resolve(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID) (*subject, error) {

	if keyID.Algorithm() != matrix.AlgorithmEd25519 {
		return nil, nil
	}
	cross, err := e.Store.CrossSigningKeys(ctx, user)
	if err != nil {
		return nil, serrors.Wrap("reading cross-signing keys", err, "user", user)
	}
	for _, usage := range usageOrder {
		k, ok := cross[usage]
		if !ok {
			continue
		}
		if s := crossSubject(user, usage, k); s.malformed == "" && s.key.ID == keyID {
			return s, nil
		}
	}
	device, err := e.Store.DeviceKey(ctx, user, matrix.DeviceID(keyID.ID()))
	if err != nil {
		return nil, serrors.Wrap("reading device key", err, "user", user, "key", keyID)
	}
	if device == nil {
		return nil, nil
	}
	if s := deviceSubject(user, *device); s.malformed == "" && s.key.ID == keyID {
		return s, nil
	}
	return nil, nil
}

// level computes the trust level that is stored for s.
func (e *Engine) level(ctx context.Context, s *subject, m mode) matrix.TrustLevel {
	if s.malformed != "" {
		return matrix.Invalid(s.malformed)
	}
	level, err := e.calculate(ctx, s, m)
	if err == nil && s.isMaster() {
		level, err = e.refineMaster(ctx, s, level)
	}
	if err != nil {
		log.FromCtx(ctx).Info("Trust level could not be determined",
			"user", s.user, "key", s.key.ID, "err", err)
		level = matrix.Invalid(err.Error())
	}
	e.countCalculation(s.keyType(), m, level)
	return level
}

func (e *Engine) calculate(ctx context.Context, s *subject, m mode) (matrix.TrustLevel, error) {
	state, err := e.Store.KeyVerificationState(ctx, s.user, s.key.ID)
	if err != nil {
		return matrix.TrustLevel{}, serrors.Wrap("reading verification state", err)
	}
	master, err := e.Store.CrossSigningKey(ctx, s.user, matrix.UsageMaster)
	if err != nil {
		return matrix.TrustLevel{}, serrors.Wrap("reading master key", err)
	}
	if state.AppliesTo(s.key.Value) {
		switch state.Kind {
		case matrix.VerificationVerified:
			if s.isMaster() {
				return matrix.CrossSigned(true), nil
			}
			if master == nil {
				return matrix.Valid(true), nil
			}
		case matrix.VerificationBlocked:
			return matrix.Blocked(), nil
		}
	}
	found, err := e.search(ctx, s, visited{}, m)
	if err != nil {
		return matrix.TrustLevel{}, err
	}
	switch {
	case found != nil:
		return *found, nil
	case s.isMaster():
		return matrix.CrossSigned(false), nil
	case master == nil:
		return matrix.Valid(false), nil
	default:
		return matrix.NotCrossSigned(), nil
	}
}

// search walks the signers of s. It returns the strongest level found, or nil if no signer
// leads to a trust anchor.
func (e *Engine) search(ctx context.Context, s *subject, seen visited,
	m mode) (*matrix.TrustLevel, error) {

	seen[s.visitKey()] = struct{}{}
	signers, err := e.signers(ctx, s, m)
	if err != nil {
		return nil, err
	}
	var best *matrix.TrustLevel
	for _, signer := range signers {
		if _, ok := seen[signer.visitKey()]; ok {
			continue
		}
		level, err := e.signerLevel(ctx, s, signer, seen, m)
		if err != nil {
			return nil, err
		}
		best = stronger(best, level)
	}
	return best, nil
}

// signerLevel returns the level that signer lends to the key s it signed.
func (e *Engine) signerLevel(ctx context.Context, s, signer *subject, seen visited,
	m mode) (*matrix.TrustLevel, error) {

	state, err := e.Store.KeyVerificationState(ctx, signer.user, signer.key.ID)
	if err != nil {
		return nil, serrors.Wrap("reading verification state", err)
	}
	if state.AppliesTo(signer.key.Value) {
		switch state.Kind {
		case matrix.VerificationVerified:
			l := matrix.CrossSigned(true)
			return &l, nil
		case matrix.VerificationBlocked:
			l := matrix.Blocked()
			return &l, nil
		}
	}
	if signer.isMaster() && signer.user == s.user {
		l := matrix.CrossSigned(signer.cross.Trust.IsVerified())
		return &l, nil
	}
	return e.search(ctx, signer, seen, m)
}

// signers returns the keys that signed s. Signatures by unknown keys are ignored.
func (e *Engine) signers(ctx context.Context, s *subject, m mode) ([]*subject, error) {
	if m == modeLinks {
		return e.linkedSigners(ctx, s)
	}
	var found []*subject
	var links []matrix.KeyChainLink
	sigs := s.signatures()
	for _, ref := range sortedSignatures(sigs) {
		if ref.key.Algorithm() != matrix.AlgorithmEd25519 {
			continue
		}
		if ref.user == s.user && ref.key == s.key.ID {
			continue
		}
		signer, err := e.resolve(ctx, ref.user, ref.key)
		if err != nil {
			return nil, err
		}
		if signer == nil {
			continue
		}
		res := e.Verifier.Verify(s.object(), sigs,
			signatures.SigningKey{UserID: signer.user, Key: signer.key})
		if !res.Valid() {
			e.countVerification(trustmetrics.ErrVerify)
			log.FromCtx(ctx).Debug("Ignoring invalid signature",
				"user", s.user, "key", s.key.ID, "signing_user", signer.user,
				"signing_key", signer.key.ID, "result", res.Kind, "reason", res.Reason)
			continue
		}
		e.countVerification(trustmetrics.Success)
		links = append(links, matrix.KeyChainLink{
			SigningUserID: signer.user,
			SigningKey:    signer.key,
			SignedUserID:  s.user,
			SignedKey:     s.key,
		})
		found = append(found, signer)
	}
	if err := e.Links.Replace(ctx, s.user, s.key, links); err != nil {
		return nil, err
	}
	return found, nil
}

func (e *Engine) linkedSigners(ctx context.Context, s *subject) ([]*subject, error) {
	links, err := e.Links.Signers(ctx, s.user, s.key)
	if err != nil {
		return nil, err
	}
	sortLinks(links, func(l matrix.KeyChainLink) keyRef {
		return keyRef{user: l.SigningUserID, key: l.SigningKey}
	})
	var found []*subject
	for _, l := range links {
		signer, err := e.resolve(ctx, l.SigningUserID, l.SigningKey.ID)
		if err != nil {
			return nil, err
		}
		// The link is stale if the signer was replaced.
		if signer == nil || signer.key.Value != l.SigningKey.Value {
			continue
		}
		found = append(found, signer)
	}
	return found, nil
}

// refineMaster applies the master only levels. A recently changed master key keeps that level
// until it is verified, and a cross-signed master key is downgraded while any device of its
// user is not cross-signed.
func (e *Engine) refineMaster(ctx context.Context, s *subject,
	level matrix.TrustLevel) (matrix.TrustLevel, error) {

	prev := s.trust()
	if prev.Kind == matrix.TrustMasterKeyChangedRecently &&
		!(level.Kind == matrix.TrustCrossSigned && level.Verified) {
		return prev, nil
	}
	if level.Kind != matrix.TrustCrossSigned {
		return level, nil
	}
	return e.deviceCoverage(ctx, s.user, level.Verified)
}

func (e *Engine) deviceCoverage(ctx context.Context, user matrix.UserID,
	verified bool) (matrix.TrustLevel, error) {

	devices, err := e.Store.DeviceKeys(ctx, user)
	if err != nil {
		return matrix.TrustLevel{}, serrors.Wrap("reading device keys", err, "user", user)
	}
	for _, d := range devices {
		if d.Trust.Kind == matrix.TrustNotCrossSigned {
			return matrix.NotAllDeviceKeysCrossSigned(verified), nil
		}
	}
	return matrix.CrossSigned(verified), nil
}

// refreshCoverage re-evaluates the device coverage of the master key of user.
func (e *Engine) refreshCoverage(ctx context.Context, user matrix.UserID) error {
	master, err := e.Store.CrossSigningKey(ctx, user, matrix.UsageMaster)
	if err != nil {
		return serrors.Wrap("reading master key", err, "user", user)
	}
	if master == nil {
		return nil
	}
	switch master.Trust.Kind {
	case matrix.TrustCrossSigned, matrix.TrustNotAllDeviceKeysCrossSigned:
	default:
		return nil
	}
	level, err := e.deviceCoverage(ctx, user, master.Trust.Verified)
	if err != nil {
		return err
	}
	return e.persist(ctx, crossSubject(user, matrix.UsageMaster, *master), level)
}

func (e *Engine) persist(ctx context.Context, s *subject, level matrix.TrustLevel) error {
	if s.trust() == level {
		return nil
	}
	prev := s.trust()
	switch {
	case s.device != nil:
		s.device.Trust = level
		if err := e.Store.SetDeviceKey(ctx, *s.device); err != nil {
			return serrors.Wrap("storing device key", err, "user", s.user, "key", s.key.ID)
		}
	default:
		s.cross.Trust = level
		if err := e.Store.SetCrossSigningKey(ctx, s.usage, *s.cross); err != nil {
			return serrors.Wrap("storing cross-signing key", err,
				"user", s.user, "usage", s.usage)
		}
	}
	log.FromCtx(ctx).Debug("Trust level changed", "user", s.user, "key", s.key.ID,
		"previous", prev, "current", level)
	e.changes.Notify()
	return nil
}

// recalculateUser recomputes and stores the trust levels of all keys of user, master key first.
// It returns the keys of the user.
func (e *Engine) recalculateUser(ctx context.Context, user matrix.UserID,
	m mode) ([]keyRef, error) {

	cross, err := e.Store.CrossSigningKeys(ctx, user)
	if err != nil {
		return nil, serrors.Wrap("reading cross-signing keys", err, "user", user)
	}
	var refs []keyRef
	for _, usage := range usageOrder {
		k, ok := cross[usage]
		if !ok {
			continue
		}
		s := crossSubject(user, usage, k)
		if err := e.persist(ctx, s, e.level(ctx, s, m)); err != nil {
			return nil, err
		}
		if s.malformed == "" {
			refs = append(refs, s.ref())
		}
	}
	devices, err := e.Store.DeviceKeys(ctx, user)
	if err != nil {
		return nil, serrors.Wrap("reading device keys", err, "user", user)
	}
	ids := make([]matrix.DeviceID, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s := deviceSubject(user, devices[id])
		if err := e.persist(ctx, s, e.level(ctx, s, m)); err != nil {
			return nil, err
		}
		if s.malformed == "" {
			refs = append(refs, s.ref())
		}
	}
	if err := e.refreshCoverage(ctx, user); err != nil {
		return nil, err
	}
	return refs, nil
}

// propagate finds every key reachable from starts over key chain links and recalculates the
// users owning them from the recorded links. If withStarts is set, the owners of the start keys
// are recalculated as well.
func (e *Engine) propagate(ctx context.Context, starts []keyRef, withStarts bool) error {
	seen := make(map[keyRef]struct{}, len(starts))
	queue := make([]keyRef, 0, len(starts))
	affected := make(map[matrix.UserID]struct{})
	for _, r := range starts {
		if withStarts {
			affected[r.user] = struct{}{}
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		queue = append(queue, r)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		links, err := e.Links.SignedBy(ctx, cur.user, cur.key)
		if err != nil {
			return err
		}
		sortLinks(links, func(l matrix.KeyChainLink) keyRef {
			return keyRef{user: l.SignedUserID, key: l.SignedKey}
		})
		for _, l := range links {
			next := keyRef{user: l.SignedUserID, key: l.SignedKey}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			affected[next.user] = struct{}{}
			queue = append(queue, next)
		}
	}
	users := make([]matrix.UserID, 0, len(affected))
	for u := range affected {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	for _, u := range users {
		if _, err := e.recalculateUser(ctx, u, modeLinks); err != nil {
			return err
		}
	}
	return nil
}

// storeCrossSigningKeys writes the cross-signing keys of user with their previous trust level
// if unchanged. It returns the replaced and deleted keys.
func (e *Engine) storeCrossSigningKeys(ctx context.Context, user matrix.UserID,
	keys map[matrix.KeyUsage]*matrix.CrossSigningKey) ([]keyRef, error) {

	existing, err := e.Store.CrossSigningKeys(ctx, user)
	if err != nil {
		return nil, serrors.Wrap("reading cross-signing keys", err, "user", user)
	}
	var replaced []keyRef
	for _, usage := range usageOrder {
		k, ok := keys[usage]
		if !ok {
			continue
		}
		old, had := existing[usage]
		var oldKey matrix.Ed25519Key
		if had {
			oldKey, _ = old.Value.PublicKey()
		}
		if k == nil {
			if !had {
				continue
			}
			if err := e.Store.DeleteCrossSigningKey(ctx, user, usage); err != nil {
				return nil, serrors.Wrap("deleting cross-signing key", err,
					"user", user, "usage", usage)
			}
			if !oldKey.IsZero() {
				replaced = append(replaced, keyRef{user: user, key: oldKey})
			}
			continue
		}
		if k.UserID != user || !k.HasUsage(usage) {
			return nil, serrors.New("cross-signing key does not match",
				"user", user, "usage", usage, "key_user", k.UserID)
		}
		newKey, _ := k.PublicKey()
		trust := matrix.Invalid("not calculated")
		switch {
		case had && oldKey == newKey:
			trust = old.Trust
		case had && usage == matrix.UsageMaster:
			trust = matrix.MasterKeyChangedRecently(old.Trust.IsVerified() ||
				(old.Trust.Kind == matrix.TrustMasterKeyChangedRecently && old.Trust.Verified))
		}
		if had && oldKey != newKey && !oldKey.IsZero() {
			replaced = append(replaced, keyRef{user: user, key: oldKey})
		}
		stored := matrix.StoredCrossSigningKey{Value: *k, Trust: trust}
		if err := e.Store.SetCrossSigningKey(ctx, usage, stored); err != nil {
			return nil, serrors.Wrap("storing cross-signing key", err,
				"user", user, "usage", usage)
		}
	}
	return replaced, nil
}

// storeDeviceKeys replaces the devices of user, keeping the trust level of unchanged devices.
// It returns the replaced and removed device keys.
func (e *Engine) storeDeviceKeys(ctx context.Context, user matrix.UserID,
	devices []matrix.DeviceKeys) ([]keyRef, error) {

	existing, err := e.Store.DeviceKeys(ctx, user)
	if err != nil {
		return nil, serrors.Wrap("reading device keys", err, "user", user)
	}
	var replaced []keyRef
	present := make(map[matrix.DeviceID]struct{}, len(devices))
	stored := make([]matrix.StoredDeviceKeys, 0, len(devices))
	for _, d := range devices {
		if d.UserID != user {
			return nil, serrors.New("device key does not match",
				"user", user, "device", d.DeviceID, "key_user", d.UserID)
		}
		present[d.DeviceID] = struct{}{}
		newKey, _ := d.SigningKey()
		trust := matrix.Invalid("not calculated")
		if old, had := existing[d.DeviceID]; had {
			oldValue := old.Value
			oldKey, ok := oldValue.SigningKey()
			switch {
			case ok && oldKey == newKey:
				trust = old.Trust
			case ok:
				replaced = append(replaced, keyRef{user: user, key: oldKey})
			}
		}
		stored = append(stored, matrix.StoredDeviceKeys{Value: d, Trust: trust})
	}
	for id, old := range existing {
		if _, ok := present[id]; ok {
			continue
		}
		oldValue := old.Value
		if oldKey, ok := oldValue.SigningKey(); ok {
			replaced = append(replaced, keyRef{user: user, key: oldKey})
		}
	}
	if err := e.Store.ReplaceDeviceKeys(ctx, user, stored); err != nil {
		return nil, serrors.Wrap("storing device keys", err, "user", user)
	}
	return replaced, nil
}

// stronger returns the stronger of two search results: CrossSigned(true) over
// CrossSigned(false) over Blocked over nothing.
func stronger(a, b *matrix.TrustLevel) *matrix.TrustLevel {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func rank(l *matrix.TrustLevel) int {
	switch {
	case l == nil:
		return 0
	case l.Kind == matrix.TrustCrossSigned && l.Verified:
		return 3
	case l.Kind == matrix.TrustCrossSigned:
		return 2
	case l.Kind == matrix.TrustBlocked:
		return 1
	default:
		return 0
	}
}

type signatureRef struct {
	user matrix.UserID
	key  matrix.KeyID
}

func sortedSignatures(sigs matrix.Signatures) []signatureRef {
	var refs []signatureRef
	for user, keys := range sigs {
		for key := range keys {
			refs = append(refs, signatureRef{user: user, key: key})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].user != refs[j].user {
			return refs[i].user < refs[j].user
		}
		return refs[i].key < refs[j].key
	})
	return refs
}

func sortLinks(links []matrix.KeyChainLink, by func(matrix.KeyChainLink) keyRef) {
	sort.Slice(links, func(i, j int) bool {
		a, b := by(links[i]), by(links[j])
		if a.user != b.user {
			return a.user < b.user
		}
		return a.key.ID < b.key.ID
	})
}
