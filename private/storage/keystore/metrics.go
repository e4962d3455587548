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

package keystore

import (
	"context"
	"encoding/json"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/metrics"
	"github.com/crosstrust/keytrust/private/notify"
	dblib "github.com/crosstrust/keytrust/private/storage/db"
)

const (
	promOpGet    = "get"
	promOpSet    = "set"
	promOpDelete = "delete"
	promOpMerge  = "merge"
)

// Metrics are the metrics of the key store. Both counters carry an "operation" and a "table"
// label, ResultsTotal additionally carries a "result" label.
type Metrics struct {
	QueriesTotal metrics.Counter
	ResultsTotal metrics.Counter
}

func (m *Metrics) Observe(ctx context.Context, op, table string,
	action func(context.Context) error) {

	if m == nil {
		_ = action(ctx)
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.QueriesTotal, "operation", op, "table", table))
	err := action(ctx)
	metrics.CounterInc(metrics.CounterWith(m.ResultsTotal,
		"operation", op, "table", table, "result", dblib.ErrToMetricLabel(err)))
}

func observe[T any](ctx context.Context, m *Metrics, op, table string,
	f func(context.Context) (T, error)) (T, error) {

	var ret T
	var err error
	m.Observe(ctx, op, table, func(ctx context.Context) error {
		ret, err = f(ctx)
		return err
	})
	return ret, err
}

func observeErr(ctx context.Context, m *Metrics, op, table string,
	f func(context.Context) error) error {

	var err error
	m.Observe(ctx, op, table, func(ctx context.Context) error {
		err = f(ctx)
		return err
	})
	return err
}

var _ DB = (*Database)(nil)

// Database wraps a backend and reports metrics for every query.
type Database struct {
	Backend DB
	Metrics *Metrics
}

func (db *Database) Close() error {
	return db.Backend.Close()
}

func (db *Database) DeviceKeys(ctx context.Context,
	user matrix.UserID) (map[matrix.DeviceID]matrix.StoredDeviceKeys, error) {

	return observe(ctx, db.Metrics, promOpGet, "device_keys",
		func(ctx context.Context) (map[matrix.DeviceID]matrix.StoredDeviceKeys, error) {
			return db.Backend.DeviceKeys(ctx, user)
		})
}

func (db *Database) DeviceKey(ctx context.Context, user matrix.UserID,
	device matrix.DeviceID) (*matrix.StoredDeviceKeys, error) {

	return observe(ctx, db.Metrics, promOpGet, "device_keys",
		func(ctx context.Context) (*matrix.StoredDeviceKeys, error) {
			return db.Backend.DeviceKey(ctx, user, device)
		})
}

func (db *Database) ReplaceDeviceKeys(ctx context.Context, user matrix.UserID,
	devices []matrix.StoredDeviceKeys) error {

	return observeErr(ctx, db.Metrics, promOpSet, "device_keys",
		func(ctx context.Context) error {
			return db.Backend.ReplaceDeviceKeys(ctx, user, devices)
		})
}

func (db *Database) SetDeviceKey(ctx context.Context, device matrix.StoredDeviceKeys) error {
	return observeErr(ctx, db.Metrics, promOpSet, "device_keys",
		func(ctx context.Context) error {
			return db.Backend.SetDeviceKey(ctx, device)
		})
}

func (db *Database) CrossSigningKeys(ctx context.Context,
	user matrix.UserID) (map[matrix.KeyUsage]matrix.StoredCrossSigningKey, error) {

	return observe(ctx, db.Metrics, promOpGet, "cross_signing_keys",
		func(ctx context.Context) (map[matrix.KeyUsage]matrix.StoredCrossSigningKey, error) {
			return db.Backend.CrossSigningKeys(ctx, user)
		})
}

func (db *Database) CrossSigningKey(ctx context.Context, user matrix.UserID,
	usage matrix.KeyUsage) (*matrix.StoredCrossSigningKey, error) {

	return observe(ctx, db.Metrics, promOpGet, "cross_signing_keys",
		func(ctx context.Context) (*matrix.StoredCrossSigningKey, error) {
			return db.Backend.CrossSigningKey(ctx, user, usage)
		})
}

func (db *Database) SetCrossSigningKey(ctx context.Context, usage matrix.KeyUsage,
	key matrix.StoredCrossSigningKey) error {

	return observeErr(ctx, db.Metrics, promOpSet, "cross_signing_keys",
		func(ctx context.Context) error {
			return db.Backend.SetCrossSigningKey(ctx, usage, key)
		})
}

func (db *Database) DeleteCrossSigningKey(ctx context.Context, user matrix.UserID,
	usage matrix.KeyUsage) error {

	return observeErr(ctx, db.Metrics, promOpDelete, "cross_signing_keys",
		func(ctx context.Context) error {
			return db.Backend.DeleteCrossSigningKey(ctx, user, usage)
		})
}

func (db *Database) OutdatedUsers(ctx context.Context) ([]matrix.UserID, error) {
	return observe(ctx, db.Metrics, promOpGet, "outdated_users", db.Backend.OutdatedUsers)
}

func (db *Database) AddOutdatedUsers(ctx context.Context, users ...matrix.UserID) error {
	return observeErr(ctx, db.Metrics, promOpSet, "outdated_users",
		func(ctx context.Context) error {
			return db.Backend.AddOutdatedUsers(ctx, users...)
		})
}

func (db *Database) RemoveOutdatedUsers(ctx context.Context, users ...matrix.UserID) error {
	return observeErr(ctx, db.Metrics, promOpDelete, "outdated_users",
		func(ctx context.Context) error {
			return db.Backend.RemoveOutdatedUsers(ctx, users...)
		})
}

func (db *Database) SubscribeOutdatedUsers() *notify.Subscription {
	return db.Backend.SubscribeOutdatedUsers()
}

func (db *Database) KeyVerificationState(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID) (*matrix.KeyVerificationState, error) {

	return observe(ctx, db.Metrics, promOpGet, "key_verification_states",
		func(ctx context.Context) (*matrix.KeyVerificationState, error) {
			return db.Backend.KeyVerificationState(ctx, user, keyID)
		})
}

func (db *Database) SetKeyVerificationState(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID, state matrix.KeyVerificationState) error {

	return observeErr(ctx, db.Metrics, promOpSet, "key_verification_states",
		func(ctx context.Context) error {
			return db.Backend.SetKeyVerificationState(ctx, user, keyID, state)
		})
}

func (db *Database) DeleteKeyVerificationState(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID) error {

	return observeErr(ctx, db.Metrics, promOpDelete, "key_verification_states",
		func(ctx context.Context) error {
			return db.Backend.DeleteKeyVerificationState(ctx, user, keyID)
		})
}

func (db *Database) ReplaceKeyChainLinks(ctx context.Context, signedUser matrix.UserID,
	signedKey string, links []matrix.KeyChainLink) ([]matrix.KeyChainLink, error) {

	return observe(ctx, db.Metrics, promOpSet, "key_chain_links",
		func(ctx context.Context) ([]matrix.KeyChainLink, error) {
			return db.Backend.ReplaceKeyChainLinks(ctx, signedUser, signedKey, links)
		})
}

func (db *Database) KeyChainLinksBySigner(ctx context.Context, signingUser matrix.UserID,
	signingKey string) ([]matrix.KeyChainLink, error) {

	return observe(ctx, db.Metrics, promOpGet, "key_chain_links",
		func(ctx context.Context) ([]matrix.KeyChainLink, error) {
			return db.Backend.KeyChainLinksBySigner(ctx, signingUser, signingKey)
		})
}

func (db *Database) KeyChainLinksBySigned(ctx context.Context, signedUser matrix.UserID,
	signedKey string) ([]matrix.KeyChainLink, error) {

	return observe(ctx, db.Metrics, promOpGet, "key_chain_links",
		func(ctx context.Context) ([]matrix.KeyChainLink, error) {
			return db.Backend.KeyChainLinksBySigned(ctx, signedUser, signedKey)
		})
}

func (db *Database) DeleteOrphanedKeyChainLinks(ctx context.Context) (int, error) {
	return observe(ctx, db.Metrics, promOpDelete, "key_chain_links",
		db.Backend.DeleteOrphanedKeyChainLinks)
}

func (db *Database) Secrets(
	ctx context.Context) (map[matrix.SecretType]matrix.StoredSecret, error) {

	return observe(ctx, db.Metrics, promOpGet, "secrets", db.Backend.Secrets)
}

func (db *Database) Secret(ctx context.Context,
	typ matrix.SecretType) (*matrix.StoredSecret, error) {

	return observe(ctx, db.Metrics, promOpGet, "secrets",
		func(ctx context.Context) (*matrix.StoredSecret, error) {
			return db.Backend.Secret(ctx, typ)
		})
}

func (db *Database) SetSecret(ctx context.Context, typ matrix.SecretType,
	secret matrix.StoredSecret) error {

	return observeErr(ctx, db.Metrics, promOpSet, "secrets",
		func(ctx context.Context) error {
			return db.Backend.SetSecret(ctx, typ, secret)
		})
}

func (db *Database) DeleteSecret(ctx context.Context, typ matrix.SecretType) error {
	return observeErr(ctx, db.Metrics, promOpDelete, "secrets",
		func(ctx context.Context) error {
			return db.Backend.DeleteSecret(ctx, typ)
		})
}

func (db *Database) SubscribeSecrets() *notify.Subscription {
	return db.Backend.SubscribeSecrets()
}

func (db *Database) GlobalAccountData(ctx context.Context,
	eventType string) (json.RawMessage, error) {

	return observe(ctx, db.Metrics, promOpGet, "global_account_data",
		func(ctx context.Context) (json.RawMessage, error) {
			return db.Backend.GlobalAccountData(ctx, eventType)
		})
}

func (db *Database) SetGlobalAccountData(ctx context.Context, eventType string,
	content json.RawMessage) error {

	return observeErr(ctx, db.Metrics, promOpSet, "global_account_data",
		func(ctx context.Context) error {
			return db.Backend.SetGlobalAccountData(ctx, eventType, content)
		})
}

func (db *Database) SecretKeyRequests(
	ctx context.Context) ([]matrix.StoredSecretKeyRequest, error) {

	return observe(ctx, db.Metrics, promOpGet, "secret_key_requests",
		db.Backend.SecretKeyRequests)
}

func (db *Database) SecretKeyRequest(ctx context.Context,
	requestID string) (*matrix.StoredSecretKeyRequest, error) {

	return observe(ctx, db.Metrics, promOpGet, "secret_key_requests",
		func(ctx context.Context) (*matrix.StoredSecretKeyRequest, error) {
			return db.Backend.SecretKeyRequest(ctx, requestID)
		})
}

func (db *Database) AddSecretKeyRequest(ctx context.Context,
	req matrix.StoredSecretKeyRequest) error {

	return observeErr(ctx, db.Metrics, promOpSet, "secret_key_requests",
		func(ctx context.Context) error {
			return db.Backend.AddSecretKeyRequest(ctx, req)
		})
}

func (db *Database) DeleteSecretKeyRequest(ctx context.Context, requestID string) error {
	return observeErr(ctx, db.Metrics, promOpDelete, "secret_key_requests",
		func(ctx context.Context) error {
			return db.Backend.DeleteSecretKeyRequest(ctx, requestID)
		})
}

func (db *Database) RoomKeyRequests(ctx context.Context) ([]matrix.StoredRoomKeyRequest, error) {
	return observe(ctx, db.Metrics, promOpGet, "room_key_requests", db.Backend.RoomKeyRequests)
}

func (db *Database) RoomKeyRequest(ctx context.Context,
	requestID string) (*matrix.StoredRoomKeyRequest, error) {

	return observe(ctx, db.Metrics, promOpGet, "room_key_requests",
		func(ctx context.Context) (*matrix.StoredRoomKeyRequest, error) {
			return db.Backend.RoomKeyRequest(ctx, requestID)
		})
}

func (db *Database) AddRoomKeyRequest(ctx context.Context, req matrix.StoredRoomKeyRequest) error {
	return observeErr(ctx, db.Metrics, promOpSet, "room_key_requests",
		func(ctx context.Context) error {
			return db.Backend.AddRoomKeyRequest(ctx, req)
		})
}

func (db *Database) DeleteRoomKeyRequest(ctx context.Context, requestID string) error {
	return observeErr(ctx, db.Metrics, promOpDelete, "room_key_requests",
		func(ctx context.Context) error {
			return db.Backend.DeleteRoomKeyRequest(ctx, requestID)
		})
}

func (db *Database) SubscribeRoomKeyRequests() *notify.Subscription {
	return db.Backend.SubscribeRoomKeyRequests()
}

func (db *Database) InboundMegolmSession(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) (*matrix.StoredInboundMegolmSession, error) {

	return observe(ctx, db.Metrics, promOpGet, "inbound_megolm_sessions",
		func(ctx context.Context) (*matrix.StoredInboundMegolmSession, error) {
			return db.Backend.InboundMegolmSession(ctx, room, session)
		})
}

func (db *Database) MergeInboundMegolmSession(ctx context.Context,
	session matrix.StoredInboundMegolmSession) (bool, error) {

	return observe(ctx, db.Metrics, promOpMerge, "inbound_megolm_sessions",
		func(ctx context.Context) (bool, error) {
			return db.Backend.MergeInboundMegolmSession(ctx, session)
		})
}

func (db *Database) NotBackedUpInboundMegolmSessions(ctx context.Context,
	limit int) ([]matrix.StoredInboundMegolmSession, error) {

	return observe(ctx, db.Metrics, promOpGet, "inbound_megolm_sessions",
		func(ctx context.Context) ([]matrix.StoredInboundMegolmSession, error) {
			return db.Backend.NotBackedUpInboundMegolmSessions(ctx, limit)
		})
}

func (db *Database) MarkInboundMegolmSessionsBackedUp(ctx context.Context,
	sessions []matrix.StoredInboundMegolmSession) error {

	return observeErr(ctx, db.Metrics, promOpSet, "inbound_megolm_sessions",
		func(ctx context.Context) error {
			return db.Backend.MarkInboundMegolmSessionsBackedUp(ctx, sessions)
		})
}

func (db *Database) ResetInboundMegolmSessionsBackedUp(ctx context.Context) error {
	return observeErr(ctx, db.Metrics, promOpSet, "inbound_megolm_sessions",
		db.Backend.ResetInboundMegolmSessionsBackedUp)
}

func (db *Database) SubscribeNotBackedUp() *notify.Subscription {
	return db.Backend.SubscribeNotBackedUp()
}
