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

// Package sqlite implements the key store on top of SQLite. Records are stored as JSON documents
// next to the columns needed for lookups.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/private/notify"
	"github.com/crosstrust/keytrust/private/storage/db"
	"github.com/crosstrust/keytrust/private/storage/keystore"
)

var _ keystore.DB = (*Backend)(nil)

// Backend is a SQLite backed key store.
type Backend struct {
	db *db.Sqlite

	outdated        notify.Broadcaster
	secrets         notify.Broadcaster
	roomKeyRequests notify.Broadcaster
	notBackedUp     notify.Broadcaster
}

// New returns a new SQLite backend opening a database at the given path. If no database exists a
// new database is created. If the schema version of the stored database is different from the
// one in schema.go, an error is returned.
func New(path string, cfg *db.SqliteConfig) (*Backend, error) {
	sqlite, err := db.NewSqlite(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Setup(Schema, SchemaVersion); err != nil {
		sqlite.Close()
		return nil, err
	}
	return &Backend{db: sqlite}, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

// Checkpoint flushes the write-ahead log into the database file.
func (b *Backend) Checkpoint(ctx context.Context) (db.CheckpointStats, error) {
	return b.db.Checkpoint(ctx)
}

func (b *Backend) DeviceKeys(ctx context.Context,
	user matrix.UserID) (map[matrix.DeviceID]matrix.StoredDeviceKeys, error) {

	query := `SELECT data FROM device_keys WHERE user_id = ?`
	devices, err := queryJSON[matrix.StoredDeviceKeys](ctx, b.db.ReadOnly, query, user)
	if err != nil {
		return nil, err
	}
	ret := make(map[matrix.DeviceID]matrix.StoredDeviceKeys, len(devices))
	for _, d := range devices {
		ret[d.Value.DeviceID] = d
	}
	return ret, nil
}

func (b *Backend) DeviceKey(ctx context.Context, user matrix.UserID,
	device matrix.DeviceID) (*matrix.StoredDeviceKeys, error) {

	query := `SELECT data FROM device_keys WHERE user_id = ? AND device_id = ?`
	return getJSON[matrix.StoredDeviceKeys](ctx, b.db.ReadOnly, query, user, device)
}

func (b *Backend) ReplaceDeviceKeys(ctx context.Context, user matrix.UserID,
	devices []matrix.StoredDeviceKeys) error {

	for _, d := range devices {
		if d.Value.UserID != user {
			return db.NewInputDataError("device of other user", nil,
				"user", user, "device_user", d.Value.UserID, "device", d.Value.DeviceID)
		}
	}
	return b.db.DoInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM device_keys WHERE user_id = ?`, user); err != nil {

			return db.NewWriteError("deleting device keys", err, "user", user)
		}
		for _, d := range devices {
			if err := insertDeviceKey(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) SetDeviceKey(ctx context.Context, device matrix.StoredDeviceKeys) error {
	return insertDeviceKey(ctx, b.db.Full, device)
}

func insertDeviceKey(ctx context.Context, x db.Sqler, d matrix.StoredDeviceKeys) error {
	raw, err := encode(d)
	if err != nil {
		return err
	}
	signingKey, _ := d.Value.SigningKey()
	query := `INSERT OR REPLACE INTO device_keys (user_id, device_id, ed25519_key, data)
		VALUES (?, ?, ?, ?)`
	_, err = x.ExecContext(ctx, query, d.Value.UserID, d.Value.DeviceID, signingKey.Value, raw)
	if err != nil {
		return db.NewWriteError("inserting device key", err,
			"user", d.Value.UserID, "device", d.Value.DeviceID)
	}
	return nil
}

func (b *Backend) CrossSigningKeys(ctx context.Context,
	user matrix.UserID) (map[matrix.KeyUsage]matrix.StoredCrossSigningKey, error) {

	rows, err := b.db.ReadOnly.QueryContext(ctx,
		`SELECT usage, data FROM cross_signing_keys WHERE user_id = ?`, user)
	if err != nil {
		return nil, db.NewReadError("querying cross-signing keys", err, "user", user)
	}
	defer rows.Close()
	ret := make(map[matrix.KeyUsage]matrix.StoredCrossSigningKey)
	for rows.Next() {
		var usage, raw string
		if err := rows.Scan(&usage, &raw); err != nil {
			return nil, db.NewReadError("scanning cross-signing key", err)
		}
		var key matrix.StoredCrossSigningKey
		if err := decode(raw, &key); err != nil {
			return nil, err
		}
		ret[matrix.KeyUsage(usage)] = key
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating cross-signing keys", err)
	}
	return ret, nil
}

func (b *Backend) CrossSigningKey(ctx context.Context, user matrix.UserID,
	usage matrix.KeyUsage) (*matrix.StoredCrossSigningKey, error) {

	query := `SELECT data FROM cross_signing_keys WHERE user_id = ? AND usage = ?`
	return getJSON[matrix.StoredCrossSigningKey](ctx, b.db.ReadOnly, query, user, usage)
}

func (b *Backend) SetCrossSigningKey(ctx context.Context, usage matrix.KeyUsage,
	key matrix.StoredCrossSigningKey) error {

	raw, err := encode(key)
	if err != nil {
		return err
	}
	pub, _ := key.Value.PublicKey()
	query := `INSERT OR REPLACE INTO cross_signing_keys (user_id, usage, ed25519_key, data)
		VALUES (?, ?, ?, ?)`
	if _, err := b.db.Full.ExecContext(ctx, query,
		key.Value.UserID, usage, pub.Value, raw); err != nil {

		return db.NewWriteError("inserting cross-signing key", err,
			"user", key.Value.UserID, "usage", usage)
	}
	return nil
}

func (b *Backend) DeleteCrossSigningKey(ctx context.Context, user matrix.UserID,
	usage matrix.KeyUsage) error {

	query := `DELETE FROM cross_signing_keys WHERE user_id = ? AND usage = ?`
	if _, err := b.db.Full.ExecContext(ctx, query, user, usage); err != nil {
		return db.NewWriteError("deleting cross-signing key", err, "user", user, "usage", usage)
	}
	return nil
}

func (b *Backend) OutdatedUsers(ctx context.Context) ([]matrix.UserID, error) {
	rows, err := b.db.ReadOnly.QueryContext(ctx,
		`SELECT user_id FROM outdated_users ORDER BY user_id`)
	if err != nil {
		return nil, db.NewReadError("querying outdated users", err)
	}
	defer rows.Close()
	var ret []matrix.UserID
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, db.NewReadError("scanning outdated user", err)
		}
		ret = append(ret, matrix.UserID(u))
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating outdated users", err)
	}
	return ret, nil
}

func (b *Backend) AddOutdatedUsers(ctx context.Context, users ...matrix.UserID) error {
	if len(users) == 0 {
		return nil
	}
	err := b.db.DoInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, u := range users {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO outdated_users (user_id) VALUES (?)`, u); err != nil {

				return db.NewWriteError("inserting outdated user", err, "user", u)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.outdated.Notify()
	return nil
}

func (b *Backend) RemoveOutdatedUsers(ctx context.Context, users ...matrix.UserID) error {
	if len(users) == 0 {
		return nil
	}
	return b.db.DoInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, u := range users {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM outdated_users WHERE user_id = ?`, u); err != nil {

				return db.NewWriteError("deleting outdated user", err, "user", u)
			}
		}
		return nil
	})
}

func (b *Backend) SubscribeOutdatedUsers() *notify.Subscription {
	return b.outdated.Subscribe()
}

func (b *Backend) KeyVerificationState(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID) (*matrix.KeyVerificationState, error) {

	query := `SELECT data FROM key_verification_states WHERE user_id = ? AND key_id = ?`
	return getJSON[matrix.KeyVerificationState](ctx, b.db.ReadOnly, query, user, keyID)
}

func (b *Backend) SetKeyVerificationState(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID, state matrix.KeyVerificationState) error {

	raw, err := encode(state)
	if err != nil {
		return err
	}
	query := `INSERT OR REPLACE INTO key_verification_states (user_id, key_id, data)
		VALUES (?, ?, ?)`
	if _, err := b.db.Full.ExecContext(ctx, query, user, keyID, raw); err != nil {
		return db.NewWriteError("inserting verification state", err, "user", user, "key", keyID)
	}
	return nil
}

func (b *Backend) DeleteKeyVerificationState(ctx context.Context, user matrix.UserID,
	keyID matrix.KeyID) error {

	query := `DELETE FROM key_verification_states WHERE user_id = ? AND key_id = ?`
	if _, err := b.db.Full.ExecContext(ctx, query, user, keyID); err != nil {
		return db.NewWriteError("deleting verification state", err, "user", user, "key", keyID)
	}
	return nil
}

func (b *Backend) ReplaceKeyChainLinks(ctx context.Context, signedUser matrix.UserID,
	signedKey string, links []matrix.KeyChainLink) ([]matrix.KeyChainLink, error) {

	for _, l := range links {
		if l.SignedUserID != signedUser || l.SignedKey.Value != signedKey {
			return nil, db.NewInputDataError("link for other key", nil,
				"signed_user", signedUser, "link_signed_user", l.SignedUserID)
		}
	}
	var removed []matrix.KeyChainLink
	err := b.db.DoInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		query := `SELECT data FROM key_chain_links WHERE signed_user_id = ? AND signed_key = ?`
		removed, err = queryJSON[matrix.KeyChainLink](ctx, tx, query, signedUser, signedKey)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM key_chain_links WHERE signed_user_id = ? AND signed_key = ?`,
			signedUser, signedKey); err != nil {

			return db.NewWriteError("deleting key chain links", err, "signed_user", signedUser)
		}
		insert := `INSERT OR REPLACE INTO key_chain_links
			(signing_user_id, signing_key, signed_user_id, signed_key, data)
			VALUES (?, ?, ?, ?, ?)`
		for _, l := range links {
			raw, err := encode(l)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, insert, l.SigningUserID, l.SigningKey.Value,
				l.SignedUserID, l.SignedKey.Value, raw); err != nil {

				return db.NewWriteError("inserting key chain link", err,
					"signing_user", l.SigningUserID, "signed_user", l.SignedUserID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (b *Backend) KeyChainLinksBySigner(ctx context.Context, signingUser matrix.UserID,
	signingKey string) ([]matrix.KeyChainLink, error) {

	query := `SELECT data FROM key_chain_links WHERE signing_user_id = ? AND signing_key = ?
		ORDER BY signed_user_id, signed_key`
	return queryJSON[matrix.KeyChainLink](ctx, b.db.ReadOnly, query, signingUser, signingKey)
}

func (b *Backend) KeyChainLinksBySigned(ctx context.Context, signedUser matrix.UserID,
	signedKey string) ([]matrix.KeyChainLink, error) {

	query := `SELECT data FROM key_chain_links WHERE signed_user_id = ? AND signed_key = ?
		ORDER BY signing_user_id, signing_key`
	return queryJSON[matrix.KeyChainLink](ctx, b.db.ReadOnly, query, signedUser, signedKey)
}

func (b *Backend) DeleteOrphanedKeyChainLinks(ctx context.Context) (int, error) {
	query := `DELETE FROM key_chain_links WHERE
		NOT EXISTS (SELECT 1 FROM device_keys d
			WHERE d.user_id = key_chain_links.signed_user_id
			AND d.ed25519_key = key_chain_links.signed_key)
		AND NOT EXISTS (SELECT 1 FROM cross_signing_keys c
			WHERE c.user_id = key_chain_links.signed_user_id
			AND c.ed25519_key = key_chain_links.signed_key)`
	res, err := b.db.Full.ExecContext(ctx, query)
	if err != nil {
		return 0, db.NewWriteError("deleting orphaned key chain links", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, db.NewWriteError("counting deleted key chain links", err)
	}
	return int(n), nil
}

func (b *Backend) Secrets(ctx context.Context) (map[matrix.SecretType]matrix.StoredSecret, error) {
	rows, err := b.db.ReadOnly.QueryContext(ctx, `SELECT type, data FROM secrets`)
	if err != nil {
		return nil, db.NewReadError("querying secrets", err)
	}
	defer rows.Close()
	ret := make(map[matrix.SecretType]matrix.StoredSecret)
	for rows.Next() {
		var typ, raw string
		if err := rows.Scan(&typ, &raw); err != nil {
			return nil, db.NewReadError("scanning secret", err)
		}
		var s matrix.StoredSecret
		if err := decode(raw, &s); err != nil {
			return nil, err
		}
		ret[matrix.SecretType(typ)] = s
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating secrets", err)
	}
	return ret, nil
}

func (b *Backend) Secret(ctx context.Context,
	typ matrix.SecretType) (*matrix.StoredSecret, error) {

	return getJSON[matrix.StoredSecret](ctx, b.db.ReadOnly,
		`SELECT data FROM secrets WHERE type = ?`, typ)
}

func (b *Backend) SetSecret(ctx context.Context, typ matrix.SecretType,
	secret matrix.StoredSecret) error {

	raw, err := encode(secret)
	if err != nil {
		return err
	}
	if _, err := b.db.Full.ExecContext(ctx,
		`INSERT OR REPLACE INTO secrets (type, data) VALUES (?, ?)`, typ, raw); err != nil {

		return db.NewWriteError("inserting secret", err, "type", typ)
	}
	b.secrets.Notify()
	return nil
}

func (b *Backend) DeleteSecret(ctx context.Context, typ matrix.SecretType) error {
	if _, err := b.db.Full.ExecContext(ctx,
		`DELETE FROM secrets WHERE type = ?`, typ); err != nil {

		return db.NewWriteError("deleting secret", err, "type", typ)
	}
	b.secrets.Notify()
	return nil
}

func (b *Backend) SubscribeSecrets() *notify.Subscription {
	return b.secrets.Subscribe()
}

func (b *Backend) GlobalAccountData(ctx context.Context,
	eventType string) (json.RawMessage, error) {

	var raw string
	err := b.db.ReadOnly.QueryRowContext(ctx,
		`SELECT content FROM global_account_data WHERE event_type = ?`, eventType).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, db.NewReadError("querying account data", err, "type", eventType)
	}
	return json.RawMessage(raw), nil
}

func (b *Backend) SetGlobalAccountData(ctx context.Context, eventType string,
	content json.RawMessage) error {

	if !json.Valid(content) {
		return db.NewInputDataError("account data is not JSON", nil, "type", eventType)
	}
	query := `INSERT OR REPLACE INTO global_account_data (event_type, content) VALUES (?, ?)`
	if _, err := b.db.Full.ExecContext(ctx, query, eventType, string(content)); err != nil {
		return db.NewWriteError("inserting account data", err, "type", eventType)
	}
	return nil
}

func (b *Backend) SecretKeyRequests(ctx context.Context) ([]matrix.StoredSecretKeyRequest, error) {
	query := `SELECT data FROM secret_key_requests ORDER BY created_at, request_id`
	return queryJSON[matrix.StoredSecretKeyRequest](ctx, b.db.ReadOnly, query)
}

func (b *Backend) SecretKeyRequest(ctx context.Context,
	requestID string) (*matrix.StoredSecretKeyRequest, error) {

	query := `SELECT data FROM secret_key_requests WHERE request_id = ?`
	return getJSON[matrix.StoredSecretKeyRequest](ctx, b.db.ReadOnly, query, requestID)
}

func (b *Backend) AddSecretKeyRequest(ctx context.Context,
	req matrix.StoredSecretKeyRequest) error {

	return insertRequest(ctx, b.db.Full, "secret_key_requests",
		req.Content.RequestID, req.CreatedAt, req)
}

func (b *Backend) DeleteSecretKeyRequest(ctx context.Context, requestID string) error {
	return deleteRequest(ctx, b.db.Full, "secret_key_requests", requestID)
}

func (b *Backend) RoomKeyRequests(ctx context.Context) ([]matrix.StoredRoomKeyRequest, error) {
	query := `SELECT data FROM room_key_requests ORDER BY created_at, request_id`
	return queryJSON[matrix.StoredRoomKeyRequest](ctx, b.db.ReadOnly, query)
}

func (b *Backend) RoomKeyRequest(ctx context.Context,
	requestID string) (*matrix.StoredRoomKeyRequest, error) {

	query := `SELECT data FROM room_key_requests WHERE request_id = ?`
	return getJSON[matrix.StoredRoomKeyRequest](ctx, b.db.ReadOnly, query, requestID)
}

func (b *Backend) AddRoomKeyRequest(ctx context.Context, req matrix.StoredRoomKeyRequest) error {
	err := insertRequest(ctx, b.db.Full, "room_key_requests",
		req.Content.RequestID, req.CreatedAt, req)
	if err != nil {
		return err
	}
	b.roomKeyRequests.Notify()
	return nil
}

func (b *Backend) DeleteRoomKeyRequest(ctx context.Context, requestID string) error {
	if err := deleteRequest(ctx, b.db.Full, "room_key_requests", requestID); err != nil {
		return err
	}
	b.roomKeyRequests.Notify()
	return nil
}

func (b *Backend) SubscribeRoomKeyRequests() *notify.Subscription {
	return b.roomKeyRequests.Subscribe()
}

// The table name is never user input.
func insertRequest(ctx context.Context, x db.Sqler, table, requestID string,
	createdAt time.Time, req any) error {

	if requestID == "" {
		return db.NewInputDataError("empty request id", nil, "table", table)
	}
	raw, err := encode(req)
	if err != nil {
		return err
	}
	query := `INSERT OR REPLACE INTO ` + table + ` (request_id, created_at, data) VALUES (?, ?, ?)`
	if _, err := x.ExecContext(ctx, query, requestID, createdAt.UnixNano(), raw); err != nil {
		return db.NewWriteError("inserting request", err, "table", table, "id", requestID)
	}
	return nil
}

func deleteRequest(ctx context.Context, x db.Sqler, table, requestID string) error {
	query := `DELETE FROM ` + table + ` WHERE request_id = ?`
	if _, err := x.ExecContext(ctx, query, requestID); err != nil {
		return db.NewWriteError("deleting request", err, "table", table, "id", requestID)
	}
	return nil
}

func (b *Backend) InboundMegolmSession(ctx context.Context, room matrix.RoomID,
	session matrix.SessionID) (*matrix.StoredInboundMegolmSession, error) {

	query := `SELECT backed_up, data FROM inbound_megolm_sessions
		WHERE room_id = ? AND session_id = ?`
	var backedUp bool
	var raw string
	err := b.db.ReadOnly.QueryRowContext(ctx, query, room, session).Scan(&backedUp, &raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, db.NewReadError("querying megolm session", err,
			"room", room, "session", session)
	}
	var s matrix.StoredInboundMegolmSession
	if err := decode(raw, &s); err != nil {
		return nil, err
	}
	s.HasBeenBackedUp = backedUp
	return &s, nil
}

func (b *Backend) MergeInboundMegolmSession(ctx context.Context,
	session matrix.StoredInboundMegolmSession) (bool, error) {

	if session.RoomID == "" || session.SessionID == "" {
		return false, db.NewInputDataError("megolm session without id", nil,
			"room", session.RoomID, "session", session.SessionID)
	}
	raw, err := encode(session)
	if err != nil {
		return false, err
	}
	query := `INSERT INTO inbound_megolm_sessions
		(room_id, session_id, first_known_index, backed_up, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (room_id, session_id) DO UPDATE SET
			first_known_index = excluded.first_known_index,
			backed_up = excluded.backed_up,
			data = excluded.data
		WHERE excluded.first_known_index < inbound_megolm_sessions.first_known_index`
	res, err := b.db.Full.ExecContext(ctx, query, session.RoomID, session.SessionID,
		session.FirstKnownIndex, session.HasBeenBackedUp, raw)
	if err != nil {
		return false, db.NewWriteError("merging megolm session", err,
			"room", session.RoomID, "session", session.SessionID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.NewWriteError("counting merged megolm sessions", err)
	}
	if n == 0 {
		return false, nil
	}
	if !session.HasBeenBackedUp {
		b.notBackedUp.Notify()
	}
	return true, nil
}

func (b *Backend) NotBackedUpInboundMegolmSessions(ctx context.Context,
	limit int) ([]matrix.StoredInboundMegolmSession, error) {

	query := `SELECT data FROM inbound_megolm_sessions WHERE backed_up = 0
		ORDER BY room_id, session_id LIMIT ?`
	sessions, err := queryJSON[matrix.StoredInboundMegolmSession](ctx, b.db.ReadOnly,
		query, limit)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].HasBeenBackedUp = false
	}
	return sessions, nil
}

func (b *Backend) MarkInboundMegolmSessionsBackedUp(ctx context.Context,
	sessions []matrix.StoredInboundMegolmSession) error {

	return b.db.DoInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		query := `UPDATE inbound_megolm_sessions SET backed_up = 1
			WHERE room_id = ? AND session_id = ? AND first_known_index = ?`
		for _, s := range sessions {
			if _, err := tx.ExecContext(ctx, query,
				s.RoomID, s.SessionID, s.FirstKnownIndex); err != nil {

				return db.NewWriteError("marking megolm session backed up", err,
					"room", s.RoomID, "session", s.SessionID)
			}
		}
		return nil
	})
}

func (b *Backend) ResetInboundMegolmSessionsBackedUp(ctx context.Context) error {
	if _, err := b.db.Full.ExecContext(ctx,
		`UPDATE inbound_megolm_sessions SET backed_up = 0`); err != nil {

		return db.NewWriteError("resetting megolm backup state", err)
	}
	b.notBackedUp.Notify()
	return nil
}

func (b *Backend) SubscribeNotBackedUp() *notify.Subscription {
	return b.notBackedUp.Subscribe()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryJSON[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.NewReadError("executing query", err)
	}
	defer rows.Close()
	var ret []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, db.NewReadError("scanning row", err)
		}
		var v T
		if err := decode(raw, &v); err != nil {
			return nil, err
		}
		ret = append(ret, v)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating rows", err)
	}
	return ret, nil
}

func getJSON[T any](ctx context.Context, q rowQuerier, query string, args ...any) (*T, error) {
	var raw string
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, db.NewReadError("executing query", err)
	}
	var v T
	if err := decode(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", db.NewInputDataError("encoding record", err)
	}
	return string(raw), nil
}

func decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return db.NewDataError("decoding record", err)
	}
	return nil
}

