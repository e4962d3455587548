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

package sqlite

const (
	// SchemaVersion is the version of the SQLite schema understood by this backend.
	// Whenever changes to the schema are made, this version number should be increased
	// to prevent data corruption between incompatible database schemas.
	SchemaVersion = 1
	// Schema is the SQLite database layout.
	Schema = `
	CREATE TABLE device_keys(
		user_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		ed25519_key TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (user_id, device_id)
	);
	CREATE INDEX device_keys_ed25519 ON device_keys(user_id, ed25519_key);
	CREATE TABLE cross_signing_keys(
		user_id TEXT NOT NULL,
		usage TEXT NOT NULL,
		ed25519_key TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (user_id, usage)
	);
	CREATE TABLE key_verification_states(
		user_id TEXT NOT NULL,
		key_id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (user_id, key_id)
	);
	CREATE TABLE outdated_users(
		user_id TEXT NOT NULL PRIMARY KEY
	);
	CREATE TABLE key_chain_links(
		signing_user_id TEXT NOT NULL,
		signing_key TEXT NOT NULL,
		signed_user_id TEXT NOT NULL,
		signed_key TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (signed_user_id, signed_key, signing_user_id, signing_key)
	);
	CREATE INDEX key_chain_links_signer ON key_chain_links(signing_user_id, signing_key);
	CREATE TABLE secrets(
		type TEXT NOT NULL PRIMARY KEY,
		data TEXT NOT NULL
	);
	CREATE TABLE global_account_data(
		event_type TEXT NOT NULL PRIMARY KEY,
		content TEXT NOT NULL
	);
	CREATE TABLE secret_key_requests(
		request_id TEXT NOT NULL PRIMARY KEY,
		created_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE room_key_requests(
		request_id TEXT NOT NULL PRIMARY KEY,
		created_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE inbound_megolm_sessions(
		room_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		first_known_index INTEGER NOT NULL,
		backed_up INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (room_id, session_id)
	);
	CREATE INDEX inbound_megolm_sessions_backed_up ON inbound_megolm_sessions(backed_up);
	`
)
