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

package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

// Sqler contains the common functions of sql.DB and sql.Tx.
type Sqler interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Reader is the read-only view of a connection pool.
type Reader interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Stats() sql.DBStats
}

// SqliteConfig allows configuring the sqlite database instance.
type SqliteConfig struct {
	MaxOpenReadConns int
	MaxIdleReadConns int
	InMemory         bool
}

// Sqlite holds a write pool limited to a single connection and a read pool.
//
// Full can be used for any operation, including reads and transactions. ReadOnly must only be
// used for reads.
type Sqlite struct {
	Full     *sql.DB
	ReadOnly Reader

	memName string
}

// NewSqlite opens the database at path. In-memory databases must be explicitly named, e.g.
// "file:keys-test", so that the read and write pools share the same database.
func NewSqlite(path string, cfg *SqliteConfig) (*Sqlite, error) {
	var c SqliteConfig
	if cfg != nil {
		c = *cfg
	}
	if strings.Contains(path, ":memory:") {
		return nil, serrors.New("use explicitly named memory database", "path", path)
	}
	name, hasPrefix := strings.CutPrefix(path, "file:")

	params := make(url.Values)
	// Writers take the lock at BEGIN so that busy_timeout is respected.
	params.Add("_txlock", "immediate")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(1000)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "foreign_keys(1)")
	if c.InMemory {
		if err := registerMemoryDB(name); err != nil {
			return nil, err
		}
		params.Add("mode", "memory")
		params.Add("cache", "shared")
	}
	connURL := path + "?" + params.Encode()
	if !hasPrefix {
		connURL = "file:" + connURL
	}

	write, err := sql.Open("sqlite", connURL)
	if err != nil {
		return nil, serrors.Wrap("opening write database", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", connURL)
	if err != nil {
		write.Close()
		return nil, serrors.Wrap("opening read database", err)
	}
	if c.MaxOpenReadConns == 0 {
		c.MaxOpenReadConns = max(4, runtime.NumCPU())
	}
	read.SetMaxOpenConns(c.MaxOpenReadConns)
	if c.MaxIdleReadConns != 0 {
		read.SetMaxIdleConns(c.MaxIdleReadConns)
	}

	db := &Sqlite{Full: write, ReadOnly: read}
	if c.InMemory {
		db.memName = name
	}
	return db, nil
}

// Setup applies the schema to a fresh database and checks the version of an existing one.
func (db *Sqlite) Setup(schema string, schemaVersion int) error {
	var existing int
	if err := db.Full.QueryRow("PRAGMA user_version;").Scan(&existing); err != nil {
		return serrors.Wrap("checking database schema version", err)
	}
	switch {
	case existing == 0:
		if _, err := db.Full.Exec(schema); err != nil {
			return serrors.Wrap("applying schema", err)
		}
		_, err := db.Full.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		if err != nil {
			return serrors.Wrap("writing schema version", err)
		}
		return nil
	case existing != schemaVersion:
		return serrors.New("database schema version mismatch",
			"expected", schemaVersion, "actual", existing)
	default:
		return nil
	}
}

// CheckpointStats are the counters reported by a WAL checkpoint.
type CheckpointStats struct {
	Busy         int
	LogFrames    int
	Checkpointed int
}

// Checkpoint runs a full WAL checkpoint on the write pool.
func (db *Sqlite) Checkpoint(ctx context.Context) (CheckpointStats, error) {
	var s CheckpointStats
	err := db.Full.QueryRowContext(ctx, "PRAGMA wal_checkpoint(FULL);").
		Scan(&s.Busy, &s.LogFrames, &s.Checkpointed)
	if err != nil {
		return CheckpointStats{}, serrors.Wrap("performing checkpoint", err)
	}
	return s, nil
}

// DoInTx runs action inside a write transaction. The transaction is committed if action returns
// nil and rolled back otherwise.
func (db *Sqlite) DoInTx(ctx context.Context, action func(context.Context, *sql.Tx) error) error {
	tx, err := db.Full.BeginTx(ctx, nil)
	if err != nil {
		return NewTxError("create tx", err)
	}
	if err := action(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return serrors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return NewTxError("commit", err)
	}
	return nil
}

func (db *Sqlite) Close() error {
	var errs serrors.List
	if err := db.Full.Close(); err != nil {
		errs = append(errs, serrors.Wrap("closing write db", err))
	}
	if err := db.ReadOnly.(*sql.DB).Close(); err != nil {
		errs = append(errs, serrors.Wrap("closing read db", err))
	}
	if db.memName != "" {
		unregisterMemoryDB(db.memName)
	}
	return errs.ToError()
}

// memoryDBs tracks the open named in-memory databases. Two databases with the same name would
// silently share their contents.
var memoryDBs = struct {
	mtx sync.Mutex
	dbs map[string]struct{}
}{
	dbs: make(map[string]struct{}),
}

func registerMemoryDB(name string) error {
	memoryDBs.mtx.Lock()
	defer memoryDBs.mtx.Unlock()
	if _, ok := memoryDBs.dbs[name]; ok {
		return serrors.New("memory database already exists", "name", name)
	}
	memoryDBs.dbs[name] = struct{}{}
	return nil
}

func unregisterMemoryDB(name string) {
	memoryDBs.mtx.Lock()
	defer memoryDBs.mtx.Unlock()
	delete(memoryDBs.dbs, name)
}
