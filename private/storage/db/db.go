// Copyright 2025 The peermgr authors
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

// Package db contains low level helpers shared by the sql storage
// backends.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// Sqler contains the methods shared by *sql.DB and *sql.Tx.
type Sqler interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSqlite opens a sqlite database at the given path, creating it with the
// given schema if it does not exist. If the stored schema version differs
// from schemaVersion an error is returned. Foreign keys are enforced, WAL
// journaling is enabled and transactions take the database lock immediately
// so the configured busy timeout is respected.
func NewSqlite(path string, schema string, schemaVersion int) (*sql.DB, error) {
	uri := path
	if !strings.Contains(uri, "?") {
		uri += "?"
	} else {
		uri += "&"
	}
	uri += "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"

	conn, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, serrors.WrapStr("opening database", err, "path", path)
	}
	// sqlite serializes writers anyway; a single connection sidesteps
	// SQLITE_BUSY on concurrent write transactions.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, serrors.WrapStr("accessing database", err, "path", path)
	}
	if err := setup(conn, schema, schemaVersion); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func setup(conn *sql.DB, schema string, schemaVersion int) error {
	var existing int
	if err := conn.QueryRow("PRAGMA user_version;").Scan(&existing); err != nil {
		return serrors.WrapStr("checking schema version", err)
	}
	switch {
	case existing == 0:
		if _, err := conn.Exec(schema); err != nil {
			return serrors.WrapStr("applying schema", err)
		}
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return serrors.WrapStr("writing schema version", err)
		}
		return nil
	case existing != schemaVersion:
		return serrors.New("schema version mismatch",
			"expected", schemaVersion, "have", existing)
	default:
		return nil
	}
}
