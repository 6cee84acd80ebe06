// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sqlstore implements the ledger store on a SQL database. Postgres is
// reached through pgx and SQLite through the pure Go modernc driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/ledger"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of the backing database.
type Dialect uint8

const (
	// Postgres is a PostgreSQL database reached through pgx.
	Postgres Dialect = iota

	// SQLite is a SQLite database file.
	SQLite
)

// String returns the dialect name, which is also its migrations directory.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("dialect(%d)", uint8(d))
	}
}

// ParseDialect maps a backend name to its dialect.
func ParseDialect(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unknown sql dialect %q", name)
}

func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

const (
	insertUpdateSQL = `
INSERT INTO ledger_updates (id, created_at, kind, body)
VALUES ($1, $2, $3, $4)`

	selectUpdatesSQL = `
SELECT id, created_at, kind, body
FROM ledger_updates
ORDER BY seq`
)

// Store is a ledger.Store backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	owned   bool
}

// A compile time check to ensure Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)

// Open connects to dsn with the driver of dialect and migrates the schema.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %v ledger: %w", d, err)
	}

	if d == SQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %v ledger: %w", d, err)
	}

	s, err := New(ctx, db, d)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true

	return s, nil
}

// New wraps an open database and migrates the schema. The caller keeps
// ownership of db.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	if err := migrate(ctx, db, d); err != nil {
		return nil, fmt.Errorf("migrate %v ledger: %w", d, err)
	}

	return &Store{db: db, dialect: d}, nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// InsertUpdate appends u to the ledger.
func (s *Store) InsertUpdate(ctx context.Context, u ledger.StateUpdate) error {
	body, err := ledger.EncodeUpdateBody(u.Body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertUpdateSQL,
		u.ID.String(), u.Created.UnixNano(), string(u.Kind()), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert update %v: %w", u.ID, err)
	}

	return nil
}

// Updates returns every update in insertion order.
func (s *Store) Updates(ctx context.Context) ([]ledger.StateUpdate, error) {
	rows, err := s.db.QueryContext(ctx, selectUpdatesSQL)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	var updates []ledger.StateUpdate
	for rows.Next() {
		var (
			id      string
			created int64
			kind    string
			body    string
		)
		if err := rows.Scan(&id, &created, &kind, &body); err != nil {
			return nil, err
		}

		u, err := decodeRow(id, created, kind, body)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}

	return updates, rows.Err()
}

func decodeRow(id string, created int64, kind,
	body string) (ledger.StateUpdate, error) {

	updateID, err := uuid.Parse(id)
	if err != nil {
		return ledger.StateUpdate{}, fmt.Errorf("update id %q: %w", id, err)
	}

	decoded, err := ledger.DecodeUpdateBody(
		ledger.UpdateKind(kind), []byte(body),
	)
	if err != nil {
		return ledger.StateUpdate{}, fmt.Errorf("update %v: %w", updateID,
			err)
	}

	return ledger.StateUpdate{
		ID:      updateID,
		Created: time.Unix(0, created).UTC(),
		Body:    decoded,
	}, nil
}
