//go:build integration_test

package sqltest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// NewSQLiteDB creates a SQLite database file in a per-test temporary
// directory.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	path := filepath.Join(
		t.TempDir(), "hexstody_"+deterministicTestID(t)+".sqlite",
	)

	db, err := sql.Open("sqlite", "file:"+path+"?mode=rwc")
	require.NoError(t, err)

	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))

	t.Cleanup(func() { _ = db.Close() })

	return db
}
