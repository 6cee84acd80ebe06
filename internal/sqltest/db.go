//go:build integration_test

// Package sqltest provides isolated Postgres and SQLite databases for
// integration tests of the SQL ledger store.
package sqltest

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

// DBFactory creates a fresh, isolated database for the calling test and
// registers its cleanup.
type DBFactory func(t testing.TB) *sql.DB

// Backend is a database flavour tests run against.
type Backend struct {
	// Name is the dialect name understood by sqlstore.ParseDialect.
	Name string

	// NewDB creates a database of this flavour.
	NewDB DBFactory
}

// Backends returns every supported backend.
func Backends() []Backend {
	return []Backend{
		{Name: "postgres", NewDB: NewPostgresDB},
		{Name: "sqlite", NewDB: NewSQLiteDB},
	}
}

// DBTestFunc is a test body run once per backend.
type DBTestFunc func(t *testing.T, backend Backend)

// RunDatabaseTest runs testFunc as a parallel subtest for every backend.
func RunDatabaseTest(t *testing.T, testFunc DBTestFunc) {
	t.Helper()

	for _, backend := range Backends() {
		backend := backend
		t.Run(backend.Name, func(t *testing.T) {
			t.Parallel()
			testFunc(t, backend)
		})
	}
}

// deterministicTestID hashes the test name into a short identifier. Names
// derived from it are stable across runs, which keeps test caching working,
// and short enough for Postgres identifiers.
func deterministicTestID(t testing.TB) string {
	t.Helper()

	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))
	require.NoError(t, err)

	return fmt.Sprintf("%08x", h.Sum32())
}
