// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command ledger-schema migrates an in-memory SQLite ledger with the embedded
// migrations and writes the resulting schema in a deterministic order, so
// schema changes show up as plain diffs in review.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hexstody/hexstody-btc/ledger/sqlstore"
	flags "github.com/jessevdk/go-flags"
)

const (
	dirPerm        = 0o750
	filePerm       = 0o600
	defaultTimeout = time.Minute
)

var opts = struct {
	Out string `short:"o" long:"out" description:"Path of the generated schema file"`
}{
	Out: filepath.Join("ledger", "sqlstore", "schemas", "sqlite_schema.sql"),
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := sqlstore.Open(ctx, sqlstore.SQLite, ":memory:")
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	schema, err := extractSchema(ctx, store.DB())
	if err != nil {
		return err
	}

	if err := writeSchema(opts.Out, schema); err != nil {
		return err
	}

	fmt.Printf("Ledger schema written to %s\n", opts.Out)
	return nil
}

// extractSchema dumps tables, views and indexes ordered by kind and name.
// The migration bookkeeping table is left out.
func extractSchema(ctx context.Context, db *sql.DB) (string, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT type, name, sql FROM sqlite_master
        WHERE type IN ('table','view','index') AND sql IS NOT NULL
            AND name <> 'schema_migrations'
        ORDER BY
            CASE type
                WHEN 'table' THEN 1
                WHEN 'view' THEN 2
                WHEN 'index' THEN 3
                ELSE 4
            END,
            name`)
	if err != nil {
		return "", fmt.Errorf("query schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var b strings.Builder
	b.WriteString("-- Code generated by ledger-schema. DO NOT EDIT.\n\n")
	for rows.Next() {
		var typ, name, def string
		if err := rows.Scan(&typ, &name, &def); err != nil {
			return "", fmt.Errorf("scan schema row: %w", err)
		}

		fmt.Fprintf(&b, "-- %s %s\n%s;\n\n", typ, name, def)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema rows: %w", err)
	}

	return b.String(), nil
}

func writeSchema(outPath, schema string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), dirPerm); err != nil {
		return fmt.Errorf("create schema dir: %w", err)
	}

	return os.WriteFile(outPath, []byte(schema), filePerm)
}
