// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package kvstore implements the ledger store on top of walletdb. Every
// update is a TLV record keyed by a big-endian sequence number, so a bucket
// scan yields updates in insertion order.
package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/hexstody/hexstody-btc/ledger"

	// Register the bbolt backed driver.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

const (
	// DBName is the file name of the ledger database inside the data
	// directory.
	DBName = "ledger.db"

	dbDriver = "bdb"
)

var updatesBucketKey = []byte("ledger-updates")

// ErrMissingBucket is returned when the database was not initialized.
var ErrMissingBucket = errors.New("ledger bucket not found")

// Store is a ledger.Store backed by a walletdb database.
type Store struct {
	db walletdb.DB
}

// A compile time check to ensure Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)

// Open opens the ledger database at dbPath, creating it when it does not
// exist yet.
func Open(dbPath string, timeout time.Duration) (*Store, error) {
	var (
		db  walletdb.DB
		err error
	)

	_, statErr := os.Stat(dbPath)
	switch {
	case os.IsNotExist(statErr):
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, err
		}
		db, err = walletdb.Create(dbDriver, dbPath, false, timeout, false)

	case statErr != nil:
		return nil, statErr

	default:
		db, err = walletdb.Open(dbDriver, dbPath, false, timeout, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an open database, creating the ledger bucket if needed.
func New(db walletdb.DB) (*Store, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(updatesBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create ledger bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertUpdate appends u to the ledger.
func (s *Store) InsertUpdate(_ context.Context, u ledger.StateUpdate) error {
	rec, err := encodeUpdate(u)
	if err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(updatesBucketKey)
		if bucket == nil {
			return ErrMissingBucket
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}

		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)

		return bucket.Put(key[:], rec)
	})
}

// Updates returns every update in insertion order, which is the order the
// engine applied them in.
func (s *Store) Updates(ctx context.Context) ([]ledger.StateUpdate, error) {
	var updates []ledger.StateUpdate
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(updatesBucketKey)
		if bucket == nil {
			return ErrMissingBucket
		}

		return bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			u, err := decodeUpdate(v)
			if err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			updates = append(updates, u)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return updates, nil
}
