// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
)

var (
	// ErrTxNotFound is returned when the node does not know a wallet
	// transaction or block.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrInsufficientFunds is returned when the hot wallet cannot fund a
	// payout.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAddress is returned when the node refuses an address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotRegtest is returned by helpers that only make sense on a
	// regression test network.
	ErrNotRegtest = errors.New("node is not running regtest")
)

// rpcErrPatterns maps bitcoind error message fragments to sentinel errors.
// bitcoind reuses codes across unrelated failures, so messages are matched
// as a fallback.
var rpcErrPatterns = []struct {
	pattern string
	err     error
}{
	{"insufficient funds", ErrInsufficientFunds},
	{"invalid or non wallet transaction id", ErrTxNotFound},
	{"block not found", ErrTxNotFound},
	{"invalid address", ErrInvalidAddress},
}

// MapRPCErr translates an error returned by bitcoind into one of the
// package sentinels, wrapping the original. Unknown errors are returned
// unchanged.
func MapRPCErr(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case btcjson.ErrRPCWalletInsufficientFunds:
			return wrapRPCErr(ErrInsufficientFunds, err)
		}
	}

	for _, p := range rpcErrPatterns {
		if matchErrStr(err, p.pattern) {
			return wrapRPCErr(p.err, err)
		}
	}

	if rpcErr != nil && rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey {
		return wrapRPCErr(ErrTxNotFound, err)
	}

	return err
}

// rpcError couples a sentinel with the node error it was mapped from.
type rpcError struct {
	sentinel error
	cause    error
}

func wrapRPCErr(sentinel, cause error) error {
	return &rpcError{sentinel: sentinel, cause: cause}
}

// Error implements the error interface.
func (e *rpcError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

// Unwrap exposes both the sentinel and the node error.
func (e *rpcError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

// matchErrStr takes an error returned from the node and matches it against
// the specified string. Dashes are treated as spaces and case is ignored.
func matchErrStr(err error, s string) bool {
	errStr := strings.ReplaceAll(strings.ToLower(err.Error()), "-", " ")
	s = strings.ReplaceAll(strings.ToLower(s), "-", " ")

	return strings.Contains(errStr, s)
}
