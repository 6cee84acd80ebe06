// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package withdraw

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/chain"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Receipt describes a broadcast withdrawal.
type Receipt struct {
	ID   uuid.UUID
	TxID chainhash.Hash

	// Fee is None when the node did not report a fee for the
	// transaction.
	Fee fn.Option[btcutil.Amount]

	InputAddresses  []string
	OutputAddresses []string
}

// MarshalJSON encodes the receipt. A missing fee is encoded as null.
func (r *Receipt) MarshalJSON() ([]byte, error) {
	var fee *int64
	r.Fee.WhenSome(func(a btcutil.Amount) {
		sat := int64(a)
		fee = &sat
	})

	inputs := r.InputAddresses
	if inputs == nil {
		inputs = []string{}
	}
	outputs := r.OutputAddresses
	if outputs == nil {
		outputs = []string{}
	}

	return json.Marshal(struct {
		ID              uuid.UUID `json:"id"`
		TxID            string    `json:"txid"`
		Fee             *int64    `json:"fee"`
		InputAddresses  []string  `json:"input_addresses"`
		OutputAddresses []string  `json:"output_addresses"`
	}{
		ID:              r.ID,
		TxID:            r.TxID.String(),
		Fee:             fee,
		InputAddresses:  inputs,
		OutputAddresses: outputs,
	})
}

// inputAddresses returns the wallet addresses the transaction drew on, in
// detail order without duplicates.
func inputAddresses(tx *chain.WalletTx) []string {
	var addrs []string
	seen := make(map[string]struct{})
	for _, d := range tx.Details {
		switch d.Category {
		case chain.CategoryReceive, chain.CategoryGenerate,
			chain.CategoryImmature:
		default:
			continue
		}
		if d.Address == "" {
			continue
		}
		if _, ok := seen[d.Address]; ok {
			continue
		}
		seen[d.Address] = struct{}{}
		addrs = append(addrs, d.Address)
	}

	return addrs
}

// outputAddresses extracts the address of every standard output script of
// the raw transaction. Non standard outputs are skipped.
func outputAddresses(tx *wire.MsgTx, params *chaincfg.Params) []string {
	var addrs []string
	for _, out := range tx.TxOut {
		_, extracted, _, err := txscript.ExtractPkScriptAddrs(
			out.PkScript, params,
		)
		if err != nil {
			continue
		}
		for _, a := range extracted {
			addrs = append(addrs, a.EncodeAddress())
		}
	}

	return addrs
}
