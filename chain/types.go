// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Wallet transaction categories reported by bitcoind.
const (
	CategoryReceive  = "receive"
	CategorySend     = "send"
	CategoryGenerate = "generate"
	CategoryImmature = "immature"
	CategoryOrphan   = "orphan"
)

// BlockStamp identifies a block by height and hash.
type BlockStamp struct {
	Height int32
	Hash   chainhash.Hash
}

// WalletEntry is a single wallet relevant output or input of a transaction,
// as listed by listsinceblock.
type WalletEntry struct {
	TxID          chainhash.Hash
	Address       string
	Category      string
	Vout          uint32
	Amount        btcutil.Amount
	Confirmations int64

	// BlockHash is set once the transaction is mined.
	BlockHash *chainhash.Hash

	// Conflicts lists the wallet transactions spending the same inputs.
	Conflicts []chainhash.Hash
}

// SinceBlock is the result of listsinceblock.
type SinceBlock struct {
	Entries   []WalletEntry
	LastBlock chainhash.Hash
}

// TxDetail is a per address entry of gettransaction.
type TxDetail struct {
	Address  string
	Category string
	Amount   btcutil.Amount
	Vout     uint32
}

// WalletTx is a wallet transaction as returned by gettransaction.
type WalletTx struct {
	TxID chainhash.Hash

	// Confirmations is negative when a conflicting transaction is
	// confirmed instead.
	Confirmations int64
	BlockHash     *chainhash.Hash
	Conflicts     []chainhash.Hash

	// Fee is only known for transactions the wallet funded.
	Fee     fn.Option[btcutil.Amount]
	Details []TxDetail

	// Tx is the decoded raw transaction.
	Tx *wire.MsgTx
}

// HeaderInfo is the part of a block header the scanner needs.
type HeaderInfo struct {
	Hash   chainhash.Hash
	Height int32

	// MainChain is false when the block is no longer on the best chain.
	MainChain bool
}

// FeeEstimate is a fee rate suggestion.
type FeeEstimate struct {
	// SatPerVByte is the fee rate in satoshis per virtual byte.
	SatPerVByte uint64

	// Blocks is the confirmation target the node answered for. It is
	// None when the default rate was used.
	Blocks fn.Option[int64]
}
