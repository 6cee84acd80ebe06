// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DefaultFeeRate is the fee rate in sat/vB used when the node has no
	// estimate, which is common on fresh regtest and signet nodes.
	DefaultFeeRate = 5

	// feeConfTarget is the confirmation target of fee estimates.
	feeConfTarget = 2

	regtestChain = "regtest"
)

// Config holds the connection parameters of a bitcoind node.
type Config struct {
	// Host is the host:port of the bitcoind RPC server.
	Host string

	// User and Pass authenticate against the RPC server.
	User string
	Pass string

	// Wallet is the name of the bitcoind wallet holding the hot wallet
	// keys. It may be empty when the node runs a single wallet.
	Wallet string

	// ChainParams are the parameters of the network the node runs.
	ChainParams *chaincfg.Params
}

// Client is a bitcoind JSON-RPC client exposing the calls the custody
// service needs, with node errors mapped through MapRPCErr.
type Client struct {
	rpc    *rpcclient.Client
	params *chaincfg.Params
}

// NewClient creates a client in HTTP POST mode. No connection is made until
// the first call.
func NewClient(cfg *Config) (*Client, error) {
	host := cfg.Host
	if cfg.Wallet != "" {
		host += "/wallet/" + cfg.Wallet
	}

	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:                 host,
		User:                 cfg.User,
		Pass:                 cfg.Pass,
		DisableConnectOnNew:  true,
		DisableAutoReconnect: false,
		DisableTLS:           true,
		HTTPPostMode:         true,
		Params:               cfg.ChainParams.Name,
	}, nil)
	if err != nil {
		return nil, err
	}

	return &Client{rpc: rpc, params: cfg.ChainParams}, nil
}

// Stop shuts the RPC client down.
func (c *Client) Stop() {
	c.rpc.Shutdown()
	c.rpc.WaitForShutdown()
}

// ChainParams returns the network parameters of the node.
func (c *Client) ChainParams() *chaincfg.Params {
	return c.params
}

// BestBlock returns the tip of the node's best chain.
func (c *Client) BestBlock() (BlockStamp, error) {
	info, err := c.rpc.GetBlockChainInfo()
	if err != nil {
		return BlockStamp{}, MapRPCErr(err)
	}

	hash, err := chainhash.NewHashFromStr(info.BestBlockHash)
	if err != nil {
		return BlockStamp{}, fmt.Errorf("best block hash: %w", err)
	}

	return BlockStamp{Height: info.Blocks, Hash: *hash}, nil
}

// ListSinceBlock lists wallet transactions affected since block. A nil block
// lists the whole wallet history.
func (c *Client) ListSinceBlock(block *chainhash.Hash) (*SinceBlock, error) {
	res, err := c.rpc.ListSinceBlock(block)
	if err != nil {
		return nil, MapRPCErr(err)
	}

	last, err := chainhash.NewHashFromStr(res.LastBlock)
	if err != nil {
		return nil, fmt.Errorf("last block hash: %w", err)
	}

	out := &SinceBlock{LastBlock: *last}
	for _, tx := range res.Transactions {
		entry, err := walletEntry(tx)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, entry)
	}

	return out, nil
}

func walletEntry(tx btcjson.ListTransactionsResult) (WalletEntry, error) {
	txid, err := chainhash.NewHashFromStr(tx.TxID)
	if err != nil {
		return WalletEntry{}, fmt.Errorf("txid %q: %w", tx.TxID, err)
	}
	amount, err := btcutil.NewAmount(math.Abs(tx.Amount))
	if err != nil {
		return WalletEntry{}, err
	}
	blockHash, err := optionalHash(tx.BlockHash)
	if err != nil {
		return WalletEntry{}, err
	}
	conflicts, err := parseHashes(tx.WalletConflicts)
	if err != nil {
		return WalletEntry{}, err
	}

	return WalletEntry{
		TxID:          *txid,
		Address:       tx.Address,
		Category:      tx.Category,
		Vout:          tx.Vout,
		Amount:        amount,
		Confirmations: tx.Confirmations,
		BlockHash:     blockHash,
		Conflicts:     conflicts,
	}, nil
}

// WalletTx returns a wallet transaction. ErrTxNotFound is returned when the
// wallet does not know it.
func (c *Client) WalletTx(txid *chainhash.Hash) (*WalletTx, error) {
	res, err := c.rpc.GetTransaction(txid)
	if err != nil {
		return nil, MapRPCErr(err)
	}

	blockHash, err := optionalHash(res.BlockHash)
	if err != nil {
		return nil, err
	}
	conflicts, err := parseHashes(res.WalletConflicts)
	if err != nil {
		return nil, err
	}

	tx := &WalletTx{
		TxID:          *txid,
		Confirmations: res.Confirmations,
		BlockHash:     blockHash,
		Conflicts:     conflicts,
		Fee:           fn.None[btcutil.Amount](),
	}

	for _, d := range res.Details {
		amount, err := btcutil.NewAmount(math.Abs(d.Amount))
		if err != nil {
			return nil, err
		}
		tx.Details = append(tx.Details, TxDetail{
			Address:  d.Address,
			Category: d.Category,
			Amount:   amount,
			Vout:     d.Vout,
		})
		if d.Category == CategorySend {
			fee, err := btcutil.NewAmount(math.Abs(res.Fee))
			if err != nil {
				return nil, err
			}
			tx.Fee = fn.Some(fee)
		}
	}

	if res.Hex != "" {
		raw, err := hex.DecodeString(res.Hex)
		if err != nil {
			return nil, fmt.Errorf("tx hex: %w", err)
		}
		msgTx := &wire.MsgTx{}
		if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("decode tx %v: %w", txid, err)
		}
		tx.Tx = msgTx
	}

	return tx, nil
}

// BlockHeader returns the height of block and whether it is on the best
// chain.
func (c *Client) BlockHeader(block *chainhash.Hash) (*HeaderInfo, error) {
	header, err := c.rpc.GetBlockHeaderVerbose(block)
	if err != nil {
		return nil, MapRPCErr(err)
	}

	return &HeaderInfo{
		Hash:      *block,
		Height:    header.Height,
		MainChain: header.Confirmations >= 0,
	}, nil
}

// SendToAddress pays amount to addr. comment is stored in the wallet with
// the transaction.
func (c *Client) SendToAddress(addr btcutil.Address, amount btcutil.Amount,
	comment string) (*chainhash.Hash, error) {

	txid, err := c.rpc.SendToAddressComment(addr, amount, comment, "")
	if err != nil {
		return nil, MapRPCErr(err)
	}

	log.Infof("Sent %v to %v in %v", amount, addr, txid)

	return txid, nil
}

// NewAddress returns a fresh bech32 deposit address of the hot wallet.
func (c *Client) NewAddress() (btcutil.Address, error) {
	addr, err := c.rpc.GetNewAddressType("", "bech32")
	if err != nil {
		return nil, MapRPCErr(err)
	}

	return addr, nil
}

// Balance returns the confirmed balance of the hot wallet.
func (c *Client) Balance() (btcutil.Amount, error) {
	balance, err := c.rpc.GetBalance("*")
	if err != nil {
		return 0, MapRPCErr(err)
	}

	return balance, nil
}

// FeeEstimate returns the fee rate for confirmation within two blocks, or
// DefaultFeeRate when the node has no estimate.
func (c *Client) FeeEstimate() (*FeeEstimate, error) {
	res, err := c.rpc.EstimateSmartFee(feeConfTarget, nil)
	if err != nil {
		return nil, MapRPCErr(err)
	}

	return feeEstimate(res), nil
}

func feeEstimate(res *btcjson.EstimateSmartFeeResult) *FeeEstimate {
	if res.FeeRate == nil || *res.FeeRate <= 0 {
		log.Debugf("No fee estimate from node (%v), using default %d "+
			"sat/vB", res.Errors, DefaultFeeRate)

		return &FeeEstimate{
			SatPerVByte: DefaultFeeRate,
			Blocks:      fn.None[int64](),
		}
	}

	// The node answers in BTC per kvB.
	satPerKVB := math.Round(*res.FeeRate * btcutil.SatoshiPerBitcoin)
	return &FeeEstimate{
		SatPerVByte: uint64(math.Ceil(satPerKVB / 1000)),
		Blocks:      fn.Some(res.Blocks),
	}
}

// IsRegtest reports whether the node runs the regression test network.
func (c *Client) IsRegtest() (bool, error) {
	info, err := c.rpc.GetBlockChainInfo()
	if err != nil {
		return false, MapRPCErr(err)
	}

	return info.Chain == regtestChain, nil
}

func (c *Client) requireRegtest() error {
	ok, err := c.IsRegtest()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegtest
	}
	return nil
}

// Generate mines n blocks paying to addr. Regtest only.
func (c *Client) Generate(n int64, addr btcutil.Address) ([]*chainhash.Hash,
	error) {

	if err := c.requireRegtest(); err != nil {
		return nil, err
	}

	hashes, err := c.rpc.GenerateToAddress(n, addr, nil)
	if err != nil {
		return nil, MapRPCErr(err)
	}
	return hashes, nil
}

// InvalidateBlock marks block invalid, forcing a reorg. Regtest only.
func (c *Client) InvalidateBlock(block *chainhash.Hash) error {
	if err := c.requireRegtest(); err != nil {
		return err
	}
	return MapRPCErr(c.rpc.InvalidateBlock(block))
}

// BumpFee replaces an unconfirmed wallet transaction with a higher fee one
// and returns the replacement txid. Regtest only.
func (c *Client) BumpFee(txid *chainhash.Hash) (*chainhash.Hash, error) {
	if err := c.requireRegtest(); err != nil {
		return nil, err
	}

	param, err := json.Marshal(txid.String())
	if err != nil {
		return nil, err
	}
	raw, err := c.rpc.RawRequest("bumpfee", []json.RawMessage{param})
	if err != nil {
		return nil, MapRPCErr(err)
	}

	var res struct {
		TxID string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("bumpfee result: %w", err)
	}

	return chainhash.NewHashFromStr(res.TxID)
}

func optionalHash(s string) (*chainhash.Hash, error) {
	if s == "" {
		return nil, nil
	}
	return chainhash.NewHashFromStr(s)
}

func parseHashes(ss []string) ([]chainhash.Hash, error) {
	if len(ss) == 0 {
		return nil, nil
	}

	hashes := make([]chainhash.Hash, 0, len(ss))
	for _, s := range ss {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, *h)
	}
	return hashes, nil
}
