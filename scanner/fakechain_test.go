// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scanner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/hexstody/hexstody-btc/chain"
)

// fakeTx is a wallet receive in the fake chain.
type fakeTx struct {
	txid      chainhash.Hash
	address   string
	amount    btcutil.Amount
	block     *chainhash.Hash
	conflicts []chainhash.Hash
	replaced  bool
}

// fakeChain is an in-memory node with a single wallet. It can mine,
// invalidate blocks and bump fees the way bitcoind does on regtest.
type fakeChain struct {
	mu sync.Mutex

	blocks  []chainhash.Hash
	heights map[chainhash.Hash]int32
	txs     map[chainhash.Hash]*fakeTx
	nextID  int

	failMethod string
	failErr    error

	afterBestBlock func()
}

// A compile time check to ensure fakeChain implements Node.
var _ Node = (*fakeChain)(nil)

func newFakeChain() *fakeChain {
	c := &fakeChain{
		heights: make(map[chainhash.Hash]int32),
		txs:     make(map[chainhash.Hash]*fakeTx),
	}
	c.mine(1)

	return c
}

func (c *fakeChain) newHash(prefix string) chainhash.Hash {
	c.nextID++
	return chainhash.DoubleHashH([]byte(fmt.Sprintf("%s%d", prefix, c.nextID)))
}

// fail makes the next call of method return err.
func (c *fakeChain) fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failMethod, c.failErr = method, err
}

func (c *fakeChain) failing(method string) error {
	if c.failMethod != method {
		return nil
	}
	err := c.failErr
	c.failMethod, c.failErr = "", nil
	return err
}

func (c *fakeChain) tip() int32 {
	return int32(len(c.blocks) - 1)
}

func (c *fakeChain) onMain(h chainhash.Hash) (int32, bool) {
	height, ok := c.heights[h]
	if !ok || int(height) >= len(c.blocks) {
		return height, false
	}
	return height, c.blocks[height] == h
}

func (c *fakeChain) blockOf(tx *fakeTx) *chainhash.Hash {
	if tx.block == nil {
		return nil
	}
	if _, ok := c.onMain(*tx.block); !ok {
		return nil
	}
	h := *tx.block
	return &h
}

func (c *fakeChain) confirmations(tx *fakeTx) int64 {
	if b := c.blockOf(tx); b != nil {
		h, _ := c.onMain(*b)
		return int64(c.tip()-h) + 1
	}
	for _, cf := range tx.conflicts {
		if other, ok := c.txs[cf]; ok && c.blockOf(other) != nil {
			return -1
		}
	}
	return 0
}

// deposit adds an unconfirmed receive of amount to the wallet.
func (c *fakeChain) deposit(amount btcutil.Amount) chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &fakeTx{
		txid:    c.newHash("tx"),
		address: fmt.Sprintf("bcrt1qdeposit%d", c.nextID),
		amount:  amount,
	}
	c.txs[tx.txid] = tx

	return tx.txid
}

// mine appends n blocks. Mempool transactions go into the first one.
func (c *fakeChain) mine(n int) []chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hashes []chainhash.Hash
	for i := 0; i < n; i++ {
		h := c.newHash("block")
		c.heights[h] = int32(len(c.blocks))
		c.blocks = append(c.blocks, h)
		hashes = append(hashes, h)

		if i != 0 {
			continue
		}
		for _, tx := range c.txs {
			if c.blockOf(tx) != nil || tx.replaced {
				continue
			}
			if c.confirmations(tx) < 0 {
				continue
			}
			block := h
			tx.block = &block
		}
	}

	return hashes
}

// invalidate disconnects block and every block above it. Their
// transactions return to the mempool.
func (c *fakeChain) invalidate(block chainhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	height, ok := c.onMain(block)
	if !ok {
		return
	}
	for _, tx := range c.txs {
		if b := c.blockOf(tx); b != nil {
			if h, _ := c.onMain(*b); h >= height {
				tx.block = nil
			}
		}
	}
	c.blocks = c.blocks[:height]
}

// bumpFee replaces an unconfirmed transaction and returns the replacement.
func (c *fakeChain) bumpFee(txid chainhash.Hash) chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.txs[txid]
	tx := &fakeTx{
		txid:      c.newHash("tx"),
		address:   old.address,
		amount:    old.amount,
		conflicts: []chainhash.Hash{old.txid},
	}
	old.conflicts = append(old.conflicts, tx.txid)
	old.replaced = true
	c.txs[tx.txid] = tx

	return tx.txid
}

func (c *fakeChain) BestBlock() (chain.BlockStamp, error) {
	c.mu.Lock()
	if err := c.failing("BestBlock"); err != nil {
		c.mu.Unlock()
		return chain.BlockStamp{}, err
	}
	stamp := chain.BlockStamp{Height: c.tip(), Hash: c.blocks[c.tip()]}
	hook := c.afterBestBlock
	c.afterBestBlock = nil
	c.mu.Unlock()

	if hook != nil {
		hook()
	}

	return stamp, nil
}

func (c *fakeChain) ListSinceBlock(since *chainhash.Hash) (*chain.SinceBlock,
	error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failing("ListSinceBlock"); err != nil {
		return nil, err
	}

	from := int32(-1)
	if since != nil {
		h, ok := c.heights[*since]
		if !ok {
			return nil, chain.ErrTxNotFound
		}
		from = h
		if _, main := c.onMain(*since); !main {
			from = h - 1
		}
		if from > c.tip() {
			from = c.tip()
		}
	}

	txids := make([]chainhash.Hash, 0, len(c.txs))
	for txid := range c.txs {
		txids = append(txids, txid)
	}
	sort.Slice(txids, func(i, j int) bool {
		return txids[i].String() < txids[j].String()
	})

	res := &chain.SinceBlock{LastBlock: c.blocks[c.tip()]}
	for _, txid := range txids {
		tx := c.txs[txid]
		block := c.blockOf(tx)
		if block != nil {
			if h, _ := c.onMain(*block); h <= from {
				continue
			}
		}

		res.Entries = append(res.Entries, chain.WalletEntry{
			TxID:          tx.txid,
			Address:       tx.address,
			Category:      chain.CategoryReceive,
			Amount:        tx.amount,
			Confirmations: c.confirmations(tx),
			BlockHash:     block,
			Conflicts:     append([]chainhash.Hash(nil), tx.conflicts...),
		})
	}

	return res, nil
}

func (c *fakeChain) WalletTx(txid *chainhash.Hash) (*chain.WalletTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failing("WalletTx"); err != nil {
		return nil, err
	}

	tx, ok := c.txs[*txid]
	if !ok {
		return nil, chain.ErrTxNotFound
	}

	return &chain.WalletTx{
		TxID:          tx.txid,
		Confirmations: c.confirmations(tx),
		BlockHash:     c.blockOf(tx),
		Conflicts:     append([]chainhash.Hash(nil), tx.conflicts...),
	}, nil
}

func (c *fakeChain) BlockHeader(block *chainhash.Hash) (*chain.HeaderInfo,
	error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failing("BlockHeader"); err != nil {
		return nil, err
	}

	height, ok := c.heights[*block]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	_, main := c.onMain(*block)

	return &chain.HeaderInfo{Hash: *block, Height: height, MainChain: main}, nil
}
