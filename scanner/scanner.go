// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package scanner watches the hot wallet for incoming deposits and reports
// their confirmation depth, cancelling deposits that are reorged out or
// replaced.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/hexstody/hexstody-btc/chain"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultPollInterval is the time between two background poll cycles.
	DefaultPollInterval = 30 * time.Second

	// DefaultConfirmationsLimit is the depth after which a deposit is no
	// longer tracked.
	DefaultConfirmationsLimit = 6
)

// errTipMoved aborts a cycle that saw a block above the tip it read first.
var errTipMoved = errors.New("chain tip moved during poll")

// Node is the view of the full node the scanner polls. It is implemented by
// *chain.Client.
type Node interface {
	BestBlock() (chain.BlockStamp, error)
	ListSinceBlock(block *chainhash.Hash) (*chain.SinceBlock, error)
	WalletTx(txid *chainhash.Hash) (*chain.WalletTx, error)
	BlockHeader(block *chainhash.Hash) (*chain.HeaderInfo, error)
}

// Config holds the dependencies and parameters of a Scanner.
type Config struct {
	// Node is polled for wallet transactions.
	Node Node

	// ConfirmationsLimit is the depth at which a deposit is reported for
	// the last time.
	ConfirmationsLimit int64

	// Ticker drives background polling. When nil a ticker with
	// DefaultPollInterval is used.
	Ticker ticker.Ticker

	// Trigger optionally wakes the poll loop early, typically from ZMQ
	// block and transaction notifications.
	Trigger <-chan struct{}
}

// deposit is a tracked incoming transaction.
type deposit struct {
	txid          chainhash.Hash
	address       string
	vout          uint32
	amount        btcutil.Amount
	confirmations int64
	blockHash     *chainhash.Hash
	conflicts     []chainhash.Hash
}

func (d *deposit) update() *Update {
	return &Update{
		TxID:          d.txid,
		Address:       d.address,
		Vout:          d.vout,
		Amount:        d.amount,
		Confirmations: d.confirmations,
		Conflicts:     append([]chainhash.Hash(nil), d.conflicts...),
	}
}

func (d *deposit) cancel() *Cancel {
	return &Cancel{
		TxID:    d.txid,
		Address: d.address,
		Vout:    d.vout,
		Amount:  d.amount,
	}
}

// Scanner polls the node and buffers deposit events until they are drained.
type Scanner struct {
	started int32 // To be used atomically.
	stopped int32 // To be used atomically.

	cfg Config

	// cycleMtx serializes poll cycles and guards the fields below it.
	cycleMtx   sync.Mutex
	checkpoint *chain.BlockStamp
	tracked    map[chainhash.Hash]*deposit
	canceled   map[chainhash.Hash]struct{}

	// bufMtx guards the event buffer and the stamp reported with it.
	bufMtx  sync.Mutex
	events  []Event
	stamp   chain.BlockStamp
	arrived chan struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// New returns a scanner for cfg.
func New(cfg Config) *Scanner {
	if cfg.ConfirmationsLimit <= 0 {
		cfg.ConfirmationsLimit = DefaultConfirmationsLimit
	}
	if cfg.Ticker == nil {
		cfg.Ticker = ticker.New(DefaultPollInterval)
	}

	return &Scanner{
		cfg:      cfg,
		tracked:  make(map[chainhash.Hash]*deposit),
		canceled: make(map[chainhash.Hash]struct{}),
		arrived:  make(chan struct{}),
		quit:     make(chan struct{}),
	}
}

// Start launches the background poll loop.
func (s *Scanner) Start() error {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return nil
	}

	log.Infof("Starting deposit scanner (confirmations limit %d)",
		s.cfg.ConfirmationsLimit)

	s.cfg.Ticker.Resume()

	s.wg.Add(1)
	go s.pollLoop()

	return nil
}

// Stop halts the poll loop and waits for it to exit.
func (s *Scanner) Stop() {
	if atomic.AddInt32(&s.stopped, 1) != 1 {
		return
	}

	close(s.quit)
	s.cfg.Ticker.Stop()
	s.wg.Wait()
}

func (s *Scanner) pollLoop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Poll once right away so the first drain has a checkpoint.
	_ = s.Poll(ctx)

	for {
		select {
		case <-s.cfg.Ticker.Ticks():
		case <-s.cfg.Trigger:
		case <-s.quit:
			return
		}

		_ = s.Poll(ctx)
	}
}

// Poll runs one poll cycle. Cycles are serialized. On error nothing is
// changed: the checkpoint, the tracked set and the buffer stay as they were.
func (s *Scanner) Poll(ctx context.Context) error {
	s.cycleMtx.Lock()
	defer s.cycleMtx.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.cycle()
	if err != nil {
		pollErrors.Inc()
		log.Errorf("Poll cycle failed: %v", err)
		return err
	}

	s.checkpoint = &res.tip
	s.tracked = res.tracked
	s.canceled = res.canceled

	scannedHeight.Set(float64(res.tip.Height))
	trackedDeposits.Set(float64(len(res.tracked)))

	s.publish(res.tip, res.events)

	return nil
}

// cycleResult is the outcome of a cycle, committed only when the whole cycle
// succeeded.
type cycleResult struct {
	tip      chain.BlockStamp
	tracked  map[chainhash.Hash]*deposit
	canceled map[chainhash.Hash]struct{}
	events   []Event
}

func (s *Scanner) cycle() (*cycleResult, error) {
	tip, err := s.cfg.Node.BestBlock()
	if err != nil {
		return nil, fmt.Errorf("best block: %w", err)
	}

	var since *chainhash.Hash
	if s.checkpoint != nil {
		since = &s.checkpoint.Hash
	}
	listed, err := s.cfg.Node.ListSinceBlock(since)
	if err != nil {
		return nil, fmt.Errorf("list since block: %w", err)
	}

	res := &cycleResult{
		tip:      tip,
		tracked:  make(map[chainhash.Hash]*deposit, len(s.tracked)),
		canceled: make(map[chainhash.Hash]struct{}, len(s.canceled)),
	}
	for txid, d := range s.tracked {
		res.tracked[txid] = d
	}
	for txid := range s.canceled {
		res.canceled[txid] = struct{}{}
	}

	fresh := s.freshEntries(listed.Entries)

	// Deposits replaced by a fresh transaction are cancelled below and must
	// not be reported as updated first.
	replaced := make(map[chainhash.Hash]struct{})
	for _, e := range fresh {
		for _, c := range e.Conflicts {
			if _, ok := res.tracked[c]; ok {
				replaced[c] = struct{}{}
			}
		}
	}

	var cancels, updates []Event

	for _, txid := range sortedHashes(s.tracked) {
		if _, ok := replaced[txid]; ok {
			continue
		}

		old := s.tracked[txid]
		cur, gone, err := s.refresh(old, tip)
		if err != nil {
			return nil, err
		}

		switch {
		case gone:
			cancels = append(cancels, old.cancel())
			delete(res.tracked, txid)
			res.canceled[txid] = struct{}{}
			continue

		case reorged(old, cur):
			cancels = append(cancels, old.cancel())
			updates = append(updates, cur.update())

		case cur.confirmations != old.confirmations ||
			!sameHashes(cur.conflicts, old.conflicts):

			updates = append(updates, cur.update())
		}

		if cur.confirmations >= s.cfg.ConfirmationsLimit {
			delete(res.tracked, txid)
		} else {
			res.tracked[txid] = cur
		}
	}

	for _, e := range fresh {
		for _, c := range e.Conflicts {
			old, ok := res.tracked[c]
			if !ok {
				continue
			}
			log.Debugf("Deposit %v replaced by %v", c, e.TxID)

			delete(res.tracked, c)
			res.canceled[c] = struct{}{}

			// A deposit first seen in this cycle was never reported,
			// so its update is dropped instead of being cancelled.
			if _, known := s.tracked[c]; !known {
				updates = withoutTx(updates, c)
				continue
			}
			cancels = append(cancels, old.cancel())
		}

		d := &deposit{
			txid:      e.TxID,
			address:   e.Address,
			vout:      e.Vout,
			amount:    e.Amount,
			blockHash: e.BlockHash,
			conflicts: e.Conflicts,
		}
		if err := s.setDepth(d, tip); err != nil {
			return nil, err
		}

		updates = append(updates, d.update())
		delete(res.canceled, e.TxID)
		if d.confirmations < s.cfg.ConfirmationsLimit {
			res.tracked[e.TxID] = d
		}
	}

	res.events = append(cancels, updates...)
	return res, nil
}

// freshEntries returns the receive entries of untracked transactions, one
// per transaction, in txid order. Transactions cancelled earlier are only
// picked up again once they confirm.
func (s *Scanner) freshEntries(entries []chain.WalletEntry) []chain.WalletEntry {
	seen := make(map[chainhash.Hash]struct{})
	var fresh []chain.WalletEntry
	for _, e := range entries {
		if e.Category != chain.CategoryReceive || e.Confirmations < 0 {
			continue
		}
		if _, ok := s.tracked[e.TxID]; ok {
			continue
		}
		if _, ok := s.canceled[e.TxID]; ok && e.Confirmations == 0 {
			continue
		}
		if _, ok := seen[e.TxID]; ok {
			continue
		}
		seen[e.TxID] = struct{}{}
		fresh = append(fresh, e)
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].TxID.String() < fresh[j].TxID.String()
	})
	return fresh
}

// refresh re-reads a tracked deposit. gone is set when the wallet no longer
// knows the transaction or a conflicting transaction confirmed.
func (s *Scanner) refresh(old *deposit, tip chain.BlockStamp) (*deposit,
	bool, error) {

	tx, err := s.cfg.Node.WalletTx(&old.txid)
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		return nil, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("wallet tx %v: %w", old.txid, err)
	case tx.Confirmations < 0:
		return nil, true, nil
	}

	cur := *old
	cur.blockHash = tx.BlockHash
	cur.conflicts = tx.Conflicts
	if err := s.setDepth(&cur, tip); err != nil {
		return nil, false, err
	}

	return &cur, false, nil
}

// setDepth computes the confirmations of d against tip. A block that left
// the best chain counts as unmined.
func (s *Scanner) setDepth(d *deposit, tip chain.BlockStamp) error {
	if d.blockHash == nil {
		d.confirmations = 0
		return nil
	}

	header, err := s.cfg.Node.BlockHeader(d.blockHash)
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		d.blockHash = nil
		d.confirmations = 0
		return nil
	case err != nil:
		return fmt.Errorf("block header %v: %w", d.blockHash, err)
	}

	if !header.MainChain {
		d.blockHash = nil
		d.confirmations = 0
		return nil
	}
	if header.Height > tip.Height {
		return errTipMoved
	}

	d.confirmations = int64(tip.Height-header.Height) + 1
	return nil
}

// reorged reports whether the block a deposit was reported in is no longer
// the block it is in.
func reorged(old, cur *deposit) bool {
	if old.blockHash == nil {
		return false
	}
	return cur.blockHash == nil || *cur.blockHash != *old.blockHash
}

func (s *Scanner) publish(tip chain.BlockStamp, events []Event) {
	s.bufMtx.Lock()
	defer s.bufMtx.Unlock()

	s.stamp = tip
	if len(events) == 0 {
		return
	}

	log.Debugf("Poll at height %d produced %d events: %v", tip.Height,
		len(events), logClosure(func() string {
			return spew.Sdump(events)
		}))

	s.events = append(s.events, events...)
	close(s.arrived)
	s.arrived = make(chan struct{})
}

// Drain runs a poll cycle and returns every buffered event. When nothing is
// buffered it waits up to timeout for events to arrive; an empty batch is
// returned on timeout. Each event is returned by exactly one Drain call.
func (s *Scanner) Drain(ctx context.Context, timeout time.Duration) *Batch {
	if err := s.Poll(ctx); err != nil {
		log.Debugf("On demand poll failed, waiting for buffered "+
			"events: %v", err)
	}

	s.bufMtx.Lock()
	if len(s.events) > 0 {
		defer s.bufMtx.Unlock()
		return s.takeLocked()
	}
	arrived := s.arrived
	s.bufMtx.Unlock()

	select {
	case <-arrived:
	case <-time.After(timeout):
	case <-ctx.Done():
	case <-s.quit:
	}

	s.bufMtx.Lock()
	defer s.bufMtx.Unlock()

	return s.takeLocked()
}

func (s *Scanner) takeLocked() *Batch {
	b := &Batch{
		Hash:   s.stamp.Hash,
		Height: s.stamp.Height,
		Events: s.events,
	}
	s.events = nil

	return b
}

// Checkpoint returns the tip of the last completed cycle, if any.
func (s *Scanner) Checkpoint() (chain.BlockStamp, bool) {
	s.cycleMtx.Lock()
	defer s.cycleMtx.Unlock()

	if s.checkpoint == nil {
		return chain.BlockStamp{}, false
	}
	return *s.checkpoint, true
}

func sortedHashes(m map[chainhash.Hash]*deposit) []chainhash.Hash {
	hashes := make([]chainhash.Hash, 0, len(m))
	for h := range m {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].String() < hashes[j].String()
	})
	return hashes
}

func withoutTx(events []Event, txid chainhash.Hash) []Event {
	out := events[:0]
	for _, e := range events {
		if e.Hash() != txid {
			out = append(out, e)
		}
	}
	return out
}

func sameHashes(a, b []chainhash.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
