// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package withdraw authorizes withdrawals against the operator quorum and
// pays them out of the hot wallet.
package withdraw

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/davecgh/go-spew/spew"
	"github.com/hexstody/hexstody-btc/chain"
	"github.com/hexstody/hexstody-btc/quorum"
)

// errNoRawTx is returned when the node omits the raw payout transaction.
var errNoRawTx = errors.New("node returned no raw transaction")

// Node is the payout side of the full node. It is implemented by
// *chain.Client.
type Node interface {
	SendToAddress(addr btcutil.Address, amount btcutil.Amount,
		comment string) (*chainhash.Hash, error)
	WalletTx(txid *chainhash.Hash) (*chain.WalletTx, error)
}

// Config holds the parameters of an Authorizer. It is not changed after
// the authorizer is created.
type Config struct {
	Keys                  *quorum.KeySet
	RequiredConfirmations int
	Domain                string

	// UnderLimit is the largest amount ExecuteUnderLimit pays without a
	// quorum.
	UnderLimit btcutil.Amount

	ChainParams *chaincfg.Params
	Node        Node

	// RelayFeePerKb is the relay fee used for the dust check. Zero means
	// txrules.DefaultRelayFeePerKb.
	RelayFeePerKb btcutil.Amount
}

// Authorizer checks signature quorums and executes withdrawals.
type Authorizer struct {
	cfg Config
}

// New returns an authorizer for cfg.
func New(cfg Config) *Authorizer {
	if cfg.RelayFeePerKb == 0 {
		cfg.RelayFeePerKb = txrules.DefaultRelayFeePerKb
	}
	return &Authorizer{cfg: cfg}
}

// Decide tallies the signatures of w without executing anything.
func (a *Authorizer) Decide(w *quorum.ConfirmedWithdrawal) quorum.Decision {
	return quorum.Decide(
		a.cfg.Keys, a.cfg.RequiredConfirmations, a.cfg.Domain, w,
	)
}

// AuthorizeAndExecute pays out w if its confirmations outweigh its
// rejections by the required quorum. Otherwise a *QuorumError is returned
// and the node is not contacted.
func (a *Authorizer) AuthorizeAndExecute(ctx context.Context,
	w *quorum.ConfirmedWithdrawal) (*Receipt, error) {

	decision := a.Decide(w)
	if !decision.Authorized() {
		log.Warnf("Refusing withdrawal %v: %d confirmations, %d "+
			"rejections, %d required", w.ID, decision.Confirmations,
			decision.Rejections, decision.Required)
		return nil, &QuorumError{Decision: decision}
	}

	receipt, err := a.execute(ctx, w)
	if err != nil {
		return nil, err
	}
	executed.WithLabelValues(routeQuorum).Inc()

	return receipt, nil
}

// ExecuteUnderLimit pays out w without checking signatures. Only amounts up
// to the configured limit are accepted.
func (a *Authorizer) ExecuteUnderLimit(ctx context.Context,
	w *quorum.ConfirmedWithdrawal) (*Receipt, error) {

	if btcutil.Amount(w.Amount) > a.cfg.UnderLimit {
		return nil, fmt.Errorf("%w: %v > %v", ErrOverLimit,
			btcutil.Amount(w.Amount), a.cfg.UnderLimit)
	}

	receipt, err := a.execute(ctx, w)
	if err != nil {
		return nil, err
	}
	executed.WithLabelValues(routeUnderLimit).Inc()

	return receipt, nil
}

func (a *Authorizer) execute(ctx context.Context,
	w *quorum.ConfirmedWithdrawal) (*Receipt, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr, err := btcutil.DecodeAddress(w.Address, a.cfg.ChainParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !addr.IsForNet(a.cfg.ChainParams) {
		return nil, fmt.Errorf("%w: %s is not a %s address",
			ErrInvalidAddress, w.Address, a.cfg.ChainParams.Name)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	amount := btcutil.Amount(w.Amount)
	payout := wire.NewTxOut(int64(amount), pkScript)
	if txrules.IsDustOutput(payout, a.cfg.RelayFeePerKb) {
		return nil, fmt.Errorf("%w: %v to %s", ErrDustAmount, amount,
			w.Address)
	}

	txid, err := a.cfg.Node.SendToAddress(addr, amount, w.ID.String())
	if err != nil {
		return nil, &ExecutionError{Stage: StageSend, Err: err}
	}

	log.Infof("Withdrawal %v of %v to %s broadcast as %v", w.ID, amount,
		w.Address, txid)

	tx, err := a.cfg.Node.WalletTx(txid)
	if err != nil {
		return nil, &ExecutionError{
			Stage: StageLookup, TxID: txid.String(), Err: err,
		}
	}
	if tx.Tx == nil {
		return nil, &ExecutionError{
			Stage: StageDecode, TxID: txid.String(),
			Err: errNoRawTx,
		}
	}

	receipt := &Receipt{
		ID:              w.ID,
		TxID:            *txid,
		Fee:             tx.Fee,
		InputAddresses:  inputAddresses(tx),
		OutputAddresses: outputAddresses(tx.Tx, a.cfg.ChainParams),
	}

	log.Debugf("Withdrawal receipt: %v", newLogClosure(func() string {
		return spew.Sdump(receipt)
	}))

	return receipt, nil
}
