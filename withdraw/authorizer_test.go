// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package withdraw

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/chain"
	"github.com/hexstody/hexstody-btc/quorum"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDomain = "https://hot.example.org"

var netParams = &chaincfg.RegressionNetParams

// mockNode is a testify mock of Node.
type mockNode struct {
	mock.Mock
}

func (m *mockNode) SendToAddress(addr btcutil.Address, amount btcutil.Amount,
	comment string) (*chainhash.Hash, error) {

	args := m.Called(addr.EncodeAddress(), amount, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

func (m *mockNode) WalletTx(txid *chainhash.Hash) (*chain.WalletTx, error) {
	args := m.Called(*txid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.WalletTx), args.Error(1)
}

func testAddress(t *testing.T, seed byte) btcutil.Address {
	t.Helper()

	var hash [20]byte
	hash[0] = seed
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash[:], netParams)
	require.NoError(t, err)

	return addr
}

type testHarness struct {
	t       *testing.T
	signers []quorum.Signer
	node    *mockNode
	auth    *Authorizer
}

// newHarness returns an authorizer with three operators of which two must
// confirm.
func newHarness(t *testing.T) *testHarness {
	t.Helper()

	var signers []quorum.Signer
	for i := 0; i < 2; i++ {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		s, err := quorum.NewP256Signer(priv)
		require.NoError(t, err)
		signers = append(signers, s)
	}
	secp, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signers = append(signers, quorum.NewSecp256k1Signer(secp))

	keys := make([]*quorum.PublicKey, 0, len(signers))
	for _, s := range signers {
		keys = append(keys, s.PublicKey())
	}

	node := &mockNode{}
	return &testHarness{
		t:       t,
		signers: signers,
		node:    node,
		auth: New(Config{
			Keys:                  quorum.NewKeySet(keys...),
			RequiredConfirmations: 2,
			Domain:                testDomain,
			UnderLimit:            50_000,
			ChainParams:           netParams,
			Node:                  node,
			RelayFeePerKb:         1000,
		}),
	}
}

func (h *testHarness) withdrawal(amount uint64) *quorum.ConfirmedWithdrawal {
	return &quorum.ConfirmedWithdrawal{
		ID:        uuid.New(),
		User:      "alice",
		Address:   testAddress(h.t, 1).EncodeAddress(),
		CreatedAt: quorum.FormatTime(time.Now()),
		Amount:    amount,
	}
}

func (h *testHarness) sign(w *quorum.ConfirmedWithdrawal, a quorum.Action,
	signer int) {

	msg := quorum.BindingMessage(testDomain, a, w.Data())
	sig, err := h.signers[signer].Sign(msg, uint64(time.Now().UnixNano()))
	require.NoError(h.t, err)

	if a == quorum.ActionConfirm {
		w.Confirmations = append(w.Confirmations, sig)
	} else {
		w.Rejections = append(w.Rejections, sig)
	}
}

// expectPayout sets up the node for a successful payout of w and returns the
// txid it reports.
func (h *testHarness) expectPayout(w *quorum.ConfirmedWithdrawal) chainhash.Hash {
	dest := testAddress(h.t, 1)
	change := testAddress(h.t, 2)

	destScript, err := txscript.PayToAddrScript(dest)
	require.NoError(h.t, err)
	changeScript, err := txscript.PayToAddrScript(change)
	require.NoError(h.t, err)

	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(int64(w.Amount), destScript))
	msgTx.AddTxOut(wire.NewTxOut(10_000, changeScript))
	msgTx.AddTxOut(wire.NewTxOut(0, []byte{txscript.OP_RETURN}))

	txid := msgTx.TxHash()
	h.node.On("SendToAddress", w.Address, btcutil.Amount(w.Amount),
		w.ID.String()).Return(&txid, nil).Once()
	h.node.On("WalletTx", txid).Return(&chain.WalletTx{
		TxID: txid,
		Fee:  fn.Some(btcutil.Amount(141)),
		Details: []chain.TxDetail{
			{Address: w.Address, Category: chain.CategorySend},
			{Address: "bcrt1qsource", Category: chain.CategoryReceive},
			{Address: "bcrt1qsource", Category: chain.CategoryReceive},
			{Address: "bcrt1qminer", Category: chain.CategoryGenerate},
		},
		Tx: msgTx,
	}, nil).Once()

	return txid
}

// TestAuthorizeAndExecute checks the quorum rule: the confirmations must
// exceed the rejections by the required number.
func TestAuthorizeAndExecute(t *testing.T) {
	t.Parallel()

	type sig struct {
		action quorum.Action
		signer int
	}
	confirm := func(i int) sig { return sig{quorum.ActionConfirm, i} }
	reject := func(i int) sig { return sig{quorum.ActionReject, i} }

	tests := []struct {
		name       string
		sigs       []sig
		authorized bool
	}{
		{
			name: "no signatures",
		},
		{
			name: "one confirmation",
			sigs: []sig{confirm(0)},
		},
		{
			name:       "two confirmations",
			sigs:       []sig{confirm(0), confirm(2)},
			authorized: true,
		},
		{
			name: "one confirmation one rejection",
			sigs: []sig{confirm(0), reject(1)},
		},
		{
			name: "same operator twice",
			sigs: []sig{confirm(1), confirm(1)},
		},
		{
			name: "two confirmations one rejection",
			sigs: []sig{confirm(0), confirm(1), reject(2)},
		},
		{
			name:       "three confirmations",
			sigs:       []sig{confirm(0), confirm(1), confirm(2)},
			authorized: true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			w := h.withdrawal(100_000)
			for _, s := range test.sigs {
				h.sign(w, s.action, s.signer)
			}

			if !test.authorized {
				_, err := h.auth.AuthorizeAndExecute(
					context.Background(), w,
				)
				var qErr *QuorumError
				require.ErrorAs(t, err, &qErr)
				require.Equal(t, 2, qErr.Required)
				h.node.AssertNotCalled(
					t, "SendToAddress", mock.Anything,
					mock.Anything, mock.Anything,
				)
				return
			}

			txid := h.expectPayout(w)
			receipt, err := h.auth.AuthorizeAndExecute(
				context.Background(), w,
			)
			require.NoError(t, err)
			require.Equal(t, txid, receipt.TxID)
			h.node.AssertExpectations(t)
		})
	}
}

// TestConfirmationNotReusableAsRejection checks a confirmation signature
// does not count when presented as a rejection and vice versa.
func TestConfirmationNotReusableAsRejection(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	w := h.withdrawal(100_000)
	h.sign(w, quorum.ActionReject, 0)
	h.sign(w, quorum.ActionReject, 1)

	// Present the rejections as confirmations.
	w.Confirmations, w.Rejections = w.Rejections, nil

	_, err := h.auth.AuthorizeAndExecute(context.Background(), w)
	var qErr *QuorumError
	require.ErrorAs(t, err, &qErr)
	require.Zero(t, qErr.Confirmations)
}

// TestSignaturesBoundToRequest checks signatures over a different amount
// are not counted.
func TestSignaturesBoundToRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	w := h.withdrawal(100_000)
	h.sign(w, quorum.ActionConfirm, 0)
	h.sign(w, quorum.ActionConfirm, 1)
	w.Amount = 200_000

	_, err := h.auth.AuthorizeAndExecute(context.Background(), w)
	var qErr *QuorumError
	require.ErrorAs(t, err, &qErr)
}

// TestReceipt checks the receipt built from the node's view of the payout.
func TestReceipt(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	w := h.withdrawal(100_000)
	h.sign(w, quorum.ActionConfirm, 0)
	h.sign(w, quorum.ActionConfirm, 1)
	txid := h.expectPayout(w)

	receipt, err := h.auth.AuthorizeAndExecute(context.Background(), w)
	require.NoError(t, err)

	require.Equal(t, w.ID, receipt.ID)
	require.Equal(t, fn.Some(btcutil.Amount(141)), receipt.Fee)
	require.Equal(t,
		[]string{"bcrt1qsource", "bcrt1qminer"}, receipt.InputAddresses,
	)
	require.Equal(t, []string{
		testAddress(t, 1).EncodeAddress(),
		testAddress(t, 2).EncodeAddress(),
	}, receipt.OutputAddresses)

	raw, err := json.Marshal(receipt)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, txid.String(), decoded["txid"])
	require.EqualValues(t, 141, decoded["fee"])

	noFee := &Receipt{ID: w.ID, TxID: txid, Fee: fn.None[btcutil.Amount]()}
	raw, err = json.Marshal(noFee)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"fee":null`)
	require.Contains(t, string(raw), `"input_addresses":[]`)
}

// TestExecuteUnderLimit checks the unsigned route only pays up to its limit.
func TestExecuteUnderLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	over := h.withdrawal(50_001)
	_, err := h.auth.ExecuteUnderLimit(context.Background(), over)
	require.ErrorIs(t, err, ErrOverLimit)

	under := h.withdrawal(50_000)
	txid := h.expectPayout(under)
	receipt, err := h.auth.ExecuteUnderLimit(context.Background(), under)
	require.NoError(t, err)
	require.Equal(t, txid, receipt.TxID)

	h.node.AssertExpectations(t)
}

// TestExecuteValidation checks malformed payouts never reach the node.
func TestExecuteValidation(t *testing.T) {
	t.Parallel()

	mainnetAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		make([]byte, 20), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	tests := []struct {
		name    string
		address string
		amount  uint64
		err     error
	}{
		{
			name:    "garbage address",
			address: "not an address",
			amount:  10_000,
			err:     ErrInvalidAddress,
		},
		{
			name:    "other network",
			address: mainnetAddr.EncodeAddress(),
			amount:  10_000,
			err:     ErrInvalidAddress,
		},
		{
			name:   "dust",
			amount: 100,
			err:    ErrDustAmount,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			w := h.withdrawal(test.amount)
			if test.address != "" {
				w.Address = test.address
			}

			_, err := h.auth.ExecuteUnderLimit(context.Background(), w)
			require.ErrorIs(t, err, test.err)
			h.node.AssertNotCalled(
				t, "SendToAddress", mock.Anything,
				mock.Anything, mock.Anything,
			)
		})
	}
}

// TestExecutionError checks node failures are reported with their stage.
func TestExecutionError(t *testing.T) {
	t.Parallel()

	errNode := errors.New("node down")

	t.Run("send", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		w := h.withdrawal(10_000)
		h.node.On("SendToAddress", mock.Anything, mock.Anything,
			mock.Anything).Return(nil, errNode).Once()

		_, err := h.auth.ExecuteUnderLimit(context.Background(), w)
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		require.Equal(t, StageSend, execErr.Stage)
		require.Empty(t, execErr.TxID)
		require.ErrorIs(t, err, errNode)
	})

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		w := h.withdrawal(10_000)
		txid := chainhash.Hash{7}
		h.node.On("SendToAddress", mock.Anything, mock.Anything,
			mock.Anything).Return(&txid, nil).Once()
		h.node.On("WalletTx", txid).Return(nil, errNode).Once()

		_, err := h.auth.ExecuteUnderLimit(context.Background(), w)
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		require.Equal(t, StageLookup, execErr.Stage)
		require.Equal(t, txid.String(), execErr.TxID)
	})
}
