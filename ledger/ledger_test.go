// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/quorum"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDomain = "https://hot.example.org"

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	updates []StateUpdate
}

func (m *memStore) InsertUpdate(_ context.Context, u StateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updates = append(m.updates, u)
	return nil
}

func (m *memStore) Updates(context.Context) ([]StateUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]StateUpdate(nil), m.updates...), nil
}

// mockStore is a testify mock of Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertUpdate(ctx context.Context, u StateUpdate) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockStore) Updates(ctx context.Context) ([]StateUpdate, error) {
	args := m.Called(ctx)
	return args.Get(0).([]StateUpdate), args.Error(1)
}

type testHarness struct {
	t       *testing.T
	signers []quorum.Signer
	params  Params
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	a, err := quorum.NewP256Signer(p256)
	require.NoError(t, err)

	secp, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	b := quorum.NewSecp256k1Signer(secp)

	p256, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	c, err := quorum.NewP256Signer(p256)
	require.NoError(t, err)

	return &testHarness{
		t:       t,
		signers: []quorum.Signer{a, b, c},
		params: Params{
			Keys: quorum.NewKeySet(
				a.PublicKey(), b.PublicKey(), c.PublicKey(),
			),
			RequiredConfirmations: 2,
			Domain:                testDomain,
		},
	}
}

// newRequest returns a new_withdrawal_request update and the signed data of
// the request it creates.
func (h *testHarness) newRequest(amount btcutil.Amount) (StateUpdate,
	quorum.ConfirmationData) {

	u := NewStateUpdate(&WithdrawalRequestInfo{
		ID:      uuid.New(),
		User:    "alice",
		Address: "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080",
		Amount:  amount,
	})
	info := u.Body.(*WithdrawalRequestInfo)
	req := &WithdrawalRequest{
		ID:      info.ID,
		User:    info.User,
		Address: info.Address,
		Amount:  info.Amount,
		Created: u.Created,
	}

	return u, req.ConfirmationData()
}

func (h *testHarness) decision(signer int, a quorum.Action,
	data quorum.ConfirmationData) StateUpdate {

	h.t.Helper()

	url := quorum.BindingURL(testDomain, a)
	sig, err := h.signers[signer].Sign(
		quorum.BindingMessage(testDomain, a, data), 1,
	)
	require.NoError(h.t, err)

	d, err := NewWithdrawalRequestDecision(data, sig, a, url)
	require.NoError(h.t, err)

	return NewStateUpdate(d)
}

func startEngine(t *testing.T, store Store, p Params) *Engine {
	t.Helper()

	e := NewEngine(EngineConfig{Store: store, Params: p})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)

	return e
}

// TestRequestLifecycle walks a request through confirmations and execution
// and checks the derived status at every step.
func TestRequestLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	e := startEngine(t, &memStore{}, h.params)

	create, data := h.newRequest(1000)
	require.NoError(t, e.SubmitWait(ctx, create))

	status := func() Status {
		var st Status
		e.View(func(s *State) {
			st = s.WithdrawalRequests[data.ID].Status(s.Params())
		})
		return st
	}
	require.Equal(t, StatusPending, status())

	require.NoError(t, e.SubmitWait(ctx, h.decision(0, quorum.ActionConfirm, data)))
	require.Equal(t, StatusPending, status())

	// Executing before the quorum is reached is refused.
	err := e.SubmitWait(ctx, NewStateUpdate(&WithdrawalExecuted{
		RequestID: data.ID, TxID: "00", Fee: 141,
	}))
	require.ErrorIs(t, err, ErrNotConfirmed)

	require.NoError(t, e.SubmitWait(ctx, h.decision(1, quorum.ActionConfirm, data)))
	require.Equal(t, StatusConfirmed, status())

	require.NoError(t, e.SubmitWait(ctx, NewStateUpdate(&WithdrawalExecuted{
		RequestID: data.ID, TxID: "00", Fee: 141,
	})))
	require.Equal(t, StatusExecuted, status())

	// Terminal requests take no further decisions.
	err = e.SubmitWait(ctx, h.decision(2, quorum.ActionReject, data))
	require.ErrorIs(t, err, ErrRequestTerminal)

	snap := e.Snapshot()
	require.Len(t, snap.Requests(StatusExecuted), 1)
	require.Empty(t, snap.Requests(StatusPending, StatusConfirmed))
}

// TestDecisionValidation covers the decision transition failures.
func TestDecisionValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	create, data := h.newRequest(5000)
	base, errs := Fold(h.params, []StateUpdate{
		create, h.decision(0, quorum.ActionConfirm, data),
	})
	require.Empty(t, errs)

	outsider, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	other := data
	other.Amount++

	tests := []struct {
		name   string
		update func() StateUpdate
		err    error
	}{{
		name: "unknown request",
		update: func() StateUpdate {
			d := data
			d.ID = uuid.New()
			return h.decision(1, quorum.ActionConfirm, d)
		},
		err: ErrUnknownRequest,
	}, {
		name: "duplicate operator",
		update: func() StateUpdate {
			return h.decision(0, quorum.ActionReject, data)
		},
		err: ErrDuplicateDecision,
	}, {
		name: "message for other amount",
		update: func() StateUpdate {
			u := h.decision(1, quorum.ActionConfirm, other)
			u.Body.(*WithdrawalRequestDecision).RequestID = data.ID
			return u
		},
		err: ErrMessageMismatch,
	}, {
		name: "confirm url on rejection",
		update: func() StateUpdate {
			u := h.decision(1, quorum.ActionConfirm, data)
			u.Body.(*WithdrawalRequestDecision).Type = quorum.ActionReject
			return u
		},
		err: ErrURLMismatch,
	}, {
		name: "foreign domain",
		update: func() StateUpdate {
			url := "https://evil.example.org" + quorum.ConfirmURI
			sig, err := h.signers[1].Sign(url+":"+data.Canonical(), 1)
			require.NoError(t, err)
			d, err := NewWithdrawalRequestDecision(
				data, sig, quorum.ActionConfirm, url,
			)
			require.NoError(t, err)
			return NewStateUpdate(d)
		},
		err: ErrURLMismatch,
	}, {
		name: "unknown operator",
		update: func() StateUpdate {
			s := quorum.NewSecp256k1Signer(outsider)
			url := quorum.BindingURL(testDomain, quorum.ActionConfirm)
			sig, err := s.Sign(url+":"+data.Canonical(), 1)
			require.NoError(t, err)
			d, err := NewWithdrawalRequestDecision(
				data, sig, quorum.ActionConfirm, url,
			)
			require.NoError(t, err)
			return NewStateUpdate(d)
		},
		err: quorum.ErrUnknownOperator,
	}, {
		name: "bad signature",
		update: func() StateUpdate {
			u := h.decision(1, quorum.ActionConfirm, data)
			u.Body.(*WithdrawalRequestDecision).Signature.Nonce++
			return u
		},
		err: quorum.ErrInvalidSignature,
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			next, err := base.Next(test.update())
			require.ErrorIs(t, err, test.err)
			require.Nil(t, next)

			var terr *TransitionError
			require.ErrorAs(t, err, &terr)
			require.Equal(t, KindWithdrawalRequestDecision, terr.Kind)
		})
	}

	// A failed transition leaves the base state untouched.
	require.Len(t, base.WithdrawalRequests[data.ID].Confirmations, 1)
	require.Empty(t, base.WithdrawalRequests[data.ID].Rejections)
}

// TestRejection checks two rejections make the request terminal.
func TestRejection(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	create, data := h.newRequest(5000)
	s, errs := Fold(h.params, []StateUpdate{
		create,
		h.decision(0, quorum.ActionConfirm, data),
		h.decision(1, quorum.ActionReject, data),
	})
	require.Empty(t, errs)
	require.Equal(t, StatusPending, s.WithdrawalRequests[data.ID].Status(h.params))

	s, err := s.Next(h.decision(2, quorum.ActionReject, data))
	require.NoError(t, err)
	require.Equal(t, StatusPending, s.WithdrawalRequests[data.ID].Status(h.params))

	// With a margin of one the two rejections decide the request.
	p := h.params
	p.RequiredConfirmations = 1
	require.Equal(t, StatusRejected, s.WithdrawalRequests[data.ID].Status(p))
}

// TestReplayDeterminism checks a restarted engine folds the stored log into
// the same state the running engine held.
func TestReplayDeterminism(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	store := &memStore{}
	e := startEngine(t, store, h.params)

	for i := 0; i < 5; i++ {
		create, data := h.newRequest(btcutil.Amount(1000 * (i + 1)))
		require.NoError(t, e.SubmitWait(ctx, create))
		require.NoError(t, e.SubmitWait(
			ctx, h.decision(i%3, quorum.ActionConfirm, data),
		))
		if i%2 == 0 {
			require.NoError(t, e.SubmitWait(
				ctx, h.decision((i+1)%3, quorum.ActionConfirm, data),
			))
		}
	}

	invitor := h.signers[0].PublicKey().String()
	inv := NewInvite(e.Snapshot(), invitor, "first")
	changed := e.Changed()
	require.NoError(t, e.Submit(NewStateUpdate(inv)))
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatalf("invite was not applied")
	}

	snap := e.Snapshot()
	require.Len(t, snap.InvitesBy(invitor), 1)

	restarted := startEngine(t, store, h.params)
	require.Equal(t, snap, restarted.Snapshot())

	folded, errs := Fold(h.params, store.updates)
	require.Empty(t, errs)
	require.Equal(t, snap, folded)
}

// TestTransitionFailureNotStored makes sure a rejected update never reaches
// the store.
func TestTransitionFailureNotStored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	store := &mockStore{}
	store.On("Updates", mock.Anything).Return([]StateUpdate{}, nil)

	e := startEngine(t, store, h.params)

	_, data := h.newRequest(1000)
	err := e.SubmitWait(
		context.Background(), h.decision(0, quorum.ActionConfirm, data),
	)
	require.ErrorIs(t, err, ErrUnknownRequest)

	store.AssertNotCalled(t, "InsertUpdate", mock.Anything, mock.Anything)
	require.Zero(t, e.Snapshot().Applied)
}

// TestUnknownOperatorNotStored checks a decision signed outside the operator
// set is refused without being written to the ledger.
func TestUnknownOperatorNotStored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	store := &memStore{}
	e := startEngine(t, store, h.params)
	ctx := context.Background()

	create, data := h.newRequest(1000)
	require.NoError(t, e.SubmitWait(ctx, create))

	outsider, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	h.signers = append(h.signers, quorum.NewSecp256k1Signer(outsider))

	for _, a := range []quorum.Action{
		quorum.ActionConfirm, quorum.ActionReject,
	} {
		err := e.SubmitWait(ctx, h.decision(len(h.signers)-1, a, data))
		require.ErrorIs(t, err, quorum.ErrUnknownOperator)
	}

	stored, err := store.Updates(ctx)
	require.NoError(t, err)
	require.Equal(t, []StateUpdate{create}, stored)

	req := e.Snapshot().WithdrawalRequests[data.ID]
	require.Empty(t, req.Confirmations)
	require.Empty(t, req.Rejections)
}

// TestPersistFailureLeavesStateUnchanged checks an update the store fails to
// persist is dropped without touching the state.
func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	errDisk := errors.New("disk full")

	store := &mockStore{}
	store.On("Updates", mock.Anything).Return([]StateUpdate{}, nil)
	store.On("InsertUpdate", mock.Anything, mock.Anything).Return(errDisk).Once()
	store.On("InsertUpdate", mock.Anything, mock.Anything).Return(nil)

	e := startEngine(t, store, h.params)
	ctx := context.Background()

	create, data := h.newRequest(1000)
	err := e.SubmitWait(ctx, create)
	require.ErrorIs(t, err, errDisk)

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, create.ID, perr.UpdateID)
	require.NotContains(t, e.Snapshot().WithdrawalRequests, data.ID)

	// The same update is accepted once the store recovers.
	require.NoError(t, e.SubmitWait(ctx, create))
	require.Contains(t, e.Snapshot().WithdrawalRequests, data.ID)
	store.AssertNumberOfCalls(t, "InsertUpdate", 2)
}

// TestReplaySkipsForeignUpdates checks replay tolerates entries that do not
// apply and aborts on store errors.
func TestReplaySkipsForeignUpdates(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	create, data := h.newRequest(1000)

	store := &mockStore{}
	store.On("Updates", mock.Anything).Return([]StateUpdate{
		h.decision(0, quorum.ActionConfirm, data), create, create,
	}, nil)

	e := startEngine(t, store, h.params)
	snap := e.Snapshot()
	require.EqualValues(t, 1, snap.Applied)
	require.Contains(t, snap.WithdrawalRequests, data.ID)

	broken := &mockStore{}
	broken.On("Updates", mock.Anything).Return(
		[]StateUpdate(nil), errors.New("io"),
	)
	e2 := NewEngine(EngineConfig{Store: broken, Params: h.params})
	defer e2.Stop()
	require.Error(t, e2.Start(context.Background()))
}

// TestAwaitChangeTimeout checks a long poll returns false on timeout.
func TestAwaitChangeTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := startEngine(t, &memStore{}, h.params)

	start := time.Now()
	require.False(t, e.AwaitChange(context.Background(), 50*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	e.Stop()
	require.ErrorIs(t, e.Submit(NewStateUpdate(&Signup{})), ErrEngineStopped)
}

// TestInvitesAndSignup covers invite generation and use.
func TestInvitesAndSignup(t *testing.T) {
	t.Parallel()

	s := NewState(Params{})
	inv := NewInvite(s, "op", "label")

	s, err := s.Next(NewStateUpdate(inv))
	require.NoError(t, err)

	_, err = s.Next(NewStateUpdate(inv))
	require.ErrorIs(t, err, ErrInviteExists)

	next := NewInvite(s, "op", "other")
	require.NotEqual(t, inv.Invite, next.Invite)

	s, err = s.Next(NewStateUpdate(&Signup{User: "bob", Invite: inv.Invite}))
	require.NoError(t, err)
	require.Equal(t, inv.Invite, s.Users["bob"].Invite)

	_, err = s.Next(NewStateUpdate(&Signup{User: "carol", Invite: inv.Invite}))
	require.ErrorIs(t, err, ErrInviteUsed)

	_, err = s.Next(NewStateUpdate(&Signup{User: "bob", Invite: next.Invite}))
	require.ErrorIs(t, err, ErrUserExists)

	_, err = s.Next(NewStateUpdate(&Signup{User: "dave", Invite: uuid.New()}))
	require.ErrorIs(t, err, ErrUnknownInvite)

	require.Equal(t, []InviteRecord{*inv}, s.InvitesBy("op"))
	require.Empty(t, s.InvitesBy("someone"))
}

// TestDecodeUpdateBody checks every kind decodes to its own body and unknown
// kinds are refused.
func TestDecodeUpdateBody(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	create, data := h.newRequest(1000)

	bodies := []UpdateBody{
		create.Body,
		h.decision(0, quorum.ActionReject, data).Body,
		&WithdrawalExecuted{RequestID: data.ID, TxID: "ab", Fee: 10},
		&InviteRecord{Invite: uuid.New(), Invitor: "op", Label: "l"},
		&Signup{User: "u", Invite: uuid.New()},
	}
	for _, body := range bodies {
		b, err := EncodeUpdateBody(body)
		require.NoError(t, err)

		decoded, err := DecodeUpdateBody(body.Kind(), b)
		require.NoError(t, err)
		require.Equal(t, body, decoded)
	}

	_, err := DecodeUpdateBody("deposit", []byte("{}"))
	require.ErrorIs(t, err, ErrUnknownKind)
}
