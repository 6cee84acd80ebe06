// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/quorum"
)

// Status is the derived lifecycle state of a withdrawal request.
type Status uint8

const (
	// StatusPending means the request is still collecting decisions.
	StatusPending Status = iota

	// StatusConfirmed means confirmations outweigh rejections by the
	// required margin and the request awaits payout.
	StatusConfirmed

	// StatusRejected means rejections outweigh confirmations by the required
	// margin. It is terminal.
	StatusRejected

	// StatusExecuted means the payout was sent. It is terminal.
	StatusExecuted
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusRejected:
		return "rejected"
	case StatusExecuted:
		return "executed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further decisions may be recorded.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted
}

// Params are the fixed inputs of the fold. They never change during a run.
type Params struct {
	// Keys is the operator key set.
	Keys *quorum.KeySet

	// RequiredConfirmations is the margin T decisions must reach.
	RequiredConfirmations int

	// Domain is the hot wallet domain decisions are bound to. When empty
	// any domain is accepted as long as the path matches the decision.
	Domain string
}

// SignatureRecord is an accepted operator decision.
type SignatureRecord struct {
	Signature quorum.SignatureData `json:"signature"`
	URL       string               `json:"url"`
	Created   time.Time            `json:"created"`
}

// WithdrawalRequest is a user request to move funds out of the hot wallet.
// Its amount and address never change after creation.
type WithdrawalRequest struct {
	ID            uuid.UUID           `json:"id"`
	User          string              `json:"user"`
	Address       string              `json:"address"`
	Amount        btcutil.Amount      `json:"amount"`
	Created       time.Time           `json:"created_at"`
	Confirmations []SignatureRecord   `json:"confirmations"`
	Rejections    []SignatureRecord   `json:"rejections"`
	Execution     *WithdrawalExecuted `json:"execution,omitempty"`
}

// ConfirmationData returns the part of the request operators sign.
func (r *WithdrawalRequest) ConfirmationData() quorum.ConfirmationData {
	return quorum.ConfirmationData{
		ID:        r.ID,
		User:      r.User,
		Address:   r.Address,
		CreatedAt: quorum.FormatTime(r.Created),
		Amount:    uint64(r.Amount),
	}
}

// ConfirmedWithdrawal returns the payout form of the request with every
// recorded decision attached.
func (r *WithdrawalRequest) ConfirmedWithdrawal() *quorum.ConfirmedWithdrawal {
	data := r.ConfirmationData()
	cw := &quorum.ConfirmedWithdrawal{
		ID:        data.ID,
		User:      data.User,
		Address:   data.Address,
		CreatedAt: data.CreatedAt,
		Amount:    data.Amount,
	}
	for _, rec := range r.Confirmations {
		cw.Confirmations = append(cw.Confirmations, rec.Signature)
	}
	for _, rec := range r.Rejections {
		cw.Rejections = append(cw.Rejections, rec.Signature)
	}

	return cw
}

// Status derives the request status. Only decisions by keys in p.Keys count.
func (r *WithdrawalRequest) Status(p Params) Status {
	if r.Execution != nil {
		return StatusExecuted
	}

	confirms := countKnown(p.Keys, r.Confirmations)
	rejects := countKnown(p.Keys, r.Rejections)
	switch {
	case quorum.Authorized(rejects, confirms, p.RequiredConfirmations):
		return StatusRejected
	case quorum.Authorized(confirms, rejects, p.RequiredConfirmations):
		return StatusConfirmed
	default:
		return StatusPending
	}
}

// decidedBy reports whether key already confirmed or rejected the request.
func (r *WithdrawalRequest) decidedBy(key *quorum.PublicKey) bool {
	id := string(key.Bytes())
	for _, recs := range [][]SignatureRecord{r.Confirmations, r.Rejections} {
		for _, rec := range recs {
			member, err := quorum.ParsePublicKey(rec.Signature.PublicKey)
			if err == nil && string(member.Bytes()) == id {
				return true
			}
		}
	}
	return false
}

func (r *WithdrawalRequest) clone() *WithdrawalRequest {
	c := *r
	c.Confirmations = append([]SignatureRecord(nil), r.Confirmations...)
	c.Rejections = append([]SignatureRecord(nil), r.Rejections...)
	if r.Execution != nil {
		exec := *r.Execution
		c.Execution = &exec
	}
	return &c
}

func countKnown(keys *quorum.KeySet, recs []SignatureRecord) int {
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		key, ok := keys.Lookup(rec.Signature.PublicKey)
		if !ok {
			continue
		}
		seen[string(key.Bytes())] = struct{}{}
	}
	return len(seen)
}

// UserInfo is the account data the ledger keeps per user.
type UserInfo struct {
	Name    string    `json:"name"`
	Invite  uuid.UUID `json:"invite"`
	Created time.Time `json:"created_at"`
}

// State is the ledger state. It is only ever produced by folding updates over
// NewState; readers receive clones.
type State struct {
	WithdrawalRequests map[uuid.UUID]*WithdrawalRequest
	Invites            map[uuid.UUID]*InviteRecord
	Users              map[string]*UserInfo

	// Applied is the number of updates folded into the state.
	Applied uint64

	params Params
}

// NewState returns the empty state for params.
func NewState(p Params) *State {
	return &State{
		WithdrawalRequests: make(map[uuid.UUID]*WithdrawalRequest),
		Invites:            make(map[uuid.UUID]*InviteRecord),
		Users:              make(map[string]*UserInfo),
		params:             p,
	}
}

// Fold replays updates over the empty state. Updates that fail to apply are
// skipped and returned alongside the state.
func Fold(p Params, updates []StateUpdate) (*State, []error) {
	var (
		s    = NewState(p)
		errs []error
	)
	for _, u := range updates {
		if err := s.apply(u); err != nil {
			errs = append(errs, err)
		}
	}
	return s, errs
}

// Params returns the fold parameters of the state.
func (s *State) Params() Params {
	return s.params
}

// Next returns the state after applying u. s itself is left untouched.
func (s *State) Next(u StateUpdate) (*State, error) {
	next := s.Clone()
	if err := next.apply(u); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *State) apply(u StateUpdate) error {
	if u.Body == nil {
		return &TransitionError{UpdateID: u.ID, Err: ErrUnknownKind}
	}
	if err := u.Body.apply(s, u.Created); err != nil {
		return &TransitionError{
			UpdateID: u.ID,
			Kind:     u.Body.Kind(),
			Err:      err,
		}
	}
	s.Applied++
	return nil
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		WithdrawalRequests: make(
			map[uuid.UUID]*WithdrawalRequest, len(s.WithdrawalRequests),
		),
		Invites: make(map[uuid.UUID]*InviteRecord, len(s.Invites)),
		Users:   make(map[string]*UserInfo, len(s.Users)),
		Applied: s.Applied,
		params:  s.params,
	}
	for id, r := range s.WithdrawalRequests {
		c.WithdrawalRequests[id] = r.clone()
	}
	for id, inv := range s.Invites {
		invite := *inv
		c.Invites[id] = &invite
	}
	for name, u := range s.Users {
		user := *u
		c.Users[name] = &user
	}
	return c
}

// Requests returns the withdrawal requests with one of the given statuses,
// oldest first. With no statuses every request is returned.
func (s *State) Requests(statuses ...Status) []*WithdrawalRequest {
	var out []*WithdrawalRequest
	for _, r := range s.WithdrawalRequests {
		if len(statuses) > 0 && !hasStatus(r.Status(s.params), statuses) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

func hasStatus(st Status, statuses []Status) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// inviteUsed reports whether a user signed up with invite.
func (s *State) inviteUsed(invite uuid.UUID) bool {
	for _, u := range s.Users {
		if u.Invite == invite {
			return true
		}
	}
	return false
}
