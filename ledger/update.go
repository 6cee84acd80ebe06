// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/quorum"
)

// UpdateKind is the persisted tag of an update body.
type UpdateKind string

const (
	KindNewWithdrawalRequest      UpdateKind = "new_withdrawal_request"
	KindWithdrawalRequestDecision UpdateKind = "withdrawal_request_decision"
	KindWithdrawalRequestExecuted UpdateKind = "withdrawal_request_executed"
	KindGenInvite                 UpdateKind = "gen_invite"
	KindSignup                    UpdateKind = "signup"
)

// UpdateBody is the payload of a state update. The set of implementations is
// closed; each one knows how to apply itself to a state.
type UpdateBody interface {
	// Kind returns the persisted tag of the body.
	Kind() UpdateKind

	apply(s *State, created time.Time) error
}

// StateUpdate is one entry of the ledger log.
type StateUpdate struct {
	ID      uuid.UUID
	Created time.Time
	Body    UpdateBody
}

// NewStateUpdate wraps body into an update with a fresh id and the current
// UTC time.
func NewStateUpdate(body UpdateBody) StateUpdate {
	return StateUpdate{
		ID:      uuid.New(),
		Created: time.Now().UTC(),
		Body:    body,
	}
}

// Kind returns the kind of the update body.
func (u StateUpdate) Kind() UpdateKind {
	if u.Body == nil {
		return ""
	}
	return u.Body.Kind()
}

// EncodeUpdateBody returns the JSON form of body as persisted by stores.
func EncodeUpdateBody(body UpdateBody) ([]byte, error) {
	return json.Marshal(body)
}

// DecodeUpdateBody decodes a persisted body of the given kind.
func DecodeUpdateBody(kind UpdateKind, b []byte) (UpdateBody, error) {
	var body UpdateBody
	switch kind {
	case KindNewWithdrawalRequest:
		body = &WithdrawalRequestInfo{}
	case KindWithdrawalRequestDecision:
		body = &WithdrawalRequestDecision{}
	case KindWithdrawalRequestExecuted:
		body = &WithdrawalExecuted{}
	case KindGenInvite:
		body = &InviteRecord{}
	case KindSignup:
		body = &Signup{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err := json.Unmarshal(b, body); err != nil {
		return nil, fmt.Errorf("decode %s body: %w", kind, err)
	}
	return body, nil
}

// WithdrawalRequestInfo creates a withdrawal request.
type WithdrawalRequestInfo struct {
	ID      uuid.UUID      `json:"id"`
	User    string         `json:"user"`
	Address string         `json:"address"`
	Amount  btcutil.Amount `json:"amount"`
}

// Kind implements UpdateBody.
func (*WithdrawalRequestInfo) Kind() UpdateKind {
	return KindNewWithdrawalRequest
}

func (b *WithdrawalRequestInfo) apply(s *State, created time.Time) error {
	if _, ok := s.WithdrawalRequests[b.ID]; ok {
		return ErrRequestExists
	}
	switch {
	case b.User == "":
		return fmt.Errorf("%w: empty user", ErrInvalidRequest)
	case b.Address == "":
		return fmt.Errorf("%w: empty address", ErrInvalidRequest)
	case b.Amount <= 0:
		return fmt.Errorf("%w: amount %v", ErrInvalidRequest, b.Amount)
	}

	s.WithdrawalRequests[b.ID] = &WithdrawalRequest{
		ID:      b.ID,
		User:    b.User,
		Address: b.Address,
		Amount:  b.Amount,
		Created: created,
	}
	return nil
}

// WithdrawalRequestDecision records an operator confirmation or rejection.
// Msg is the exact binding message the signature covers.
type WithdrawalRequestDecision struct {
	RequestID uuid.UUID            `json:"request_id"`
	Type      quorum.Action        `json:"decision_type"`
	URL       string               `json:"url"`
	Msg       string               `json:"msg"`
	Signature quorum.SignatureData `json:"signature"`
}

// NewWithdrawalRequestDecision builds a decision on the request described by
// data, signed with sig and bound to url.
func NewWithdrawalRequestDecision(data quorum.ConfirmationData,
	sig quorum.SignatureData, typ quorum.Action,
	url string) (*WithdrawalRequestDecision, error) {

	if !strings.HasSuffix(url, typ.URI()) {
		return nil, fmt.Errorf("%w: %s for %v", ErrURLMismatch, url, typ)
	}

	return &WithdrawalRequestDecision{
		RequestID: data.ID,
		Type:      typ,
		URL:       url,
		Msg:       url + ":" + data.Canonical(),
		Signature: sig,
	}, nil
}

// Kind implements UpdateBody.
func (*WithdrawalRequestDecision) Kind() UpdateKind {
	return KindWithdrawalRequestDecision
}

func (b *WithdrawalRequestDecision) apply(s *State, created time.Time) error {
	req, ok := s.WithdrawalRequests[b.RequestID]
	if !ok {
		return ErrUnknownRequest
	}
	if req.Status(s.params).Terminal() {
		return ErrRequestTerminal
	}

	if !strings.HasSuffix(b.URL, b.Type.URI()) {
		return ErrURLMismatch
	}
	if s.params.Domain != "" &&
		b.URL != quorum.BindingURL(s.params.Domain, b.Type) {

		return ErrURLMismatch
	}
	if b.Msg != b.URL+":"+req.ConfirmationData().Canonical() {
		return ErrMessageMismatch
	}

	key, err := quorum.Verify(s.params.Keys, b.Signature, b.Msg)
	if err != nil {
		return err
	}
	if req.decidedBy(key) {
		return ErrDuplicateDecision
	}

	rec := SignatureRecord{
		Signature: b.Signature,
		URL:       b.URL,
		Created:   created,
	}
	if b.Type == quorum.ActionReject {
		req.Rejections = append(req.Rejections, rec)
	} else {
		req.Confirmations = append(req.Confirmations, rec)
	}
	return nil
}

// WithdrawalExecuted marks a confirmed request as paid out.
type WithdrawalExecuted struct {
	RequestID uuid.UUID      `json:"request_id"`
	TxID      string         `json:"txid"`
	Fee       btcutil.Amount `json:"fee"`
}

// Kind implements UpdateBody.
func (*WithdrawalExecuted) Kind() UpdateKind {
	return KindWithdrawalRequestExecuted
}

func (b *WithdrawalExecuted) apply(s *State, _ time.Time) error {
	req, ok := s.WithdrawalRequests[b.RequestID]
	if !ok {
		return ErrUnknownRequest
	}
	if st := req.Status(s.params); st != StatusConfirmed {
		return fmt.Errorf("%w: status %v", ErrNotConfirmed, st)
	}

	exec := *b
	req.Execution = &exec
	return nil
}

// InviteRecord is an invite generated by an operator.
type InviteRecord struct {
	Invite  uuid.UUID `json:"invite"`
	Invitor string    `json:"invitor"`
	Label   string    `json:"label"`
}

// Kind implements UpdateBody.
func (*InviteRecord) Kind() UpdateKind {
	return KindGenInvite
}

func (b *InviteRecord) apply(s *State, _ time.Time) error {
	if _, ok := s.Invites[b.Invite]; ok {
		return ErrInviteExists
	}

	invite := *b
	s.Invites[b.Invite] = &invite
	return nil
}

// Signup registers a user with an invite.
type Signup struct {
	User   string    `json:"user"`
	Invite uuid.UUID `json:"invite"`
}

// Kind implements UpdateBody.
func (*Signup) Kind() UpdateKind {
	return KindSignup
}

func (b *Signup) apply(s *State, created time.Time) error {
	if _, ok := s.Users[b.User]; ok {
		return ErrUserExists
	}
	if _, ok := s.Invites[b.Invite]; !ok {
		return ErrUnknownInvite
	}
	if s.inviteUsed(b.Invite) {
		return ErrInviteUsed
	}

	s.Users[b.User] = &UserInfo{
		Name:    b.User,
		Invite:  b.Invite,
		Created: created,
	}
	return nil
}
