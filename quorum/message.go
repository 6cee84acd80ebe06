// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package quorum

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the operator decision a signature is bound to.
type Action uint8

const (
	// ActionConfirm approves a withdrawal request.
	ActionConfirm Action = iota

	// ActionReject refuses a withdrawal request.
	ActionReject
)

const (
	// ConfirmURI is the endpoint path confirmations are bound to.
	ConfirmURI = "/confirm"

	// RejectURI is the endpoint path rejections are bound to.
	RejectURI = "/reject"

	// TimeLayout is the layout of CreatedAt inside ConfirmationData. It has
	// no zone suffix; times are always UTC.
	TimeLayout = "2006-01-02T15:04:05.999999"
)

// URI returns the endpoint path the action is bound to.
func (a Action) URI() string {
	if a == ActionReject {
		return RejectURI
	}
	return ConfirmURI
}

// String returns a human readable name.
func (a Action) String() string {
	switch a {
	case ActionConfirm:
		return "confirm"
	case ActionReject:
		return "reject"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ParseAction parses the String form of an action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "confirm":
		return ActionConfirm, nil
	case "reject":
		return ActionReject, nil
	}
	return 0, fmt.Errorf("unknown decision type %q", s)
}

// MarshalText encodes the action as its String form.
func (a Action) MarshalText() ([]byte, error) {
	if a != ActionConfirm && a != ActionReject {
		return nil, fmt.Errorf("unknown decision type %d", uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes the String form of an action.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// FormatTime formats t the way it appears in ConfirmationData.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ConfirmationData is the part of a withdrawal request operators sign. Its
// JSON encoding is canonical: field order is fixed by the struct.
type ConfirmationData struct {
	ID        uuid.UUID `json:"id"`
	User      string    `json:"user"`
	Address   string    `json:"address"`
	CreatedAt string    `json:"created_at"`
	Amount    uint64    `json:"amount"`
}

// Canonical returns the canonical JSON encoding of d.
func (d ConfirmationData) Canonical() string {
	// Marshalling a struct of strings, a uuid and an integer cannot fail.
	b, _ := json.Marshal(d)
	return string(b)
}

// BindingURL returns the URL a decision of type a is bound to.
func BindingURL(domain string, a Action) string {
	return domain + a.URI()
}

// BindingMessage returns the message an operator signs to take decision a on
// the request described by d.
func BindingMessage(domain string, a Action, d ConfirmationData) string {
	return BindingURL(domain, a) + ":" + d.Canonical()
}

// ConfirmedWithdrawal is a withdrawal request as submitted for payout,
// carrying every operator decision collected for it.
type ConfirmedWithdrawal struct {
	ID            uuid.UUID       `json:"id"`
	User          string          `json:"user"`
	Address       string          `json:"address"`
	CreatedAt     string          `json:"created_at"`
	Amount        uint64          `json:"amount"`
	Confirmations []SignatureData `json:"confirmations"`
	Rejections    []SignatureData `json:"rejections"`
}

// Data returns the signed part of the withdrawal.
func (w *ConfirmedWithdrawal) Data() ConfirmationData {
	return ConfirmationData{
		ID:        w.ID,
		User:      w.User,
		Address:   w.Address,
		CreatedAt: w.CreatedAt,
		Amount:    w.Amount,
	}
}
