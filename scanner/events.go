// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scanner

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// EventType tags a deposit event.
type EventType string

const (
	// EventUpdate reports the current confirmation state of a deposit.
	EventUpdate EventType = "update"

	// EventCancel reports that a previously reported deposit is no longer
	// valid, because it was reorged out, replaced or conflicted.
	EventCancel EventType = "cancel"
)

// Event is a deposit event. It is either an *Update or a *Cancel.
type Event interface {
	// Type returns the event tag.
	Type() EventType

	// Hash returns the transaction the event is about.
	Hash() chainhash.Hash
}

// Update reports the confirmation depth of a deposit.
type Update struct {
	TxID          chainhash.Hash
	Address       string
	Vout          uint32
	Amount        btcutil.Amount
	Confirmations int64
	Conflicts     []chainhash.Hash
}

// Type implements Event.
func (*Update) Type() EventType { return EventUpdate }

// Hash implements Event.
func (u *Update) Hash() chainhash.Hash { return u.TxID }

// MarshalJSON encodes the update with its type tag.
func (u *Update) MarshalJSON() ([]byte, error) {
	conflicts := make([]string, 0, len(u.Conflicts))
	for _, c := range u.Conflicts {
		conflicts = append(conflicts, c.String())
	}

	return json.Marshal(struct {
		Type          EventType `json:"type"`
		TxID          string    `json:"txid"`
		Address       string    `json:"address"`
		Vout          uint32    `json:"vout"`
		Amount        int64     `json:"amount"`
		Confirmations int64     `json:"confirmations"`
		Conflicts     []string  `json:"conflicts"`
	}{
		Type:          EventUpdate,
		TxID:          u.TxID.String(),
		Address:       u.Address,
		Vout:          u.Vout,
		Amount:        int64(u.Amount),
		Confirmations: u.Confirmations,
		Conflicts:     conflicts,
	})
}

// Cancel withdraws a previously reported deposit.
type Cancel struct {
	TxID    chainhash.Hash
	Address string
	Vout    uint32
	Amount  btcutil.Amount
}

// Type implements Event.
func (*Cancel) Type() EventType { return EventCancel }

// Hash implements Event.
func (c *Cancel) Hash() chainhash.Hash { return c.TxID }

// MarshalJSON encodes the cancel with its type tag.
func (c *Cancel) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		TxID    string    `json:"txid"`
		Address string    `json:"address"`
		Vout    uint32    `json:"vout"`
		Amount  int64     `json:"amount"`
	}{
		Type:    EventCancel,
		TxID:    c.TxID.String(),
		Address: c.Address,
		Vout:    c.Vout,
		Amount:  int64(c.Amount),
	})
}

// Batch is the set of events drained in one call, stamped with the
// checkpoint they were produced at.
type Batch struct {
	Hash   chainhash.Hash
	Height int32
	Events []Event
}

// MarshalJSON encodes the batch.
func (b *Batch) MarshalJSON() ([]byte, error) {
	events := b.Events
	if events == nil {
		events = []Event{}
	}

	return json.Marshal(struct {
		Hash   string  `json:"hash"`
		Height int32   `json:"height"`
		Events []Event `json:"events"`
	}{
		Hash:   b.Hash.String(),
		Height: b.Height,
		Events: events,
	})
}
