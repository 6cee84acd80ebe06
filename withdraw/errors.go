// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package withdraw

import (
	"errors"
	"fmt"

	"github.com/hexstody/hexstody-btc/quorum"
)

var (
	// ErrOverLimit is returned by ExecuteUnderLimit for amounts above the
	// configured limit.
	ErrOverLimit = errors.New("withdrawal amount above the unconfirmed " +
		"limit")

	// ErrInvalidAddress is returned when the destination does not decode
	// as an address of the configured network.
	ErrInvalidAddress = errors.New("invalid withdrawal address")

	// ErrDustAmount is returned when the payout output would be dust.
	ErrDustAmount = errors.New("withdrawal amount is dust")
)

// QuorumError is returned when the signatures attached to a withdrawal do not
// reach the required quorum. Nothing is sent.
type QuorumError struct {
	quorum.Decision
}

// Error implements the error interface.
func (e *QuorumError) Error() string {
	return fmt.Sprintf("quorum not reached: %d confirmations, %d "+
		"rejections, %d required", e.Confirmations, e.Rejections,
		e.Required)
}

// Stage names the node call an execution failed at.
type Stage string

const (
	StageSend   Stage = "send"
	StageLookup Stage = "lookup"
	StageDecode Stage = "decode"
)

// ExecutionError is returned when the node fails while paying out. When
// Stage is not StageSend the payment was already broadcast as TxID.
type ExecutionError struct {
	Stage Stage
	TxID  string
	Err   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("withdrawal %s (tx %s) failed: %v", e.Stage,
			e.TxID, e.Err)
	}
	return fmt.Sprintf("withdrawal %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the node error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
