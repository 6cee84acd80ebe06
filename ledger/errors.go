// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Transition errors. An update failing with one of these is discarded and
// never reaches the store.
var (
	ErrRequestExists     = errors.New("withdrawal request already exists")
	ErrInvalidRequest    = errors.New("invalid withdrawal request")
	ErrUnknownRequest    = errors.New("unknown withdrawal request")
	ErrRequestTerminal   = errors.New("withdrawal request already decided")
	ErrNotConfirmed      = errors.New("withdrawal request is not confirmed")
	ErrURLMismatch       = errors.New("decision url does not match decision type")
	ErrMessageMismatch   = errors.New("decision message does not match request")
	ErrDuplicateDecision = errors.New("operator already decided on request")
	ErrInviteExists      = errors.New("invite already exists")
	ErrUnknownInvite     = errors.New("unknown invite")
	ErrInviteUsed        = errors.New("invite already used")
	ErrUserExists        = errors.New("user already exists")
)

var (
	// ErrUnknownKind is returned when decoding an update with a kind tag
	// this build does not know.
	ErrUnknownKind = errors.New("unknown state update kind")

	// ErrEngineStopped is returned when submitting to a stopped engine.
	ErrEngineStopped = errors.New("ledger engine stopped")
)

// TransitionError describes an update that could not be applied.
type TransitionError struct {
	UpdateID uuid.UUID
	Kind     UpdateKind
	Err      error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("apply %s update %s: %v", e.Kind, e.UpdateID, e.Err)
}

// Unwrap returns the underlying transition error.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// PersistError describes a valid update the store failed to persist. The
// update is dropped and the in-memory state left unchanged.
type PersistError struct {
	UpdateID uuid.UUID
	Err      error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	return fmt.Sprintf("persist update %s: %v", e.UpdateID, e.Err)
}

// Unwrap returns the store error.
func (e *PersistError) Unwrap() error {
	return e.Err
}
