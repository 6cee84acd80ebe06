// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import "context"

// Store is the durable log of state updates.
type Store interface {
	// InsertUpdate durably appends u. When it returns nil the update must
	// be returned by every later call to Updates.
	InsertUpdate(ctx context.Context, u StateUpdate) error

	// Updates returns every stored update in insertion order. The engine
	// inserts in application order, so replaying them rebuilds the live
	// state. Creation times are stamped before submission and may be out of
	// order.
	Updates(ctx context.Context) ([]StateUpdate, error)
}
