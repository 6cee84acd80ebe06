// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/queue"
)

// EngineConfig holds the dependencies of an Engine.
type EngineConfig struct {
	// Store persists every accepted update.
	Store Store

	// Params are the fold parameters of the state.
	Params Params

	// StoreTimeout bounds a single InsertUpdate call. Zero means no bound.
	StoreTimeout time.Duration
}

// Engine is the single writer of the ledger state. Updates are submitted to
// an unbounded queue and applied one at a time by a single goroutine: each
// update is applied to a copy of the state, persisted, and only then made
// visible to readers.
type Engine struct {
	started int32 // To be used atomically.
	stopped int32 // To be used atomically.

	cfg   EngineConfig
	queue *queue.ConcurrentQueue

	mtx     sync.RWMutex
	state   *State
	changed chan struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewEngine returns an engine for cfg. Updates may be submitted right away;
// they are applied once Start has replayed the store. Stop must be called to
// release the queue.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		cfg:     cfg,
		queue:   queue.NewConcurrentQueue(64),
		state:   NewState(cfg.Params),
		changed: make(chan struct{}),
		quit:    make(chan struct{}),
	}
	e.queue.Start()

	return e
}

// Start replays the store into the state and then starts applying submitted
// updates. Updates submitted before Start are queued.
func (e *Engine) Start(ctx context.Context) error {
	if atomic.AddInt32(&e.started, 1) != 1 {
		return nil
	}

	updates, err := e.cfg.Store.Updates(ctx)
	if err != nil {
		return fmt.Errorf("unable to read ledger: %w", err)
	}

	state, errs := Fold(e.cfg.Params, updates)
	for _, err := range errs {
		log.Warnf("Skipping stored update during replay: %v", err)
	}

	e.mtx.Lock()
	e.state = state
	e.mtx.Unlock()

	log.Infof("Replayed %d of %d stored updates (%d requests, %d invites, "+
		"%d users)", state.Applied, len(updates),
		len(state.WithdrawalRequests), len(state.Invites), len(state.Users))

	e.wg.Add(1)
	go e.consume()

	return nil
}

// Stop halts the consumer. Queued updates that were not yet applied are
// dropped.
func (e *Engine) Stop() {
	if atomic.AddInt32(&e.stopped, 1) != 1 {
		return
	}

	close(e.quit)
	e.wg.Wait()
	e.queue.Stop()
}

// submission is a queued update. result, when set, receives the outcome.
type submission struct {
	update StateUpdate
	result chan error
}

// Submit queues u for application. It never blocks on the consumer; the
// caller observes the result through Snapshot or AwaitChange.
func (e *Engine) Submit(u StateUpdate) error {
	return e.enqueue(&submission{update: u})
}

// SubmitWait queues u and waits until the consumer has handled it. It returns
// the transition or persistence error that caused u to be discarded, if any.
func (e *Engine) SubmitWait(ctx context.Context, u StateUpdate) error {
	sub := &submission{update: u, result: make(chan error, 1)}
	if err := e.enqueue(sub); err != nil {
		return err
	}

	select {
	case err := <-sub.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return ErrEngineStopped
	}
}

func (e *Engine) enqueue(sub *submission) error {
	select {
	case e.queue.ChanIn() <- sub:
		return nil
	case <-e.quit:
		return ErrEngineStopped
	}
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *State {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	return e.state.Clone()
}

// View calls f with the current state while holding the read lock. f must not
// retain or modify the state.
func (e *Engine) View(f func(s *State)) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	f(e.state)
}

// Changed returns a channel that is closed the next time the state changes.
func (e *Engine) Changed() <-chan struct{} {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	return e.changed
}

// AwaitChange blocks until the state changes, the timeout expires or ctx is
// done. It reports whether a change happened.
func (e *Engine) AwaitChange(ctx context.Context, timeout time.Duration) bool {
	changed := e.Changed()

	select {
	case <-changed:
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	case <-e.quit:
		return false
	}
}

func (e *Engine) consume() {
	defer e.wg.Done()

	for {
		select {
		case item, ok := <-e.queue.ChanOut():
			if !ok {
				return
			}

			sub := item.(*submission)
			err := e.process(sub.update)
			if sub.result != nil {
				sub.result <- err
			}

		case <-e.quit:
			return
		}
	}
}

// process applies, persists and publishes a single update. Failures are
// logged and the update is discarded.
func (e *Engine) process(u StateUpdate) error {
	e.mtx.RLock()
	current := e.state
	e.mtx.RUnlock()

	// Only this goroutine replaces e.state, so current stays the canonical
	// state until the swap below.
	next, err := current.Next(u)
	if err != nil {
		transitionErrors.Inc()
		log.Errorf("Discarding update %v (%v): %v", u.ID, u.Kind(), err)
		return err
	}

	ctx := context.Background()
	if e.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()
	}

	if err := e.cfg.Store.InsertUpdate(ctx, u); err != nil {
		persistErrors.Inc()
		log.Errorf("Ledger divergence: update %v (%v) was valid but could "+
			"not be stored and is dropped: %v", u.ID, u.Kind(), err)
		log.Debugf("Dropped update: %v", newLogClosure(func() string {
			return spew.Sdump(u)
		}))
		return &PersistError{UpdateID: u.ID, Err: err}
	}

	e.mtx.Lock()
	e.state = next
	close(e.changed)
	e.changed = make(chan struct{})
	e.mtx.Unlock()

	updatesApplied.Inc()
	log.Debugf("Applied update %v (%v)", u.ID, u.Kind())

	return nil
}
