// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownSignals stop the daemon cleanly.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// shutdown tears the custody daemon down exactly once, on a signal or on a
// failed startup step.
//
// Steps run newest first. hexstodyMain registers them as each component comes
// up, so the API server stops taking operator calls before the deposit
// scanner, ZMQ trigger, ledger engine and node client stop, and the ledger
// store closes last, after the engine has flushed its final update.
type shutdown struct {
	register chan func()
	request  chan struct{}
	done     chan struct{}
}

func newShutdown(sigs <-chan os.Signal) *shutdown {
	s := &shutdown{
		register: make(chan func()),
		request:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.run(sigs)

	return s
}

func (s *shutdown) run(sigs <-chan os.Signal) {
	var steps []func()
	teardown := func() {
		for i := len(steps) - 1; i >= 0; i-- {
			steps[i]()
		}
		close(s.done)
	}

	for {
		select {
		case sig := <-sigs:
			log.Infof("Received %s, stopping custody services", sig)
			teardown()
			return

		case <-s.request:
			log.Info("Shutdown requested, stopping custody services")
			teardown()
			return

		case step := <-s.register:
			steps = append(steps, step)
		}
	}
}

// add registers step to run on shutdown. A step added after shutdown has
// finished runs at once.
func (s *shutdown) add(step func()) {
	select {
	case s.register <- step:
	case <-s.done:
		step()
	}
}

// trigger starts shutdown without a signal. Repeated calls are no-ops.
func (s *shutdown) trigger() {
	select {
	case s.request <- struct{}{}:
	default:
	}
}

var (
	daemonShutdownOnce sync.Once
	daemonShutdown     *shutdown
)

// shutdownHandler returns the process wide shutdown, subscribing to
// shutdownSignals on first use.
func shutdownHandler() *shutdown {
	daemonShutdownOnce.Do(func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, shutdownSignals...)
		daemonShutdown = newShutdown(sigs)
	})

	return daemonShutdown
}

// onShutdown registers a teardown step for the daemon.
func onShutdown(step func()) {
	shutdownHandler().add(step)
}

// requestShutdown stops the daemon after a startup failure.
func requestShutdown() {
	shutdownHandler().trigger()
}

// shutdownDone is closed once every teardown step has run.
func shutdownDone() <-chan struct{} {
	return shutdownHandler().done
}
