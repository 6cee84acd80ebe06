// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package custodyrpc is the JSON over HTTP front end of the custody daemon.
// It only translates requests into calls on the ledger engine, the deposit
// scanner, the withdrawal authorizer and the node.
package custodyrpc

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/hexstody/hexstody-btc/chain"
	"github.com/hexstody/hexstody-btc/ledger"
	"github.com/hexstody/hexstody-btc/quorum"
	"github.com/hexstody/hexstody-btc/scanner"
	"github.com/hexstody/hexstody-btc/withdraw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ledger is the part of the ledger engine the server uses. It is
// implemented by *ledger.Engine.
type Ledger interface {
	SubmitWait(ctx context.Context, u ledger.StateUpdate) error
	Snapshot() *ledger.State
}

// Deposits is implemented by *scanner.Scanner.
type Deposits interface {
	Drain(ctx context.Context, timeout time.Duration) *scanner.Batch
}

// Withdrawals is implemented by *withdraw.Authorizer.
type Withdrawals interface {
	AuthorizeAndExecute(ctx context.Context,
		w *quorum.ConfirmedWithdrawal) (*withdraw.Receipt, error)
	ExecuteUnderLimit(ctx context.Context,
		w *quorum.ConfirmedWithdrawal) (*withdraw.Receipt, error)
}

// Node is the wallet side of the full node. It is implemented by
// *chain.Client.
type Node interface {
	NewAddress() (btcutil.Address, error)
	FeeEstimate() (*chain.FeeEstimate, error)
	Balance() (btcutil.Amount, error)
	IsRegtest() (bool, error)
	Generate(n int64, addr btcutil.Address) ([]*chainhash.Hash, error)
}

// Server serves the custody API.
type Server struct {
	httpServer http.Server
	opts       Options

	ledger      Ledger
	deposits    Deposits
	withdrawals Withdrawals
	node        Node

	listeners []net.Listener

	wg      sync.WaitGroup
	quit    chan struct{}
	quitMtx sync.Mutex
}

// NewServer creates a server serving on listeners once Start is called.
func NewServer(opts *Options, l Ledger, d Deposits, w Withdrawals, n Node,
	listeners []net.Listener) *Server {

	const readTimeout = 10 * time.Second

	s := &Server{
		opts:        *opts,
		ledger:      l,
		deposits:    d,
		withdrawals: w,
		node:        n,
		listeners:   listeners,
		quit:        make(chan struct{}),
	}
	if s.opts.Gatherer == nil {
		s.opts.Gatherer = prometheus.DefaultGatherer
	}

	s.httpServer = http.Server{
		Handler: s.Handler(),

		// Long polls are bounded by PollTimeout on the handler side.
		ReadTimeout: readTimeout,
	}

	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /events", s.handleEvents)
	mux.HandleFunc("POST /deposit/address", s.handleDepositAddress)
	mux.HandleFunc("GET /fees", s.handleFees)
	mux.HandleFunc("POST /hot-wallet-balance", s.handleBalance)
	mux.HandleFunc("POST /withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /withdraw/under", s.handleWithdrawUnder)

	mux.HandleFunc("GET /request", s.handleListRequests)
	mux.HandleFunc("POST /request", s.handleCreateRequest)
	mux.HandleFunc("POST "+quorum.ConfirmURI, s.handleDecision)
	mux.HandleFunc("POST "+quorum.RejectURI, s.handleDecision)
	mux.HandleFunc("POST /invite/generate", s.handleGenInvite)
	mux.HandleFunc("GET /invite/listmy", s.handleListInvites)

	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /newaddress", s.handleNewAddress)

	mux.Handle("GET /metrics", promhttp.HandlerFor(
		s.opts.Gatherer, promhttp.HandlerOpts{},
	))

	if s.opts.MaxClients <= 0 {
		return mux
	}
	return throttled(s.opts.MaxClients, mux)
}

// Start begins serving on every listener.
func (s *Server) Start() {
	for _, lis := range s.listeners {
		s.serve(lis)
	}
}

func (s *Server) serve(lis net.Listener) {
	s.wg.Add(1)
	go func() {
		log.Infof("Listening on %s", lis.Addr())
		err := s.httpServer.Serve(lis)
		log.Tracef("Finished serving HTTP: %v", err)
		s.wg.Done()
	}()
}

// Stop closes the listeners, waits for in flight requests up to a grace
// period and returns once every serve goroutine exited.
func (s *Server) Stop() {
	const grace = 5 * time.Second

	s.quitMtx.Lock()
	select {
	case <-s.quit:
		s.quitMtx.Unlock()
		return
	default:
	}
	close(s.quit)
	s.quitMtx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("Cannot shut down HTTP server: %v", err)
	}

	s.wg.Wait()
}

// throttled limits the number of concurrently served requests to threshold.
func throttled(threshold int64, h http.Handler) http.Handler {
	var active int64

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&active, 1)
		defer atomic.AddInt64(&active, -1)

		if current-1 >= threshold {
			log.Warnf("Reached threshold of %d concurrent active "+
				"clients", threshold)
			http.Error(w, "429 Too Many Requests",
				http.StatusTooManyRequests)
			return
		}

		h.ServeHTTP(w, r)
	})
}
