// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hexstody/hexstody-btc/chain"
	"github.com/hexstody/hexstody-btc/ledger"
	"github.com/hexstody/hexstody-btc/ledger/kvstore"
	"github.com/hexstody/hexstody-btc/ledger/sqlstore"
	"github.com/hexstody/hexstody-btc/netparams"
	"github.com/hexstody/hexstody-btc/rpc/custodyrpc"
	"github.com/hexstody/hexstody-btc/scanner"
	"github.com/hexstody/hexstody-btc/withdraw"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

var (
	cfg       *config
	activeNet = &netparams.MainNetParams
)

func main() {
	// Work around defer not working after os.Exit.
	if err := hexstodyMain(); err != nil {
		os.Exit(1)
	}
}

// ledgerStore is a ledger store owning its database.
type ledgerStore interface {
	ledger.Store
	Close() error
}

// hexstodyMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func hexstodyMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s on %s", version(), activeNet.Params.Name)

	ctx, cancel := context.WithCancel(context.Background())
	onShutdown(cancel)

	store, err := openLedgerStore(ctx)
	if err != nil {
		log.Errorf("Unable to open ledger: %v", err)
		return err
	}
	onShutdown(func() {
		if err := store.Close(); err != nil {
			log.Errorf("Unable to close ledger: %v", err)
		}
	})

	node, err := chain.NewClient(&chain.Config{
		Host:        cfg.RPCConnect,
		User:        cfg.NodeUser,
		Pass:        cfg.NodePass,
		Wallet:      cfg.NodeWallet,
		ChainParams: activeNet.Params,
	})
	if err != nil {
		log.Errorf("Unable to create node client: %v", err)
		return err
	}
	onShutdown(node.Stop)

	engine := ledger.NewEngine(ledger.EngineConfig{
		Store: store,
		Params: ledger.Params{
			Keys:                  cfg.operatorKeys,
			RequiredConfirmations: cfg.MinConfirms,
			Domain:                cfg.Domain,
		},
		StoreTimeout: cfg.StoreTimeout,
	})
	onShutdown(engine.Stop)

	// Replaying the ledger and reaching the node are independent, so they
	// run side by side. Either failing aborts startup.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Start(gctx)
	})
	g.Go(func() error {
		tip, err := node.BestBlock()
		if err != nil {
			return fmt.Errorf("unable to reach bitcoind at %s: %w",
				cfg.RPCConnect, err)
		}
		log.Infof("Connected to bitcoind at %s (tip %v, height %d)",
			cfg.RPCConnect, tip.Hash, tip.Height)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Errorf("Startup failed: %v", err)
		requestShutdown()
		<-shutdownDone()
		return err
	}

	scanCfg := scanner.Config{
		Node:               node,
		ConfirmationsLimit: cfg.ConfirmationsLimit,
		Ticker:             ticker.New(cfg.PollInterval),
	}
	if cfg.ZMQBlockURL != "" {
		trigger, err := chain.NewZMQTrigger(
			cfg.ZMQBlockURL, cfg.ZMQTxURL, defaultZMQReadDeadline,
		)
		if err != nil {
			log.Errorf("Unable to subscribe to bitcoind ZMQ: %v", err)
			requestShutdown()
			<-shutdownDone()
			return err
		}
		trigger.Start()
		onShutdown(trigger.Stop)
		scanCfg.Trigger = trigger.Signals()
	}

	deposits := scanner.New(scanCfg)
	if err := deposits.Start(); err != nil {
		log.Errorf("Unable to start deposit scanner: %v", err)
		requestShutdown()
		<-shutdownDone()
		return err
	}
	onShutdown(deposits.Stop)

	withdrawals := withdraw.New(withdraw.Config{
		Keys:                  cfg.operatorKeys,
		RequiredConfirmations: cfg.MinConfirms,
		Domain:                cfg.Domain,
		UnderLimit:            cfg.UnderLimit.Amount,
		ChainParams:           activeNet.Params,
		Node:                  node,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.MustRegister(ledger.Collectors()...)
	registry.MustRegister(scanner.Collectors()...)
	registry.MustRegister(withdraw.Collectors()...)

	listeners, err := makeListeners(cfg.Listeners)
	if err != nil {
		log.Errorf("Unable to listen for API connections: %v", err)
		requestShutdown()
		<-shutdownDone()
		return err
	}
	server := custodyrpc.NewServer(&custodyrpc.Options{
		Domain:      cfg.Domain,
		Keys:        cfg.operatorKeys,
		PollTimeout: cfg.PollTimeout,
		MaxClients:  cfg.MaxClients,
		Gatherer:    registry,
	}, engine, deposits, withdrawals, node, listeners)
	server.Start()
	onShutdown(server.Stop)

	// Wait until shutdown is signaled before returning and running deferred
	// functions.
	<-shutdownDone()
	log.Info("Shutdown complete")
	return nil
}

// openLedgerStore opens the configured ledger backend.
func openLedgerStore(ctx context.Context) (ledgerStore, error) {
	switch cfg.LedgerStore {
	case backendBDB:
		log.Infof("Opening bdb ledger at %s", cfg.DBConnect.Value)
		return kvstore.Open(cfg.DBConnect.Value, cfg.DBTimeout)

	default:
		d, err := sqlstore.ParseDialect(cfg.LedgerStore)
		if err != nil {
			return nil, err
		}
		if d == sqlstore.SQLite {
			dir := filepath.Dir(cfg.DBConnect.Value)
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, err
			}
			log.Infof("Opening sqlite ledger at %s", cfg.DBConnect.Value)
		} else {
			log.Infof("Opening %v ledger", d)
		}
		return sqlstore.Open(ctx, d, cfg.DBConnect.Value)
	}
}
