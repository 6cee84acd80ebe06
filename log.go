// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/hexstody/hexstody-btc/chain"
	"github.com/hexstody/hexstody-btc/ledger"
	"github.com/hexstody/hexstody-btc/ledger/sqlstore"
	"github.com/hexstody/hexstody-btc/rpc/custodyrpc"
	"github.com/hexstody/hexstody-btc/scanner"
	"github.com/hexstody/hexstody-btc/withdraw"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	logRotatorPipe.Write(p)
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsytem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file.  This must be performed early during application startup by
// calling initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.  The backend must not be used before the log rotator has
	// been initialized, or data races and/or nil pointer dereferences will
	// occur.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	// logRotatorPipe is the write-end pipe for writing to the log
	// rotator.  It is written to by the Write method of the logWriter
	// type.
	logRotatorPipe *os.File

	log       = backendLog.Logger("HXST")
	ledgerLog = backendLog.Logger("LDGR")
	scanLog   = backendLog.Logger("SCAN")
	wdrwLog   = backendLog.Logger("WDRW")
	chainLog  = backendLog.Logger("CHIO")
	rpcLog    = backendLog.Logger("HRPC")
)

// Initialize package-global logger variables.
func init() {
	ledger.UseLogger(ledgerLog)
	sqlstore.UseLogger(ledgerLog)
	scanner.UseLogger(scanLog)
	withdraw.UseLogger(wdrwLog)
	chain.UseLogger(chainLog)
	custodyrpc.UseLogger(rpcLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"HXST": log,
	"LDGR": ledgerLog,
	"SCAN": scanLog,
	"WDRW": wdrwLog,
	"CHIO": chainLog,
	"HRPC": rpcLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variables are used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log pipe: %v\n", err)
		os.Exit(1)
	}

	go r.Run(pr)

	logRotator = r
	logRotatorPipe = pw
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.  Uninitialized subsystems are dynamically created as
// needed.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.  It also dynamically creates the subsystem loggers as needed, so it
// can be used to initialize the logging system.
func setLogLevels(logLevel string) {
	// Configure all sub-systems with the new logging level.  Dynamically
	// create loggers as needed.
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
