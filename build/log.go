// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType is an indicating the type of logging specified by the build flag.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut all logging is written directly to stdout.
	LogTypeStdOut

	// LogTypeDefault logs through the daemon's shared backend.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger constructs a new subsystem log for the given subsystem tag.
// When genSubLogger is nil the package is expected to receive its logger later
// through its UseLogger function, so logging stays disabled until then.
//
// Builds tagged with stdlog ignore genSubLogger and write straight to stdout
// at the compiled-in LogLevel, which is what package tests want.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	switch LoggingType {
	case LogTypeStdOut:
		backend := btclog.NewBackend(os.Stdout)
		logger := backend.Logger(subsystem)

		level, _ := btclog.LevelFromString(LogLevel)
		logger.SetLevel(level)

		return logger

	case LogTypeDefault:
		if genSubLogger != nil {
			return genSubLogger(subsystem)
		}
	}

	return btclog.Disabled
}
