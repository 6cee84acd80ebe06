//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

// LoggingType routes all sub-loggers through the daemon backend.
const LoggingType = LogTypeDefault
