//go:build stdlog
// +build stdlog

package build

// LoggingType writes every sub-logger directly to stdout.
const LoggingType = LogTypeStdOut
