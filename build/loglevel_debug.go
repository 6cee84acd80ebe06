//go:build debug
// +build debug

package build

// LogLevel specifies the log level for debug builds.
var LogLevel = "debug"
