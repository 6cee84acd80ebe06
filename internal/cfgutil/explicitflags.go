// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

// ExplicitString is a string config field that remembers whether the flags
// package assigned it.  The daemon uses it where a default depends on other
// options, such as the ledger location following --datadir unless
// --dbconnect was given.
type ExplicitString struct {
	Value         string
	explicitlySet bool
}

// NewExplicitString creates a string flag with the provided default value.
func NewExplicitString(defaultValue string) *ExplicitString {
	return &ExplicitString{Value: defaultValue}
}

// ExplicitlySet returns whether the value came from the command line or the
// config file.
func (e *ExplicitString) ExplicitlySet() bool { return e.explicitlySet }

// String returns the current value.
func (e *ExplicitString) String() string { return e.Value }

// MarshalFlag implements the flags.Marshaler interface.
func (e *ExplicitString) MarshalFlag() (string, error) { return e.Value, nil }

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (e *ExplicitString) UnmarshalFlag(value string) error {
	e.Value = value
	e.explicitlySet = true
	return nil
}
