// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddresses(t *testing.T) {
	t.Parallel()

	addrs, err := NormalizeAddresses(
		[]string{"localhost", "localhost:18443", "127.0.0.1:1"}, "18443",
	)
	require.NoError(t, err)
	require.Equal(t, []string{"localhost:18443", "127.0.0.1:1"}, addrs)

}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		addr     string
		expected string
		fail     bool
	}{
		{addr: "127.0.0.1", expected: "127.0.0.1:8332"},
		{addr: "127.0.0.1:18332", expected: "127.0.0.1:18332"},
		{addr: "::1", expected: "[::1]:8332"},
		{addr: "[::1]", expected: "[::1]:8332"},
		{addr: "[::1]:18332", expected: "[::1]:18332"},
		{addr: "[fe80::1%eth0]", expected: "[fe80::1%eth0]:8332"},
		{addr: "[::1", fail: true},
		{addr: "[[::1]]", fail: true},
	}

	for _, tc := range testCases {
		got, err := NormalizeAddress(tc.addr, "8332")
		if tc.fail {
			require.Error(t, err, tc.addr)
			continue
		}
		require.NoError(t, err, tc.addr)
		require.Equal(t, tc.expected, got, tc.addr)
	}
}

func TestNormalizeZMQEndpoint(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		endpoint string
		expected string
		fail     bool
	}{
		{endpoint: "tcp://127.0.0.1:28332", expected: "tcp://127.0.0.1:28332"},
		{endpoint: "127.0.0.1:28333", expected: "tcp://127.0.0.1:28333"},
		{endpoint: "localhost", expected: "tcp://localhost:28332"},
		{endpoint: "ipc:///tmp/blocks.socket", expected: "ipc:///tmp/blocks.socket"},
		{endpoint: "ipc://", fail: true},
		{endpoint: "udp://127.0.0.1:28332", fail: true},
	}

	for _, tc := range testCases {
		got, err := NormalizeZMQEndpoint(tc.endpoint, "28332")
		if tc.fail {
			require.Error(t, err, tc.endpoint)
			continue
		}
		require.NoError(t, err, tc.endpoint)
		require.Equal(t, tc.expected, got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")

	require.NoError(t, EnsureDir(dir))
	exists, err := FileExists(dir)
	require.NoError(t, err)
	require.True(t, exists)

	// Existing directories are left alone.
	require.NoError(t, EnsureDir(dir))

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	require.ErrorIs(t, EnsureDir(file), os.ErrExist)
}

func TestExplicitString(t *testing.T) {
	t.Parallel()

	s := NewExplicitString("default")
	require.False(t, s.ExplicitlySet())
	require.Equal(t, "default", s.String())

	require.NoError(t, s.UnmarshalFlag("default"))
	require.True(t, s.ExplicitlySet())
	require.Equal(t, "default", s.Value)
}
