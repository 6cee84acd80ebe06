// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"

	"github.com/hexstody/hexstody-btc/netparams"
	"github.com/stretchr/testify/require"
)

func TestParseDebugLevels(t *testing.T) {
	testCases := []struct {
		level string
		fail  bool
	}{
		{level: "debug"},
		{level: "LDGR=trace,SCAN=warn"},
		{level: "verbose", fail: true},
		{level: "LDGR", fail: true},
		{level: "NOPE=info", fail: true},
		{level: "SCAN=loud", fail: true},
	}

	for _, tc := range testCases {
		err := parseAndSetDebugLevels(tc.level)
		if tc.fail {
			require.Error(t, err, tc.level)
			continue
		}
		require.NoError(t, err, tc.level)
	}

	require.NoError(t, parseAndSetDebugLevels(defaultLogLevel))
}

func TestSupportedSubsystems(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{
		"CHIO", "HRPC", "HXST", "LDGR", "SCAN", "WDRW",
	}, supportedSubsystems())
}

func TestNetworkDir(t *testing.T) {
	t.Parallel()

	require.Equal(t, filepath.Join("data", "testnet"),
		networkDir("data", &netparams.TestNet3Params))
	require.Equal(t, filepath.Join("data", "regtest"),
		networkDir("data", &netparams.RegressionNetParams))
}

func TestParseListeners(t *testing.T) {
	t.Parallel()

	v4, v6, err := parseListeners([]string{
		"127.0.0.1:8180", "[::1]:8180", ":8181",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:8180", ":8181"}, v4)
	require.Equal(t, []string{"[::1]:8180", ":8181"}, v6)

	_, _, err = parseListeners([]string{"localhost:8180"})
	require.Error(t, err)
}

func TestParseOperatorKeys(t *testing.T) {
	t.Parallel()

	keys, err := parseOperatorKeys(nil)
	require.NoError(t, err)
	require.Zero(t, keys.Len())

	_, err = parseOperatorKeys([]string{"not base64!"})
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.3.0-beta", version())
	require.Equal(t, "abc-1", normalizeVerString("a.b c-1!"))
}
