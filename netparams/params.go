// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*chaincfg.Params

	// NodeRPCPort is the default bitcoind JSON-RPC port of the network.
	NodeRPCPort string

	// ServicePort is the default port the custody API listens on.
	ServicePort string
}

// MainNetParams contains parameters specific to running against bitcoind on
// the main network (wire.MainNet).
var MainNetParams = Params{
	Params:      &chaincfg.MainNetParams,
	NodeRPCPort: "8332",
	ServicePort: "8180",
}

// TestNet3Params contains parameters specific to running against bitcoind on
// the test network (version 3) (wire.TestNet3).
var TestNet3Params = Params{
	Params:      &chaincfg.TestNet3Params,
	NodeRPCPort: "18332",
	ServicePort: "18180",
}

// RegressionNetParams contains parameters specific to the regression test
// network (wire.TestNet).
var RegressionNetParams = Params{
	Params:      &chaincfg.RegressionNetParams,
	NodeRPCPort: "18443",
	ServicePort: "18181",
}

// SigNetParams contains parameters specific to the default signet network.
var SigNetParams = Params{
	Params:      &chaincfg.SigNetParams,
	NodeRPCPort: "38332",
	ServicePort: "38180",
}

// ByName returns the parameters of the network with the given name as reported
// by bitcoind's getblockchaininfo ("main", "test", "regtest", "signet") or as
// named by chaincfg.
func ByName(name string) (*Params, error) {
	switch name {
	case "main", MainNetParams.Name:
		return &MainNetParams, nil
	case "test", TestNet3Params.Name:
		return &TestNet3Params, nil
	case RegressionNetParams.Name:
		return &RegressionNetParams, nil
	case SigNetParams.Name:
		return &SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}
