// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodyrpc

import (
	"time"

	"github.com/hexstody/hexstody-btc/quorum"
	"github.com/prometheus/client_golang/prometheus"
)

// Options contains the required options for running the custody HTTP
// server.
type Options struct {
	// Domain is the public origin operator signatures are bound to.
	Domain string

	// Keys are the operator keys accepted by the Signature-Data guard.
	Keys *quorum.KeySet

	// PollTimeout bounds how long /events waits for deposit events.
	PollTimeout time.Duration

	// MaxClients is the maximum number of concurrent requests.
	MaxClients int64

	// Gatherer serves /metrics. prometheus.DefaultGatherer is used when
	// nil.
	Gatherer prometheus.Gatherer
}
