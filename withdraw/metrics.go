// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package withdraw

import "github.com/prometheus/client_golang/prometheus"

// Route labels of executed withdrawals.
const (
	routeQuorum     = "quorum"
	routeUnderLimit = "under_limit"
)

var executed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hexstody",
	Subsystem: "withdraw",
	Name:      "executed_total",
	Help:      "Withdrawals broadcast, by authorization route.",
}, []string{"route"})

// Collectors returns the metrics of the package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{executed}
}
