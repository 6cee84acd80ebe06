// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scanner

import "github.com/prometheus/client_golang/prometheus"

var (
	pollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hexstody",
		Subsystem: "scanner",
		Name:      "poll_errors_total",
		Help:      "Poll cycles aborted by a node error.",
	})

	scannedHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hexstody",
		Subsystem: "scanner",
		Name:      "height",
		Help:      "Height of the last completed poll cycle.",
	})

	trackedDeposits = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hexstody",
		Subsystem: "scanner",
		Name:      "tracked_deposits",
		Help:      "Deposits below the confirmations limit.",
	})
)

// Collectors returns the metrics of the package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{pollErrors, scannedHeight, trackedDeposits}
}
