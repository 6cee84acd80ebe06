// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	updatesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hexstody",
		Subsystem: "ledger",
		Name:      "updates_applied_total",
		Help:      "State updates applied and persisted.",
	})

	transitionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hexstody",
		Subsystem: "ledger",
		Name:      "transition_errors_total",
		Help:      "State updates discarded because they did not apply.",
	})

	persistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hexstody",
		Subsystem: "ledger",
		Name:      "persist_errors_total",
		Help:      "State updates discarded because the store failed.",
	})
)

// Collectors returns the metrics of the package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		updatesApplied, transitionErrors, persistErrors,
	}
}
