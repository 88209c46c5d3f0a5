/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package conn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// A promauto-registered set of gauges and counters under one
// namespace, incremented from the dispatch loop rather than scraped
// out-of-band.
const metricsNamespace = "h1d"

var (
	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_connections",
			Help:      "Currently open connections being served.",
		},
	)

	requestsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_dispatched_total",
			Help:      "Requests for which the main service was invoked.",
		},
	)

	keepAliveTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "keep_alive_timeouts_total",
			Help:      "Connections closed after an idle keep-alive timeout.",
		},
	)

	parseErrorsByKind = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "parse_errors_total",
			Help:      "Request head parse failures by ParseErrorKind.",
		},
		[]string{"kind"},
	)

	upgradeHandovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upgrade_handovers_total",
			Help:      "Connections handed off to an upgrade service.",
		},
	)
)
