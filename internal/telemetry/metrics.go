/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP control-surface metrics, tracked by MetricsMiddleware.
var (
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonorium_api_active_connections",
		Help: "Number of in-flight HTTP requests to the control surface.",
	})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sonorium_api_request_duration_seconds",
		Help:    "HTTP request latency for the control surface.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonorium_api_requests_total",
		Help: "Total HTTP requests served by the control surface.",
	}, []string{"method", "endpoint", "status"})
)

// Audio-engine metrics. They are registered and exported by Handler, but
// no package in this tree updates them, so they stay at zero.
var (
	ChannelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonorium_channels_active",
		Help: "Number of Channels currently not idle.",
	})

	ListenersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonorium_listeners_active",
		Help: "Number of Listener Encoders currently attached.",
	})

	DecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonorium_decode_failures_total",
		Help: "Total Recording Players disabled after a decode failure.",
	})

	ListenerDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonorium_listener_drops_total",
		Help: "Total chunks dropped from Listener Encoder output queues.",
	})

	ListenersDeadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonorium_listeners_dead_total",
		Help: "Total Listener Encoders marked dead after sustained backpressure.",
	})

	ExclusionGrantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonorium_exclusion_grants_total",
		Help: "Total exclusive plays granted by the Exclusion Coordinator.",
	})
)

// Database metrics, recorded by GORM callbacks registered in internal/db.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sonorium_database_query_duration_seconds",
		Help:    "GORM operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonorium_database_errors_total",
		Help: "Total GORM operation errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonorium_database_connections_active",
		Help: "Open connections in the theme store's connection pool.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
