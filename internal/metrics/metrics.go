// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Escrow program
	EscrowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Committed escrow transitions",
		},
		[]string{"kind"},
	)

	EscrowFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_failures_total",
			Help: "Rejected escrow transitions",
		},
		[]string{"kind", "reason"},
	)

	EscrowReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_replays_total",
		Help: "Transactions answered from the journal instead of executed",
	})

	EscrowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_transition_duration_seconds",
			Help:    "Time spent executing an escrow transition",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// RPC
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "JSON-RPC requests by method and outcome",
		},
		[]string{"method", "status"},
	)

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rpc_ws_clients",
		Help: "Connected WebSocket clients",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
