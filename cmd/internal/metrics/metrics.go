// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "axionx"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status class.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10, 30},
		},
		[]string{"method", "route"},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Calls to the chat answer service by outcome (ok, status, transport, decode).",
		},
		[]string{"outcome"},
	)

	GatewayRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the chat answer service.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	ChatSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "sends_total",
			Help:      "Chat sends by outcome.",
		},
		[]string{"outcome"},
	)

	ChatPersistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "persist_failures_total",
			Help:      "Failed conversation store writes issued by chat sessions.",
		},
		[]string{"op"},
	)

	ChangeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changes",
			Name:      "events_total",
			Help:      "Change notifications by table and delivery result (delivered, coalesced).",
		},
		[]string{"table", "result"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open chat WebSocket connections.",
		},
	)

	LeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "submissions_total",
			Help:      "Lead submissions by kind (demo, quick_access, contact) and result.",
		},
		[]string{"kind", "result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
