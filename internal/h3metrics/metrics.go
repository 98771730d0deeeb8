// Package h3metrics exposes the engine's runtime counters through
// github.com/prometheus/client_golang, the way a production service wires
// up a /metrics endpoint: one registry, created once, handed to every
// component that needs to record something.
package h3metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every instrument the engine records against.
type Metrics struct {
	Connections       prometheus.Gauge
	QueueDepth        prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	CallbackLatency   prometheus.Histogram
	ConnectionsRejected prometheus.Counter
}

// New creates and registers a fresh instrument set against registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "h3d",
			Name:      "connections_open",
			Help:      "Number of currently established HTTP/3 connections.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "h3d",
			Name:      "worker_queue_depth",
			Help:      "Number of work items currently queued for workers.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "h3d",
			Name:      "requests_total",
			Help:      "Requests completed, labeled by response status class.",
		}, []string{"status_class"}),
		CallbackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "h3d",
			Name:      "callback_latency_seconds",
			Help:      "Application callback latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "h3d",
			Name:      "connections_rejected_total",
			Help:      "Connections rejected at admission control (H3_EXCESSIVE_LOAD).",
		}),
	}
	registry.MustRegister(
		m.Connections,
		m.QueueDepth,
		m.RequestsTotal,
		m.CallbackLatency,
		m.ConnectionsRejected,
	)
	return m
}

// Handler returns the HTTP handler cmd/h3d mounts for scraping, wired
// against the same registry New was given.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// StatusClass buckets an HTTP status into the "1xx".."5xx" label
// RequestsTotal uses.
func StatusClass(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
