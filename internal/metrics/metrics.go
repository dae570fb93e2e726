// Package metrics holds the prometheus collectors exported on the ops port.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers don't collide.
type Metrics struct {
	reg *prometheus.Registry

	RPCTotal    *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec
	Logins      *prometheus.CounterVec
	Imported    prometheus.Counter
}

// New registers all collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		RPCTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nextbest",
			Name:      "grpc_requests_total",
			Help:      "Unary RPCs handled, by method and status code.",
		}, []string{"method", "code"}),
		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nextbest",
			Name:      "grpc_request_duration_seconds",
			Help:      "Unary RPC latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nextbest",
			Name:      "logins_total",
			Help:      "Login attempts by outcome (ok, denied, limited, error).",
		}, []string{"outcome"}),
		Imported: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nextbest",
			Name:      "imported_suggestions_total",
			Help:      "Suggestions inserted by bulk import.",
		}),
	}
}

// ObserveRPC records one finished call.
func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	m.RPCTotal.WithLabelValues(method, code).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
