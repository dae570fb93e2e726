// Package ops serves the operational HTTP side port: metrics and health.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/nextbest/internal/metrics"
)

// ProbeTimeout bounds one readiness check.
const ProbeTimeout = 2 * time.Second

// Probe reports whether the backing store answers.
type Probe func(ctx context.Context) error

// NewRouter exposes GET /metrics and GET /healthz.
func NewRouter(m *metrics.Metrics, probe Probe, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), ProbeTimeout)
		defer cancel()
		if err := probe(ctx); err != nil {
			log.Warn("health probe failed", zap.Error(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
