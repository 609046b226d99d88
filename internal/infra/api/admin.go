package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ideaforge-billing/internal/infra/metrics"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewAdminServer serves Prometheus metrics and a readiness probe that runs
// every check.
func NewAdminServer(port int, logger *zerolog.Logger, checks ...HealthCheck) *http.Server {
	l := logger.With().Str("component", "admin").Logger()
	r := chi.NewRouter()
	r.Use(Recover(&l))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				l.Warn().Err(err).Str("check", c.Name).Msg("health check failed")
				status[c.Name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			status[c.Name] = "up"
		}
		writeJSON(w, code, status)
	})
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
