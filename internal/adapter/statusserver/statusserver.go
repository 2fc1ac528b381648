// Package statusserver exposes the worker process's operational surface:
// liveness/readiness probes and a Prometheus /metrics endpoint, built the
// same way the teacher composes its API router — a chi mux with a small,
// fixed middleware stack — scaled down to what a long-running background
// worker needs instead of a public JSON API.
package statusserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/godon-project/breeder-worker/internal/config"
)

// Pinger is implemented by anything that can report liveness, typically a
// *pgxpool.Pool. Kept minimal so this package doesn't import pgx directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status reports the worker's current readiness summary.
type Status struct {
	BreederID string
	WorkerID  string
	State     string
}

// StatusFunc returns the current Status for /readyz to report.
type StatusFunc func() Status

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty or "*" input means allow-all.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the status server's HTTP handler.
func BuildRouter(cfg config.Config, db Pinger, status StatusFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer())
	r.Use(accessLog())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))

	r.Get("/healthz", healthzHandler(db))
	r.Get("/readyz", readyzHandler(status))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return securityHeaders(r)
}

func healthzHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func readyzHandler(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}
		s := status()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"breeder_id":"` + s.BreederID + `","worker_id":"` + s.WorkerID + `","state":"` + s.State + `"}`))
	}
}
