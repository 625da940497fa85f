package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency probe of /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// Health states.
const (
	healthOK        = "ok"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	// Remote API
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog: promLogger{s},
	}))

	return r
}

// handleHealth probes the database and the optional dependencies.
// A failing database is fatal (503); a failing optional dependency only
// degrades the report.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, 3)
	status := healthOK
	code := http.StatusOK

	if err := s.probe(r.Context(), s.db.HealthCheck); err != nil {
		checks["database"] = err.Error()
		status = healthUnhealthy
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = healthOK
	}

	for name, dep := range map[string]Dependency{"mqtt": s.mqtt, "influxdb": s.influx} {
		if dep == nil {
			continue
		}
		if err := s.probe(r.Context(), dep.HealthCheck); err != nil {
			checks[name] = err.Error()
			if status == healthOK {
				status = healthDegraded
			}
			continue
		}
		checks[name] = healthOK
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

func (s *Server) probe(ctx context.Context, check func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return check(ctx)
}

// promLogger routes promhttp errors into the structured logger.
type promLogger struct{ s *Server }

func (l promLogger) Println(v ...any) {
	l.s.logger.Error("metrics exposition failed", "error", v)
}
