// Package healthsrv serves liveness, readiness, and Prometheus metrics
// over HTTP. It is grounded on the teacher's
// References/orion-prototipe/internal/core/health.go, trimmed of the
// per-worker metrics section (postlens has no worker pool) and with its
// placeholder /metrics stub replaced by promhttp.Handler(), the pattern
// dj-oyu-rdk-x5_smart-pet-camera/src/streaming_server/internal/metrics
// uses for the same endpoint.
package healthsrv

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports the liveness of postlens's external dependencies.
// Either field may be nil, in which case that dependency is treated as
// healthy (SPEC_FULL never requires MQTT or the classifier to be up for
// the process itself to be considered alive).
type Checker struct {
	ClassifierHealthy  func(ctx context.Context) bool
	TelemetryConnected func() bool
}

// Status is the JSON body of /readiness.
type Status struct {
	Status        string `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64  `json:"uptime_seconds"`
	ClassifierUp  bool   `json:"classifier_up"`
	TelemetryUp   bool   `json:"telemetry_up"`
}

// Server is the process health/readiness/metrics HTTP server (SPEC_FULL
// §3, §4).
type Server struct {
	addr    string
	checker Checker
	started time.Time

	http *http.Server
}

// New builds a Server bound to addr.
func New(addr string, checker Checker) *Server {
	return &Server{addr: addr, checker: checker, started: time.Now()}
}

// ListenAndServe starts the HTTP listener. It blocks until ctx is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.liveness)
	mux.HandleFunc("/readiness", s.readiness)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.http = srv

	errCh := make(chan error, 1)
	go func() {
		slog.Info("health server listening", "addr", s.addr, "endpoints", []string{"/health", "/readiness", "/metrics"})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	classifierUp := true
	if s.checker.ClassifierHealthy != nil {
		classifierUp = s.checker.ClassifierHealthy(r.Context())
	}
	telemetryUp := true
	if s.checker.TelemetryConnected != nil {
		telemetryUp = s.checker.TelemetryConnected()
	}

	status := Status{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		ClassifierUp:  classifierUp,
		TelemetryUp:   telemetryUp,
	}
	if !classifierUp || !telemetryUp {
		status.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // degraded is still ready, per spec's own health endpoint supplement
	_ = json.NewEncoder(w).Encode(status)
}
