package health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/venuepost/publisher/internal/publish/orchestrator"
)

// Runner triggers one publish cycle on demand.
type Runner interface {
	ProcessDue(ctx context.Context) (*orchestrator.RunReport, error)
}

// Server provides the operational HTTP endpoints.
type Server struct {
	monitor *Monitor
	runner  Runner
	secret  string
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates the HTTP server. secret guards the manual trigger; an
// empty secret disables it.
func NewServer(monitor *Monitor, runner Runner, secret string, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		runner:  runner,
		secret:  secret,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		log: slog.Default().With("component", "health-server"),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/run", s.handleRun)

	return s
}

// Handler exposes the mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// handleRun triggers one publish cycle immediately instead of waiting for
// the scheduler tick. Authenticated by the shared trigger secret.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Publisher-Secret")), []byte(s.secret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	report, err := s.runner.ProcessDue(ctx)
	if err != nil {
		s.log.Error("Triggered run failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("Triggered run finished", "processed", report.Processed, "reaped", report.Reaped, "duration", time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
