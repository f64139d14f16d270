package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides HTTP endpoints for Prometheus metrics and health checks.
type Server struct {
	addr      string
	server    *http.Server
	collector *Collector
	logger    *slog.Logger
}

// healthStatus is the payload of the health endpoints.
type healthStatus struct {
	Status          string `json:"status"`
	ActiveProcesses int    `json:"active_processes"`
	PeakActive      int    `json:"peak_active"`
	TotalStarts     int    `json:"total_starts"`
	TotalRestarts   int    `json:"total_restarts"`
}

// NewServer creates a new metrics server. The collector feeds the
// health endpoints; nil is allowed and reports status only.
func NewServer(addr string, collector *Collector, logger *slog.Logger) *Server {
	s := &Server{
		addr:      addr,
		collector: collector,
		logger:    logger,
	}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/ready", s.healthHandler)
	mux.HandleFunc("/readyz", s.healthHandler)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// healthHandler reports the fleet's current counters. The supervisor
// itself is healthy as long as it serves, even while children restart.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok"}
	if s.collector != nil {
		status.ActiveProcesses = s.collector.ActiveCount()
		status.PeakActive = s.collector.PeakActive()
		status.TotalStarts = s.collector.TotalStarts()
		status.TotalRestarts = s.collector.TotalRestarts()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// Start starts the metrics server in a goroutine.
// Returns immediately. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("metrics_server_starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}
