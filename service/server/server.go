package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/solvent/service/config"
	"github.com/brojonat/solvent/service/metrics"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/temporal"
)

// Server represents the HTTP server for the dashboard API.
type Server struct {
	addr      string
	cfg       *config.Config
	store     Store
	analyzer  rent.Analyzer
	scheduler temporal.Scheduler
	alerts    AlertStreamer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The scheduler is used to create/delete Temporal watch schedules for tracked addresses.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store Store, analyzer rent.Analyzer, scheduler temporal.Scheduler, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		analyzer:  analyzer,
		scheduler: scheduler,
		metrics:   m,
		logger:    logger,
	}
}

// WithAlertStream enables the server-sent alert stream endpoints.
func (s *Server) WithAlertStream(alerts AlertStreamer) *Server {
	s.alerts = alerts
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/scan/{address}", "/api/v1/scan", handleScan(s.analyzer, s.cfg, s.logger))
	route("GET /api/v1/tracked", "/api/v1/tracked", handleListTracked(s.store, s.logger))
	route("POST /api/v1/tracked", "/api/v1/tracked", handleTrack(s.store, s.scheduler, s.cfg, s.logger))
	route("DELETE /api/v1/tracked/{address}", "/api/v1/tracked", handleUntrack(s.store, s.scheduler, s.logger))
	route("GET /api/v1/snapshots/{address}", "/api/v1/snapshots", handleLatestSnapshot(s.store, s.logger))

	if s.alerts != nil {
		mux.Handle("GET /api/v1/stream/alerts/{address}", handleStreamAlerts(s.alerts, s.logger))
		mux.Handle("GET /api/v1/stream/alerts", handleStreamAlerts(s.alerts, s.logger))
		s.logger.Info("alert streaming endpoints enabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // scans page through long histories
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
