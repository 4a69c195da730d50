// Package server implements the operational HTTP surface of the registrar:
// liveness, readiness, and the backfill trigger. Ingestion itself runs in
// the pipeline loops, not behind HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Backfiller runs a synthetic discovery cycle for a date range.
// *pipeline.Runner satisfies it.
type Backfiller interface {
	Backfill(ctx context.Context, from, to time.Time) (int, error)
}

// Pinger reports whether the metadata store is reachable. *storage.DB
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the registrar ops HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds the dependencies and settings for creating a Server.
type Config struct {
	DB         Pinger
	Backfiller Backfiller
	Logger     *slog.Logger

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates the ops server with all routes configured.
func New(cfg Config) *Server {
	h := &handlers{
		db:         cfg.DB,
		backfiller: cfg.Backfiller,
		logger:     cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	mux.HandleFunc("POST /backfill", h.handleBackfill)

	// Middleware chain (outermost executes first):
	// request ID → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
