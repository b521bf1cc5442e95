// Package server exposes the HTTP API: health, sync control, and the
// aggregate read endpoints backing the dashboard.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperscope/fillsync/internal/server/handler"
	"github.com/hyperscope/fillsync/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// CronSecret guards the mutating sync endpoints. Empty disables auth,
	// intended for local development only.
	CronSecret string
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Sync   *handler.SyncHandler
	Stats  *handler.StatsHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Read endpoints are
// open; the sync trigger and resync endpoints require the cron secret.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	auth := middleware.Auth(cfg.CronSecret)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/sync/status", handlers.Sync.Status)
	mux.HandleFunc("GET /api/sync/errors", handlers.Sync.Errors)
	mux.Handle("POST /api/sync/trigger", auth(http.HandlerFunc(handlers.Sync.Trigger)))
	mux.Handle("POST /api/sync/resync", auth(http.HandlerFunc(handlers.Sync.Resync)))

	mux.HandleFunc("GET /api/stats", handlers.Stats.Stats)
	mux.HandleFunc("GET /api/data", handlers.Stats.Data)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous sync trigger can be slow
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
