// Package server exposes the bot's read-only status API over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/server/handler"
	"github.com/alanyoungcy/pairbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter and RateLimitPerMinute enable per-IP rate limiting when both
	// are set.
	Limiter            domain.RateLimiter
	RateLimitPerMinute int
}

// Handlers aggregates the HTTP handlers to register. Windows and Audit are
// optional.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Resolutions *handler.ResolutionHandler
	Windows     *handler.WindowHandler
	Audit       *handler.AuditHandler
}

// Server is the headless HTTP status API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied: rate limit, auth, logging, then CORS outermost.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           buildHandler(cfg, handlers, logger),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

func buildHandler(cfg Config, handlers Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/resolutions/{conditionID}", handlers.Resolutions.GetResolution)
	if handlers.Windows != nil {
		mux.HandleFunc("GET /api/windows", handlers.Windows.ListWindows)
		mux.HandleFunc("GET /api/windows/{slug}", handlers.Windows.GetWindow)
		mux.HandleFunc("GET /api/windows/{slug}/fills", handlers.Windows.ListFills)
	}
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}

	const healthPath = "/api/health"
	var h http.Handler = mux
	if cfg.Limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimitPerMinute, time.Minute, logger, healthPath)(h)
	}
	h = middleware.Auth(cfg.APIKey, healthPath)(h)
	h = middleware.Logging(logger, healthPath)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutCtx); err != nil {
		return err
	}
	return <-errCh
}
