package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serviceline/ticket-analytics-backend/internal/api/websocket"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/cache"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/config"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/database"
	"github.com/serviceline/ticket-analytics-backend/internal/metrics"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// Deps are the collaborators the REST server wires together
type Deps struct {
	Reports   reporting.Service
	Cache     *cache.CacheManager
	DB        *database.ConnectionPool
	Metrics   *metrics.Registry
	WebSocket *websocket.Handler
}

// Server is the HTTP API server
type Server struct {
	config     *config.Config
	httpServer *http.Server
	handler    *Handler
	health     *HealthService
	ws         *websocket.Handler
	logger     *slog.Logger
}

// NewServer creates a new API server with the full middleware stack
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Reports == nil {
		return nil, fmt.Errorf("reporting service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var runs *cache.RunStatusStore
	if deps.Cache != nil {
		runs = deps.Cache.Runs
	}

	s := &Server{
		config:  cfg,
		handler: NewHandler(deps.Reports, runs, logger),
		health:  NewHealthService(cfg.Version),
		ws:      deps.WebSocket,
		logger:  logger,
	}
	s.registerHealthChecks(deps)

	routes, err := s.setupRoutes(deps)
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) registerHealthChecks(deps Deps) {
	if deps.DB != nil {
		pool := deps.DB
		s.health.Register(NewCheckerFunc("database", func(ctx context.Context) error {
			return pool.GetPrimary().Ping(ctx)
		}))
	}
	if deps.Cache != nil {
		cm := deps.Cache
		s.health.Register(NewCheckerFunc("cache", func(ctx context.Context) error {
			return cm.HealthCheck(ctx)
		}))
	}
	if deps.WebSocket != nil {
		ws := deps.WebSocket
		s.health.Register(NewCheckerFunc("websocket", func(ctx context.Context) error {
			return ws.HealthCheck()
		}))
	}
}

func (s *Server) setupRoutes(deps Deps) (http.Handler, error) {
	api := http.NewServeMux()
	api.HandleFunc("POST /reports", s.handler.handleGenerateReport)
	api.HandleFunc("GET /reports/{id}", s.handler.handleGetReport)
	api.HandleFunc("GET /runs/{id}", s.handler.handleGetRun)
	api.HandleFunc("GET /tickets/stats", s.handler.handleGetStats)
	api.HandleFunc("GET /tickets/trend", s.handler.handleGetTrend)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", api))
	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleLiveness)
	mux.HandleFunc("GET /ready", s.health.HandleReadiness)
	mux.HandleFunc("GET /readyz", s.health.HandleReadiness)
	if s.ws != nil {
		mux.HandleFunc("GET /ws/runs", s.ws.HandleRunEvents)
	}

	middlewares := []Middleware{
		requestIDMiddleware,
		loggingMiddleware,
		metricsMiddleware(deps.Metrics),
		recoveryMiddleware,
		corsMiddleware(s.config.Security.AllowedOrigins),
	}

	if s.config.Security.RateLimit.RequestsPerSecond > 0 {
		var limiter cache.RateLimiter
		if deps.Cache != nil && deps.Cache.RateLimiter != nil {
			limiter = deps.Cache.RateLimiter
		} else {
			// Single-instance fallback; counts are not shared across replicas.
			limiter = NewLocalRateLimiter(s.config.Security.RateLimit.BurstSize)
		}
		rl := NewRateLimiterMiddleware(limiter,
			s.config.Security.RateLimit.RequestsPerSecond,
			time.Second)
		middlewares = append(middlewares, rl.Middleware)
	}

	if s.config.Server.ContractPath != "" {
		validator, err := NewContractValidator(s.config.Server.ContractPath)
		if err != nil {
			return nil, fmt.Errorf("contract validator: %w", err)
		}
		middlewares = append(middlewares, validator.Middleware)
	}

	if len(s.config.Security.JWTSecret) > 0 {
		auth := NewAuthMiddleware(&AuthConfig{
			JWTSecret:   []byte(s.config.Security.JWTSecret),
			TokenExpiry: s.config.Security.TokenExpiry,
			Issuer:      "ticket-analytics-backend",
		})
		middlewares = append(middlewares, ConditionalMiddleware(auth.Middleware, isProtectedEndpoint))
	}

	middlewares = append(middlewares, timeoutMiddleware(s.config.Server.WriteTimeout))

	// Apply in reverse so the first listed middleware runs first.
	var handler http.Handler = mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler, nil
}

// ConditionalMiddleware applies a middleware only when the predicate
// matches the request
func ConditionalMiddleware(mw Middleware, when func(*http.Request) bool) Middleware {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if when(r) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isProtectedEndpoint reports whether a path requires authentication.
// Health probes and the run feed stay open; the feed carries no ticket
// data, only run lifecycle markers.
func isProtectedEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/healthz", "/ready", "/readyz", "/ws/runs":
		return false
	}
	return true
}

// Start runs the server until the context is cancelled or a shutdown
// signal arrives
func (s *Server) Start(ctx context.Context) error {
	if s.ws != nil {
		s.ws.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.ws != nil {
		s.ws.Stop()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}
