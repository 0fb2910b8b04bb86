package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/serviceline/ticket-analytics-backend/internal/api/rest"
	"github.com/serviceline/ticket-analytics-backend/internal/api/websocket"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/cache"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/config"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/database"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/instrumentation"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/telemetry"
	"github.com/serviceline/ticket-analytics-backend/internal/metrics"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

func main() {
	var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting ticket analytics backend",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port)

	provider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    "ticket-analytics-backend",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  30 * time.Second,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating zap logger: %w", err)
	}
	defer zapLogger.Sync()

	registry, err := metrics.NewRegistry("ticket-analytics-backend")
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	pool, err := database.NewConnectionPool(&cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	cacheManager, err := cache.NewCacheManager(&cfg.Redis, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer cacheManager.Close()

	wsHandler := websocket.NewHandler(zapLogger, registry)

	svc, err := buildReportingService(cfg, pool, cacheManager, wsHandler, registry, logger, zapLogger)
	if err != nil {
		return err
	}

	server, err := rest.NewServer(cfg, rest.Deps{
		Reports:   svc,
		Cache:     cacheManager,
		DB:        pool,
		Metrics:   registry,
		WebSocket: wsHandler,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	stopMetrics := make(chan struct{})
	defer close(stopMetrics)
	go collectPoolMetrics(pool.GetPrimary(), registry, stopMetrics)
	go serveMetrics(cfg.Telemetry.MetricsPort, logger)

	return server.Start(ctx)
}

// buildReportingService assembles the analytics pipeline: row source,
// document cache, fan-out run notifier, and tracing decoration.
func buildReportingService(
	cfg *config.Config,
	pool *database.ConnectionPool,
	cacheManager *cache.CacheManager,
	wsHandler *websocket.Handler,
	registry *metrics.Registry,
	logger *slog.Logger,
	zapLogger *zap.Logger,
) (reporting.Service, error) {
	loc, err := cfg.Reporting.Location()
	if err != nil {
		return nil, fmt.Errorf("reporting timezone: %w", err)
	}
	policies, err := cfg.Reporting.PolicySet()
	if err != nil {
		return nil, fmt.Errorf("reporting SLA policies: %w", err)
	}
	categories, err := cfg.Reporting.CategoryMap()
	if err != nil {
		return nil, fmt.Errorf("reporting categories: %w", err)
	}

	rows := instrumentation.NewMeteredRowSource(
		database.NewTicketRepository(pool.GetReadConnection(false), zapLogger), registry)
	runLog := database.NewRunLogRepository(pool.GetPrimary(), zapLogger)
	notifier := newRunNotifier(wsHandler.RunEvents(), cacheManager.Runs, runLog, registry, logger)

	svc := reporting.NewService(rows, cacheManager.Reports, notifier, reporting.Options{
		Zone:             loc,
		Policies:         policies,
		Categories:       reporting.CategoryMap(categories),
		TopN:             cfg.Reporting.TopN,
		IncludeCarryOver: cfg.Reporting.IncludeCarryOver,
		CacheTTL:         cfg.Reporting.CacheTTL,
	}, logger)

	tracer := telemetry.NewOpenTelemetryTracer("reporting")
	return instrumentation.NewReportingTracedService(svc, tracer, registry), nil
}

// serveMetrics exposes the Prometheus scrape endpoint on its own port
func serveMetrics(port int, logger *slog.Logger) {
	if port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}
