package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/config"
)

// ConnectionPool wraps pgx pools for the ticket store with circuit
// breaker, health checks, and optional read replicas. Report runs are
// read-heavy; replicas carry the window scans when available.
type ConnectionPool struct {
	primary         *pgxpool.Pool
	replicas        []*pgxpool.Pool
	config          *config.DatabaseConfig
	logger          *zap.Logger
	mu              sync.RWMutex
	healthCheckStop chan struct{}
	metrics         *ConnectionMetrics
	circuitBreaker  *CircuitBreaker
}

// ConnectionMetrics tracks database performance metrics
type ConnectionMetrics struct {
	mu sync.RWMutex

	TotalConnections    int64
	ActiveConnections   int64
	IdleConnections     int64
	MaxLifetimeClosures int64

	QueriesExecuted int64
	QueriesFailed   int64

	ReplicationLag  time.Duration
	LastHealthCheck time.Time
}

// CircuitBreaker implements circuit breaker pattern for database connections
type CircuitBreaker struct {
	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time
	state           CircuitState
	timeout         time.Duration
	threshold       int
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// NewConnectionPool creates a new connection pool against the ticket store
func NewConnectionPool(cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	pool := &ConnectionPool{
		config:          cfg,
		logger:          logger,
		healthCheckStop: make(chan struct{}),
		metrics:         &ConnectionMetrics{},
		circuitBreaker: &CircuitBreaker{
			timeout:   30 * time.Second,
			threshold: 10,
			state:     CircuitClosed,
		},
	}

	primaryConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse primary database URL: %w", err)
	}

	pool.configurePgxPool(primaryConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool.primary, err = pgxpool.NewWithConfig(ctx, primaryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary connection pool: %w", err)
	}

	if err := pool.primary.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping primary database: %w", err)
	}

	pool.replicas = make([]*pgxpool.Pool, 0, len(cfg.ReplicaURLs))
	for i, replicaURL := range cfg.ReplicaURLs {
		replicaConfig, err := pgxpool.ParseConfig(replicaURL)
		if err != nil {
			logger.Warn("failed to parse replica URL",
				zap.Int("replica", i),
				zap.Error(err))
			continue
		}

		pool.configurePgxPool(replicaConfig)

		replica, err := pgxpool.NewWithConfig(ctx, replicaConfig)
		if err != nil {
			logger.Warn("failed to create replica connection pool",
				zap.Int("replica", i),
				zap.Error(err))
			continue
		}

		if err := replica.Ping(ctx); err != nil {
			logger.Warn("failed to ping replica database",
				zap.Int("replica", i),
				zap.Error(err))
			replica.Close()
			continue
		}

		pool.replicas = append(pool.replicas, replica)
	}

	go pool.healthCheckRoutine()
	go pool.metricsCollectionRoutine()

	logger.Info("database connection pool initialized",
		zap.Int("replicas", len(pool.replicas)),
		zap.Int("max_connections", int(primaryConfig.MaxConns)))

	return pool, nil
}

// configurePgxPool applies pool configuration shared by primary and replicas
func (p *ConnectionPool) configurePgxPool(config *pgxpool.Config) {
	if p.config.MaxOpenConns > 0 {
		config.MaxConns = int32(p.config.MaxOpenConns)
	} else {
		config.MaxConns = 25
	}
	if p.config.MaxIdleConns > 0 {
		config.MinConns = int32(p.config.MaxIdleConns)
	} else {
		config.MinConns = 5
	}
	if p.config.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = p.config.ConnMaxLifetime
	} else {
		config.MaxConnLifetime = 30 * time.Minute
	}
	config.MaxConnIdleTime = 10 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	config.ConnConfig.ConnectTimeout = 5 * time.Second

	// Window scans over large ticket tables: keep statement timeout
	// generous but bounded.
	config.ConnConfig.RuntimeParams = map[string]string{
		"application_name":                    "ticket_analytics_backend",
		"search_path":                         "itsm,public",
		"timezone":                            "UTC",
		"lock_timeout":                        "10s",
		"statement_timeout":                   "120s",
		"idle_in_transaction_session_timeout": "60s",
		"default_transaction_isolation":       "read committed",
	}

	config.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		p.logger.Debug("establishing database connection",
			zap.String("host", cc.Host),
			zap.Uint16("port", cc.Port))
		return nil
	}

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		p.metrics.mu.Lock()
		p.metrics.TotalConnections++
		p.metrics.mu.Unlock()
		return nil
	}

	config.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		if !p.circuitBreaker.Allow() {
			return false
		}

		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		return conn.Ping(ctx) == nil
	}

	config.AfterRelease = func(conn *pgx.Conn) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		_, err := conn.Exec(ctx, "DISCARD ALL")
		return err == nil
	}
}

// GetPrimary returns a connection to the primary database
func (p *ConnectionPool) GetPrimary() *pgxpool.Pool {
	return p.primary
}

// GetReplica returns a connection to a read replica using round-robin
func (p *ConnectionPool) GetReplica() *pgxpool.Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.replicas) == 0 {
		return p.primary
	}

	now := time.Now().UnixNano()
	index := int(now % int64(len(p.replicas)))

	return p.replicas[index]
}

// GetReadConnection returns the connection report queries should use.
// Falls back to the primary when replication lag would make a window
// scan read stale ticket state.
func (p *ConnectionPool) GetReadConnection(preferPrimary bool) *pgxpool.Pool {
	if preferPrimary || len(p.replicas) == 0 {
		return p.primary
	}

	p.metrics.mu.RLock()
	lag := p.metrics.ReplicationLag
	p.metrics.mu.RUnlock()

	if lag > 5*time.Second {
		p.logger.Warn("high replication lag detected, using primary",
			zap.Duration("lag", lag))
		return p.primary
	}

	return p.GetReplica()
}

// Transaction executes a function within a database transaction
func (p *ConnectionPool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return p.TransactionWithOptions(ctx, pgx.TxOptions{}, fn)
}

// TransactionWithOptions executes a function within a database transaction with options
func (p *ConnectionPool) TransactionWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, p.primary, opts, fn)

	if err != nil {
		p.circuitBreaker.RecordFailure()
	} else {
		p.circuitBreaker.RecordSuccess()
	}

	return err
}

// healthCheckRoutine performs periodic health checks
func (p *ConnectionPool) healthCheckRoutine() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.performHealthCheck()
		case <-p.healthCheckStop:
			return
		}
	}
}

// performHealthCheck checks the health of all connections
func (p *ConnectionPool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.primary.Ping(ctx); err != nil {
		p.logger.Error("primary database health check failed", zap.Error(err))
		p.circuitBreaker.RecordFailure()
	}

	p.mu.Lock()
	healthyReplicas := make([]*pgxpool.Pool, 0, len(p.replicas))
	for i, replica := range p.replicas {
		if err := replica.Ping(ctx); err != nil {
			p.logger.Warn("replica health check failed",
				zap.Int("replica", i),
				zap.Error(err))
			continue
		}

		var lag time.Duration
		row := replica.QueryRow(ctx, `
			SELECT EXTRACT(EPOCH FROM (NOW() - pg_last_xact_replay_timestamp()))::INTEGER
		`)

		var lagSeconds sql.NullInt64
		if err := row.Scan(&lagSeconds); err == nil && lagSeconds.Valid {
			lag = time.Duration(lagSeconds.Int64) * time.Second
		}

		if lag > 30*time.Second {
			p.logger.Warn("high replication lag on replica",
				zap.Int("replica", i),
				zap.Duration("lag", lag))
		}

		healthyReplicas = append(healthyReplicas, replica)
	}
	p.replicas = healthyReplicas
	p.mu.Unlock()

	p.metrics.mu.Lock()
	p.metrics.LastHealthCheck = time.Now()
	p.metrics.mu.Unlock()
}

// metricsCollectionRoutine collects performance metrics
func (p *ConnectionPool) metricsCollectionRoutine() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.collectMetrics()
		case <-p.healthCheckStop:
			return
		}
	}
}

// collectMetrics gathers current performance metrics
func (p *ConnectionPool) collectMetrics() {
	stats := p.primary.Stat()

	p.metrics.mu.Lock()
	p.metrics.ActiveConnections = int64(stats.AcquiredConns())
	p.metrics.IdleConnections = int64(stats.IdleConns())
	p.metrics.MaxLifetimeClosures = stats.MaxLifetimeDestroyCount()
	p.metrics.mu.Unlock()
}

// Close closes all database connections
func (p *ConnectionPool) Close() error {
	close(p.healthCheckStop)

	for _, replica := range p.replicas {
		replica.Close()
	}

	p.primary.Close()

	p.logger.Info("database connection pool closed")
	return nil
}

// CircuitBreaker methods
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = CircuitClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// GetDB returns a standard database/sql DB for compatibility with
// tooling that expects database/sql (migrations, test harnesses)
func (p *ConnectionPool) GetDB() (*sql.DB, error) {
	return stdlib.OpenDBFromPool(p.primary), nil
}
