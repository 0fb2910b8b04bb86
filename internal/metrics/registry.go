package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain-specific metrics for the application
type Registry struct {
	meter metric.Meter

	// Report Pipeline Metrics
	ReportGenerationDuration metric.Float64Histogram
	ReportSuccessCounter     metric.Int64Counter
	ReportFailureCounter     metric.Int64Counter
	ReportCacheHitCounter    metric.Int64Counter
	ReportCacheMissCounter   metric.Int64Counter
	ActiveRuns               metric.Int64ObservableGauge

	// Normalization Metrics
	RowsIngestedTotal  metric.Int64Counter
	RowsSkippedTotal   metric.Int64Counter
	SchemaErrorCounter metric.Int64Counter

	// Source Metrics
	SourceFetchDuration metric.Float64Histogram
	SourceFetchFailures metric.Int64Counter
	SourceRowsGauge     metric.Int64ObservableGauge

	// System Metrics
	DatabaseConnectionPool metric.Int64ObservableGauge
	APIRequestDuration     metric.Float64Histogram
	APIRequestCounter      metric.Int64Counter
	WebsocketClients       metric.Int64ObservableGauge

	// State for observable metrics
	mu               sync.RWMutex
	activeRuns       int64
	lastFetchedRows  int64
	dbPoolSize       int64
	websocketClients int64
}

// NewRegistry creates a new metrics registry with all domain metrics
func NewRegistry(meterName string) (*Registry, error) {
	meter := otel.Meter(meterName)
	r := &Registry{meter: meter}

	if err := r.initReportMetrics(); err != nil {
		return nil, err
	}

	if err := r.initNormalizationMetrics(); err != nil {
		return nil, err
	}

	if err := r.initSourceMetrics(); err != nil {
		return nil, err
	}

	if err := r.initSystemMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

// initReportMetrics initializes report pipeline metrics
func (r *Registry) initReportMetrics() error {
	var err error

	r.ReportGenerationDuration, err = r.meter.Float64Histogram(
		"tab.report.generation_duration",
		metric.WithDescription("End-to-end report generation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}

	r.ReportSuccessCounter, err = r.meter.Int64Counter(
		"tab.report.success_total",
		metric.WithDescription("Total number of successfully generated reports"),
	)
	if err != nil {
		return err
	}

	r.ReportFailureCounter, err = r.meter.Int64Counter(
		"tab.report.failure_total",
		metric.WithDescription("Total number of failed report runs"),
	)
	if err != nil {
		return err
	}

	r.ReportCacheHitCounter, err = r.meter.Int64Counter(
		"tab.report.cache_hit_total",
		metric.WithDescription("Report requests served from the document cache"),
	)
	if err != nil {
		return err
	}

	r.ReportCacheMissCounter, err = r.meter.Int64Counter(
		"tab.report.cache_miss_total",
		metric.WithDescription("Report requests that required a fresh run"),
	)
	if err != nil {
		return err
	}

	r.ActiveRuns, err = r.meter.Int64ObservableGauge(
		"tab.report.active_runs",
		metric.WithDescription("Number of report runs currently in flight"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.activeRuns)
			return nil
		}),
	)

	return err
}

// initNormalizationMetrics initializes row normalization metrics
func (r *Registry) initNormalizationMetrics() error {
	var err error

	r.RowsIngestedTotal, err = r.meter.Int64Counter(
		"tab.normalize.rows_ingested_total",
		metric.WithDescription("Total raw rows accepted into the record set"),
	)
	if err != nil {
		return err
	}

	r.RowsSkippedTotal, err = r.meter.Int64Counter(
		"tab.normalize.rows_skipped_total",
		metric.WithDescription("Total raw rows rejected by per-row validation"),
	)
	if err != nil {
		return err
	}

	r.SchemaErrorCounter, err = r.meter.Int64Counter(
		"tab.normalize.schema_error_total",
		metric.WithDescription("Total fetches aborted by schema validation"),
	)

	return err
}

// initSourceMetrics initializes ticket source metrics
func (r *Registry) initSourceMetrics() error {
	var err error

	r.SourceFetchDuration, err = r.meter.Float64Histogram(
		"tab.source.fetch_duration",
		metric.WithDescription("Ticket source fetch duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 500, 1000, 5000, 10000, 30000),
	)
	if err != nil {
		return err
	}

	r.SourceFetchFailures, err = r.meter.Int64Counter(
		"tab.source.fetch_failure_total",
		metric.WithDescription("Total failed ticket source fetches"),
	)
	if err != nil {
		return err
	}

	r.SourceRowsGauge, err = r.meter.Int64ObservableGauge(
		"tab.source.last_fetch_rows",
		metric.WithDescription("Row count of the most recent source fetch"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.lastFetchedRows)
			return nil
		}),
	)

	return err
}

// initSystemMetrics initializes system-level metrics
func (r *Registry) initSystemMetrics() error {
	var err error

	r.DatabaseConnectionPool, err = r.meter.Int64ObservableGauge(
		"tab.system.db_connection_pool_size",
		metric.WithDescription("Current database connection pool size"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.dbPoolSize)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"tab.api.request_duration",
		metric.WithDescription("API request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"tab.api.request_total",
		metric.WithDescription("Total number of API requests"),
	)
	if err != nil {
		return err
	}

	r.WebsocketClients, err = r.meter.Int64ObservableGauge(
		"tab.api.websocket_clients",
		metric.WithDescription("Number of connected websocket clients"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.websocketClients)
			return nil
		}),
	)

	return err
}

// Helper methods for updating observable metric values

// UpdateActiveRuns updates the in-flight run count
func (r *Registry) UpdateActiveRuns(delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeRuns += delta
}

// SetLastFetchedRows records the row count of the most recent fetch
func (r *Registry) SetLastFetchedRows(rows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFetchedRows = rows
}

// SetDBPoolSize sets the database connection pool size
func (r *Registry) SetDBPoolSize(size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbPoolSize = size
}

// UpdateWebsocketClients updates the connected client count
func (r *Registry) UpdateWebsocketClients(delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.websocketClients += delta
}

// Helper methods for recording metrics with common attribute patterns

// RecordReportRun records the outcome of one report run
func (r *Registry) RecordReportRun(ctx context.Context, duration time.Duration, window string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("window", window),
		attribute.Bool("success", success),
	}

	r.ReportGenerationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if success {
		r.ReportSuccessCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		r.ReportFailureCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordCacheLookup records a document cache hit or miss
func (r *Registry) RecordCacheLookup(ctx context.Context, window string, hit bool) {
	attrs := []attribute.KeyValue{attribute.String("window", window)}
	if hit {
		r.ReportCacheHitCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		r.ReportCacheMissCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRunRows accumulates the row counts of one completed run
func (r *Registry) RecordRunRows(ctx context.Context, ingested, skipped int64) {
	r.RowsIngestedTotal.Add(ctx, ingested)
	r.RowsSkippedTotal.Add(ctx, skipped)
}

// RecordSchemaError counts a fetch aborted by schema validation
func (r *Registry) RecordSchemaError(ctx context.Context) {
	r.SchemaErrorCounter.Add(ctx, 1)
}

// RecordSourceFetch records a ticket source fetch
func (r *Registry) RecordSourceFetch(ctx context.Context, durationMS float64, rows int64, err error) {
	attrs := []attribute.KeyValue{attribute.Bool("success", err == nil)}
	r.SourceFetchDuration.Record(ctx, durationMS, metric.WithAttributes(attrs...))
	if err != nil {
		r.SourceFetchFailures.Add(ctx, 1)
		return
	}
	r.SetLastFetchedRows(rows)
}

// RecordAPIRequest records API request metrics
func (r *Registry) RecordAPIRequest(ctx context.Context, duration float64, method, path string, statusCode int) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	}

	r.APIRequestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
	r.APIRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
