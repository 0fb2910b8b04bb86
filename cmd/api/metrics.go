package main

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serviceline/ticket-analytics-backend/internal/metrics"
)

// Prometheus metrics for the ticket analytics API. These complement the
// OTel instruments with a plain scrape endpoint for environments without
// an OTLP collector.

var (
	reportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tab",
			Subsystem: "report",
			Name:      "runs_total",
			Help:      "Total number of report runs",
		},
		[]string{"status"},
	)

	reportRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tab",
			Subsystem: "report",
			Name:      "run_duration_seconds",
			Help:      "Report generation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
		},
	)

	activeReportRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tab",
			Subsystem: "report",
			Name:      "active_runs",
			Help:      "Number of report runs in flight",
		},
	)

	skippedRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tab",
			Subsystem: "report",
			Name:      "skipped_rows_total",
			Help:      "Ticket rows dropped by per-row validation across all runs",
		},
	)

	// Database metrics
	dbConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pgxpool",
			Name:      "connections",
			Help:      "Current number of connections in the pool",
		},
		[]string{"state"},
	)

	dbConnectionPoolMax = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pgxpool",
			Name:      "max_conns",
			Help:      "Maximum number of connections in the pool",
		},
	)

	dbConnectionAcquireCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pgxpool",
			Name:      "acquire_count",
			Help:      "Total number of connection acquisitions",
		},
	)
)

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordRunStarted marks a report run as in flight
func RecordRunStarted() {
	activeReportRuns.Inc()
}

// RecordRunFinished records a finished run with its outcome
func RecordRunFinished(status string, duration time.Duration) {
	activeReportRuns.Dec()
	reportRunsTotal.WithLabelValues(status).Inc()
	reportRunDuration.Observe(duration.Seconds())
}

// RecordSkippedRows accumulates rows dropped by row validation
func RecordSkippedRows(n int) {
	if n > 0 {
		skippedRowsTotal.Add(float64(n))
	}
}

// collectPoolMetrics publishes pgxpool stats to both the Prometheus
// gauges and the OTel registry on an interval until the stop channel
// closes
func collectPoolMetrics(pool *pgxpool.Pool, registry *metrics.Registry, stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var lastAcquires int64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stat := pool.Stat()
			dbConnectionPoolSize.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
			dbConnectionPoolSize.WithLabelValues("idle").Set(float64(stat.IdleConns()))
			dbConnectionPoolSize.WithLabelValues("total").Set(float64(stat.TotalConns()))
			dbConnectionPoolMax.Set(float64(stat.MaxConns()))
			registry.SetDBPoolSize(int64(stat.TotalConns()))

			if acquires := stat.AcquireCount(); acquires > lastAcquires {
				dbConnectionAcquireCount.Add(float64(acquires - lastAcquires))
				lastAcquires = acquires
			}
		}
	}
}
