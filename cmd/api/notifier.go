package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/cache"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/database"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/telemetry"
	"github.com/serviceline/ticket-analytics-backend/internal/metrics"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// notifierTimeout bounds the persistence work done per lifecycle event so
// a slow store never stalls the report pipeline.
const notifierTimeout = 5 * time.Second

// runNotifier fans report-run lifecycle events out to the live WebSocket
// feed, the Redis status store, the durable run log, and metrics.
type runNotifier struct {
	feed    reporting.RunNotifier
	runs    *cache.RunStatusStore
	log     *database.RunLogRepository
	metrics *metrics.Registry
	logger  *slog.Logger

	mu      sync.Mutex
	started map[uuid.UUID]time.Time
}

func newRunNotifier(feed reporting.RunNotifier, runs *cache.RunStatusStore, log *database.RunLogRepository, m *metrics.Registry, logger *slog.Logger) *runNotifier {
	return &runNotifier{
		feed:    feed,
		runs:    runs,
		log:     log,
		metrics: m,
		logger:  logger,
		started: make(map[uuid.UUID]time.Time),
	}
}

func (n *runNotifier) RunStarted(runID uuid.UUID, w reporting.Window) {
	rlog := telemetry.RunLogger(n.logger, runID)
	n.mu.Lock()
	n.started[runID] = time.Now()
	n.mu.Unlock()

	RecordRunStarted()
	if n.metrics != nil {
		n.metrics.UpdateActiveRuns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifierTimeout)
	defer cancel()

	if n.runs != nil {
		if err := n.runs.Put(ctx, &cache.RunStatus{
			RunID:     runID,
			State:     cache.RunStateStarted,
			Window:    w.Key(),
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			rlog.Warn("failed to store run status", "error", err)
		}
	}
	if n.log != nil {
		if err := n.log.RecordStarted(ctx, runID, w.Key()); err != nil {
			rlog.Warn("failed to record run start", "error", err)
		}
	}
	if n.feed != nil {
		n.feed.RunStarted(runID, w)
	}
}

func (n *runNotifier) RunCompleted(runID uuid.UUID, doc *report.Document) {
	rlog := telemetry.RunLogger(n.logger, runID)
	RecordRunFinished("completed", n.runDuration(runID))
	if n.metrics != nil {
		n.metrics.UpdateActiveRuns(-1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifierTimeout)
	defer cancel()

	var docID uuid.UUID
	if doc != nil {
		docID = doc.ID
		RecordSkippedRows(doc.SkippedRows)
	}

	if n.runs != nil {
		status := &cache.RunStatus{
			RunID:     runID,
			State:     cache.RunStateCompleted,
			UpdatedAt: time.Now().UTC(),
		}
		if docID != uuid.Nil {
			status.DocumentID = &docID
		}
		if err := n.runs.Put(ctx, status); err != nil {
			rlog.Warn("failed to store run status", "error", err)
		}
	}
	if n.log != nil {
		if err := n.log.RecordCompleted(ctx, runID, docID); err != nil {
			rlog.Warn("failed to record run completion", "error", err)
		}
	}
	if n.feed != nil {
		n.feed.RunCompleted(runID, doc)
	}
}

func (n *runNotifier) RunFailed(runID uuid.UUID, cause error) {
	rlog := telemetry.RunLogger(n.logger, runID)
	RecordRunFinished("failed", n.runDuration(runID))
	if n.metrics != nil {
		n.metrics.UpdateActiveRuns(-1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifierTimeout)
	defer cancel()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if n.runs != nil {
		if err := n.runs.Put(ctx, &cache.RunStatus{
			RunID:     runID,
			State:     cache.RunStateFailed,
			Error:     msg,
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			rlog.Warn("failed to store run status", "error", err)
		}
	}
	if n.log != nil {
		if err := n.log.RecordFailed(ctx, runID, cause); err != nil {
			rlog.Warn("failed to record run failure", "error", err)
		}
	}
	if n.feed != nil {
		n.feed.RunFailed(runID, cause)
	}
}

func (n *runNotifier) runDuration(runID uuid.UUID) time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	start, ok := n.started[runID]
	if !ok {
		return 0
	}
	delete(n.started, runID)
	return time.Since(start)
}
