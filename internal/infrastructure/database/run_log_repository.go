package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
)

// RunRecord is one row of the durable report-run log
type RunRecord struct {
	ID         uuid.UUID
	WindowKey  string
	State      string
	DocumentID *uuid.UUID
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RunLogRepository persists the report-run audit trail. The cache keeps
// the hot status for polling; this table is what survives a Redis flush.
type RunLogRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewRunLogRepository creates a new run log repository
func NewRunLogRepository(db *pgxpool.Pool, logger *zap.Logger) *RunLogRepository {
	return &RunLogRepository{db: db, logger: logger}
}

// RecordStarted inserts a run in the started state
func (r *RunLogRepository) RecordStarted(ctx context.Context, runID uuid.UUID, windowKey string) error {
	query := `
		INSERT INTO report_runs (id, window_key, state, started_at)
		VALUES ($1, $2, 'started', NOW())`

	if _, err := r.db.Exec(ctx, query, runID, windowKey); err != nil {
		return errors.NewInternalError("failed to record run start").WithCause(err)
	}
	return nil
}

// RecordCompleted marks a run completed with its document
func (r *RunLogRepository) RecordCompleted(ctx context.Context, runID, documentID uuid.UUID) error {
	query := `
		UPDATE report_runs
		SET state = 'completed', document_id = $2, finished_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, runID, documentID)
	if err != nil {
		return errors.NewInternalError("failed to record run completion").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("report run")
	}
	return nil
}

// RecordFailed marks a run failed with its error message
func (r *RunLogRepository) RecordFailed(ctx context.Context, runID uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	query := `
		UPDATE report_runs
		SET state = 'failed', error_message = $2, finished_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, runID, msg)
	if err != nil {
		return errors.NewInternalError("failed to record run failure").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("report run")
	}
	return nil
}

// ListRecent returns the most recent runs for a window key, newest first
func (r *RunLogRepository) ListRecent(ctx context.Context, windowKey string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, window_key, state, document_id, COALESCE(error_message, ''), started_at, finished_at
		FROM report_runs
		WHERE window_key = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, windowKey, limit)
	if err != nil {
		return nil, errors.NewInternalError("failed to list report runs").WithCause(err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.WindowKey, &rec.State, &rec.DocumentID,
			&rec.Error, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, errors.NewInternalError("failed to scan run record").WithCause(err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
