package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// TicketRepository implements reporting.RowSource against the ITSM
// ticket store. One query per window: rows created inside the window
// plus carry-over candidates created earlier that are still unresolved
// or completed inside the window.
type TicketRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewTicketRepository creates a new PostgreSQL ticket repository
func NewTicketRepository(db *pgxpool.Pool, logger *zap.Logger) *TicketRepository {
	return &TicketRepository{db: db, logger: logger}
}

// ticketColumns is the column set the query projects, in projection
// order. The normalizer validates this shape before reading any row.
var ticketColumns = []string{
	"ref", "title", "type", "status", "outcome", "caller",
	"created_at", "first_response_at", "resolved_at", "closed_at",
	"team_key", "team_name", "engineer_key", "engineer_name",
	"service_key", "service_name", "subservice",
	"response_deadline", "resolution_deadline",
}

const fetchWindowQuery = `
	SELECT
		t.ref, t.title, t.type, t.status, t.outcome, t.caller,
		t.created_at, t.first_response_at, t.resolved_at, t.closed_at,
		t.team_key, t.team_name, t.engineer_key, t.engineer_name,
		t.service_key, t.service_name, t.subservice,
		t.response_deadline, t.resolution_deadline
	FROM tickets t
	WHERE (t.created_at >= $1 AND t.created_at < $2)
	   OR (t.created_at < $1 AND (
	        t.resolved_at IS NULL AND t.closed_at IS NULL
	        OR (t.resolved_at >= $1 AND t.resolved_at < $2)
	        OR (t.closed_at >= $1 AND t.closed_at < $2)))
	ORDER BY t.created_at, t.ref`

// FetchWindow returns the raw rows for one report window
func (r *TicketRepository) FetchWindow(ctx context.Context, w reporting.Window) (*reporting.RawRowSet, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := r.db.Query(ctx, fetchWindowQuery, w.StartTime(), w.EndTime())
	if err != nil {
		return nil, errors.NewExternalError("ticket_store", "window query failed").WithCause(err)
	}
	defer rows.Close()

	set := &reporting.RawRowSet{Columns: ticketColumns}
	for rows.Next() {
		row, err := scanTicketRow(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan ticket row").WithCause(err)
		}
		set.Rows = append(set.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewExternalError("ticket_store", "window scan failed").WithCause(err)
	}

	r.logger.Debug("fetched ticket window",
		zap.String("window", w.Key()),
		zap.Int("rows", len(set.Rows)),
		zap.Duration("elapsed", time.Since(start)))

	return set, nil
}

// scanTicketRow maps one result row onto the raw input shape. Text
// columns are nullable in the store; NULL degrades to the empty string
// and is caught, where it matters, by per-row validation downstream.
func scanTicketRow(rows pgx.Rows) (*reporting.RawTicketRow, error) {
	var (
		row                                          reporting.RawTicketRow
		title, ticketType, status, outcome, caller   sql.NullString
		teamKey, teamName, engineerKey, engineerName sql.NullString
		serviceKey, serviceName, subservice          sql.NullString
		createdAt, firstResponseAt                   sql.NullTime
		resolvedAt, closedAt                         sql.NullTime
		responseDeadline, resolutionDeadline         sql.NullTime
	)

	err := rows.Scan(
		&row.Ref, &title, &ticketType, &status, &outcome, &caller,
		&createdAt, &firstResponseAt, &resolvedAt, &closedAt,
		&teamKey, &teamName, &engineerKey, &engineerName,
		&serviceKey, &serviceName, &subservice,
		&responseDeadline, &resolutionDeadline,
	)
	if err != nil {
		return nil, err
	}

	row.Title = title.String
	row.Type = ticketType.String
	row.Status = status.String
	row.Outcome = outcome.String
	row.Caller = caller.String
	row.TeamKey = teamKey.String
	row.TeamName = teamName.String
	row.EngineerKey = engineerKey.String
	row.EngineerName = engineerName.String
	row.ServiceKey = serviceKey.String
	row.ServiceName = serviceName.String
	row.Subservice = subservice.String
	row.CreatedAt = timePtr(createdAt)
	row.FirstResponseAt = timePtr(firstResponseAt)
	row.ResolvedAt = timePtr(resolvedAt)
	row.ClosedAt = timePtr(closedAt)
	row.ResponseDeadline = timePtr(responseDeadline)
	row.ResolutionDeadline = timePtr(resolutionDeadline)

	return &row, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
