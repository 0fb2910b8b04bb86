package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/catalog"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
)

// Service is the reporting facade consumed by the REST layer and the
// batch CLI
type Service interface {
	// GenerateReport runs the full pipeline for a window and returns the
	// assembled document. An empty window is a valid outcome: the document
	// comes back fully structured with EmptyRange set.
	GenerateReport(ctx context.Context, req *ReportRequest) (*report.Document, error)
	// GetReport returns a previously generated document from the cache.
	GetReport(ctx context.Context, id uuid.UUID) (*report.Document, error)
	// GetAggregates computes one aggregation dimension on demand without
	// composing a document.
	GetAggregates(ctx context.Context, req *StatsRequest) (*AggregationResult, error)
	// GetTrend computes one trend series on demand.
	GetTrend(ctx context.Context, req *TrendRequest) (*TrendSeries, error)
}

// RowSource supplies raw ticket rows for a window. Implementations own all
// querying and retry concerns; the engine never reaches past this
// interface.
type RowSource interface {
	// FetchWindow returns rows created inside the window plus carry-over
	// candidates: rows created earlier that are still unresolved or whose
	// resolution or closure falls inside the window.
	FetchWindow(ctx context.Context, w Window) (*RawRowSet, error)
}

// DocumentCache memoizes assembled documents between identical requests
type DocumentCache interface {
	GetByKey(ctx context.Context, key string) (*report.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*report.Document, error)
	Set(ctx context.Context, key string, doc *report.Document, ttl time.Duration) error
}

// RunNotifier receives report-run lifecycle events. Implementations fan
// them out to operational feeds; a nil notifier disables notification.
type RunNotifier interface {
	RunStarted(runID uuid.UUID, w Window)
	RunCompleted(runID uuid.UUID, doc *report.Document)
	RunFailed(runID uuid.UUID, err error)
}

// Window is the inclusive month range one report covers, with the zone
// that decides where month boundaries fall.
type Window struct {
	Start values.Month
	End   values.Month
	Loc   *time.Location
}

// NewWindow builds a validated window
func NewWindow(start, end values.Month, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := Window{Start: start, End: end, Loc: loc}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate checks the window bounds
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.NewValidationError("INVALID_WINDOW", "start and end months are required")
	}
	if w.Start.After(w.End) {
		return errors.NewValidationError("INVALID_WINDOW", "start month must not be after end month")
	}
	if values.MonthsBetween(w.Start, w.End) >= 24 {
		return errors.NewValidationError("INVALID_WINDOW", "window cannot exceed 24 months")
	}
	return nil
}

// StartTime is the first instant of the window
func (w Window) StartTime() time.Time {
	return w.Start.Start(w.location())
}

// EndTime is the exclusive upper bound of the window
func (w Window) EndTime() time.Time {
	return w.End.NextStart(w.location())
}

// Contains reports whether an instant falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.StartTime()) && t.Before(w.EndTime())
}

// Months lists every calendar month of the window inclusive
func (w Window) Months() []values.Month {
	return values.MonthRange(w.Start, w.End)
}

// Key is the cache key discriminator for this window
func (w Window) Key() string {
	return w.Start.String() + ":" + w.End.String() + ":" + w.location().String()
}

// Label renders the window for report narrative, e.g. "2025年1月至2025年3月"
func (w Window) Label() string {
	if w.Start.Equal(w.End) {
		return w.Start.LabelCJK()
	}
	return w.Start.LabelCJK() + "至" + w.End.LabelCJK()
}

func (w Window) location() *time.Location {
	if w.Loc == nil {
		return time.UTC
	}
	return w.Loc
}

// RawTicketRow is the declared input shape from the data-access
// collaborator. String fields arrive raw and are parsed during
// normalization; malformed values cost only their own row.
type RawTicketRow struct {
	Ref                string     `json:"ref"`
	Title              string     `json:"title"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	Outcome            string     `json:"outcome"`
	Caller             string     `json:"caller"`
	CreatedAt          *time.Time `json:"created_at"`
	FirstResponseAt    *time.Time `json:"first_response_at"`
	ResolvedAt         *time.Time `json:"resolved_at"`
	ClosedAt           *time.Time `json:"closed_at"`
	TeamKey            string     `json:"team_key"`
	TeamName           string     `json:"team_name"`
	EngineerKey        string     `json:"engineer_key"`
	EngineerName       string     `json:"engineer_name"`
	ServiceKey         string     `json:"service_key"`
	ServiceName        string     `json:"service_name"`
	Subservice         string     `json:"subservice"`
	ResponseDeadline   *time.Time `json:"response_deadline"`
	ResolutionDeadline *time.Time `json:"resolution_deadline"`
}

// RawRowSet couples rows with the column names the source actually
// provided, so shape problems are detected before any row is read.
type RawRowSet struct {
	Columns []string        `json:"columns"`
	Rows    []*RawTicketRow `json:"rows"`
}

// RequiredColumns are the columns the engine cannot run without
func RequiredColumns() []string {
	return []string{"ref", "type", "status", "created_at"}
}

// CategoryMap classifies catalog entries by service key for KPI splitting
type CategoryMap map[string]catalog.Category

// Classify returns the category for a service key, uncategorized when
// unmapped
func (m CategoryMap) Classify(serviceKey string) catalog.Category {
	if m == nil {
		return catalog.CategoryUncategorized
	}
	return m[serviceKey]
}

// NormalizeOptions parameterize one normalization pass
type NormalizeOptions struct {
	Window     Window
	Policies   ticket.SLAPolicySet
	Categories CategoryMap
	// Cutoff is the evaluation instant for still-open SLA breaches,
	// normally the report generation time.
	Cutoff time.Time
}

// NormalizeResult is the canonical record set plus skip bookkeeping
type NormalizeResult struct {
	Tickets   []*ticket.Ticket
	Skipped   int
	RowErrors []*errors.ValidationError
}

// InRange returns the tickets created inside the window, the counting set
// when carry-over inclusion is off
func (r *NormalizeResult) InRange() []*ticket.Ticket {
	in := make([]*ticket.Ticket, 0, len(r.Tickets))
	for _, t := range r.Tickets {
		if !t.CarryOver {
			in = append(in, t)
		}
	}
	return in
}

// ReportRequest asks for one full document
type ReportRequest struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
	// ForceRefresh bypasses the document cache.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// StatsRequest asks for one aggregation dimension over a window
type StatsRequest struct {
	Start     string `json:"start" validate:"required"`
	End       string `json:"end" validate:"required"`
	Dimension string `json:"dimension" validate:"required,oneof=type team engineer catalog"`
}

// TrendRequest asks for one metric series over a window
type TrendRequest struct {
	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
	Metric   string `json:"metric" validate:"required,oneof=volume resolution_rate on_time_rate"`
	Category string `json:"category" validate:"omitempty,oneof=infrastructure application all"`
}
