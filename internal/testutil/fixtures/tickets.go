package fixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// RowBuilder builds raw ticket rows in the shape the row source delivers
type RowBuilder struct {
	t   testing.TB
	row reporting.RawTicketRow
}

// NewRowBuilder creates a RowBuilder with an open incident created at the
// given instant
func NewRowBuilder(t testing.TB, ref string, createdAt time.Time) *RowBuilder {
	t.Helper()
	created := createdAt
	return &RowBuilder{
		t: t,
		row: reporting.RawTicketRow{
			Ref:       ref,
			Title:     "Ticket " + ref,
			Type:      "Incident",
			Status:    "assigned",
			Caller:    "caller-" + ref,
			CreatedAt: &created,
		},
	}
}

// WithType sets the raw ticket type
func (b *RowBuilder) WithType(raw string) *RowBuilder {
	b.row.Type = raw
	return b
}

// WithStatus sets the raw workflow status
func (b *RowBuilder) WithStatus(raw string) *RowBuilder {
	b.row.Status = raw
	return b
}

// WithOutcome sets the raw change outcome
func (b *RowBuilder) WithOutcome(raw string) *RowBuilder {
	b.row.Outcome = raw
	return b
}

// WithTitle sets the display title
func (b *RowBuilder) WithTitle(title string) *RowBuilder {
	b.row.Title = title
	return b
}

// ResolvedAfter marks the row resolved the given duration after creation
func (b *RowBuilder) ResolvedAfter(d time.Duration) *RowBuilder {
	at := b.row.CreatedAt.Add(d)
	b.row.Status = "resolved"
	b.row.ResolvedAt = &at
	return b
}

// ClosedAfter marks the row closed the given duration after creation
func (b *RowBuilder) ClosedAfter(d time.Duration) *RowBuilder {
	at := b.row.CreatedAt.Add(d)
	b.row.Status = "closed"
	b.row.ClosedAt = &at
	return b
}

// RespondedAfter records first response the given duration after creation
func (b *RowBuilder) RespondedAfter(d time.Duration) *RowBuilder {
	at := b.row.CreatedAt.Add(d)
	b.row.FirstResponseAt = &at
	return b
}

// WithTeam assigns a team reference
func (b *RowBuilder) WithTeam(key, name string) *RowBuilder {
	b.row.TeamKey, b.row.TeamName = key, name
	return b
}

// WithEngineer assigns an engineer reference
func (b *RowBuilder) WithEngineer(key, name string) *RowBuilder {
	b.row.EngineerKey, b.row.EngineerName = key, name
	return b
}

// WithService assigns a service catalog reference
func (b *RowBuilder) WithService(key, name string) *RowBuilder {
	b.row.ServiceKey, b.row.ServiceName = key, name
	return b
}

// WithSubservice assigns a subservice under the service reference
func (b *RowBuilder) WithSubservice(sub string) *RowBuilder {
	b.row.Subservice = sub
	return b
}

// WithDeadlines sets the source-provided SLA deadlines relative to creation
func (b *RowBuilder) WithDeadlines(respondWithin, resolveWithin time.Duration) *RowBuilder {
	if respondWithin > 0 {
		at := b.row.CreatedAt.Add(respondWithin)
		b.row.ResponseDeadline = &at
	}
	if resolveWithin > 0 {
		at := b.row.CreatedAt.Add(resolveWithin)
		b.row.ResolutionDeadline = &at
	}
	return b
}

// WithoutCreatedAt drops the creation timestamp, making the row invalid
func (b *RowBuilder) WithoutCreatedAt() *RowBuilder {
	b.row.CreatedAt = nil
	return b
}

// Build returns the raw row
func (b *RowBuilder) Build() *reporting.RawTicketRow {
	row := b.row
	return &row
}

// RowSet wraps rows with the full column list a well-formed source sends
func RowSet(rows ...*reporting.RawTicketRow) *reporting.RawRowSet {
	return &reporting.RawRowSet{
		Columns: []string{
			"ref", "title", "type", "status", "outcome", "caller",
			"created_at", "first_response_at", "resolved_at", "closed_at",
			"team_key", "team_name", "engineer_key", "engineer_name",
			"service_key", "service_name", "subservice",
			"response_deadline", "resolution_deadline",
		},
		Rows: rows,
	}
}

// IncidentBatch builds n incident rows created minutes apart starting at
// base, refs R-0001 upward
func IncidentBatch(t testing.TB, n int, base time.Time) []*reporting.RawTicketRow {
	t.Helper()
	rows := make([]*reporting.RawTicketRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, NewRowBuilder(t, fmt.Sprintf("R-%04d", i+1), base.Add(time.Duration(i)*time.Minute)).Build())
	}
	return rows
}
