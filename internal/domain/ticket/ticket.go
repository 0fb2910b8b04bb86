package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/catalog"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
)

// Ticket is the canonical record every analyzer reads. The normalizer is
// the only producer; once built a Ticket is never mutated, so the same
// slice can back concurrent read-only computations.
type Ticket struct {
	ID      uuid.UUID `json:"id"`
	Ref     string    `json:"ref"`
	Title   string    `json:"title"`
	Type    Type      `json:"type"`
	Status  Status    `json:"status"`
	Outcome Outcome   `json:"outcome"`
	Caller  string    `json:"caller,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`
	FirstResponseAt *time.Time `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`

	AssignedTeam     *catalog.Team     `json:"assigned_team,omitempty"`
	AssignedEngineer *catalog.Engineer `json:"assigned_engineer,omitempty"`
	CatalogEntry     *catalog.Entry    `json:"catalog_entry,omitempty"`

	SLAResponseDeadline   *time.Time `json:"sla_response_deadline,omitempty"`
	SLAResolutionDeadline *time.Time `json:"sla_resolution_deadline,omitempty"`

	// Derived once at normalization.
	ResponseDuration      *time.Duration `json:"response_duration,omitempty"`
	ResolutionDuration    *time.Duration `json:"resolution_duration,omitempty"`
	SLAResponseBreached   bool           `json:"sla_response_breached"`
	SLAResolutionBreached bool           `json:"sla_resolution_breached"`
	SLAResponseOverage    *time.Duration `json:"sla_response_overage,omitempty"`
	SLAResolutionOverage  *time.Duration `json:"sla_resolution_overage,omitempty"`
	MonthBucket           values.Month   `json:"month_bucket"`
	CarryOver             bool           `json:"carry_over"`
}

type Type int

const (
	TypeServiceRequest Type = iota
	TypeIncident
	TypeChange
)

// AllTypes lists every ticket type in natural display order
func AllTypes() []Type {
	return []Type{TypeServiceRequest, TypeIncident, TypeChange}
}

func (t Type) String() string {
	switch t {
	case TypeServiceRequest:
		return "service_request"
	case TypeIncident:
		return "incident"
	case TypeChange:
		return "change"
	default:
		return "unknown"
	}
}

// Label returns the display name used in report tables
func (t Type) Label() string {
	switch t {
	case TypeServiceRequest:
		return "Service Request"
	case TypeIncident:
		return "Incident"
	case TypeChange:
		return "Change"
	default:
		return "Unknown"
	}
}

// ParseType maps raw source values onto the closed type set. The ticket
// source uses "UserRequest" for service requests; both spellings parse.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "userrequest", "user_request", "servicerequest", "service_request":
		return TypeServiceRequest, nil
	case "incident":
		return TypeIncident, nil
	case "change", "normalchange", "routinechange", "emergencychange":
		return TypeChange, nil
	default:
		return Type(0), fmt.Errorf("unknown ticket type %q", raw)
	}
}

type Status int

const (
	StatusOpen Status = iota
	StatusPending
	StatusResolved
	StatusClosed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusClosed:
		return "closed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus maps raw workflow states onto the canonical status set.
// Escalation and dispatch states are working states, so they collapse to
// open; approval-wait states collapse to pending.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "new", "assigned", "dispatched", "redispatched",
		"escalated_tto", "escalated_ttr", "implementation", "monitored":
		return StatusOpen, nil
	case "pending", "waiting_for_approval", "approved", "planned", "validated":
		return StatusPending, nil
	case "resolved":
		return StatusResolved, nil
	case "closed":
		return StatusClosed, nil
	case "cancelled", "canceled", "rejected":
		return StatusCancelled, nil
	default:
		return Status(0), fmt.Errorf("unknown ticket status %q", raw)
	}
}

// Outcome records how a change ended. It is OutcomeNone for every
// non-change ticket and for changes still in flight.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseOutcome maps a raw change outcome; empty means no outcome yet
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return OutcomeNone, nil
	case "success", "successful", "ok":
		return OutcomeSuccess, nil
	case "failed", "failure", "failed_rolledback", "failed_not_rolledback":
		return OutcomeFailed, nil
	default:
		return OutcomeNone, fmt.Errorf("unknown change outcome %q", raw)
	}
}

// IsTerminal reports whether the ticket reached a final state
func (t *Ticket) IsTerminal() bool {
	switch t.Status {
	case StatusResolved, StatusClosed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsResolved reports whether the ticket was brought to a solution: both
// resolved and closed count, since closure implies a prior resolution.
func (t *Ticket) IsResolved() bool {
	return t.Status == StatusResolved || t.Status == StatusClosed
}

// IsClosed reports whether the ticket completed its full lifecycle
func (t *Ticket) IsClosed() bool {
	return t.Status == StatusClosed
}

// IsUnresolved reports whether the ticket is still being worked
func (t *Ticket) IsUnresolved() bool {
	return t.Status == StatusOpen || t.Status == StatusPending
}

// IsCancelled reports whether the ticket was withdrawn
func (t *Ticket) IsCancelled() bool {
	return t.Status == StatusCancelled
}

// IsSuccessfulChange reports whether a change ticket ended successfully
func (t *Ticket) IsSuccessfulChange() bool {
	return t.Type == TypeChange && t.Outcome == OutcomeSuccess
}

// CompletionTime returns when the ticket reached resolution or closure,
// preferring the recorded resolution instant; nil while unresolved
func (t *Ticket) CompletionTime() *time.Time {
	if t.ResolvedAt != nil {
		return t.ResolvedAt
	}
	return t.ClosedAt
}

// Breached reports whether either SLA deadline was missed
func (t *Ticket) Breached() bool {
	return t.SLAResponseBreached || t.SLAResolutionBreached
}

// WorstOverage returns the larger of the two SLA overages, zero when the
// ticket breached nothing
func (t *Ticket) WorstOverage() time.Duration {
	var worst time.Duration
	if t.SLAResponseOverage != nil && *t.SLAResponseOverage > worst {
		worst = *t.SLAResponseOverage
	}
	if t.SLAResolutionOverage != nil && *t.SLAResolutionOverage > worst {
		worst = *t.SLAResolutionOverage
	}
	return worst
}

// Age returns how long the ticket has been outstanding as of now
func (t *Ticket) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// TeamName returns the assigned team display name, empty when unassigned
func (t *Ticket) TeamName() string {
	if t.AssignedTeam == nil {
		return ""
	}
	return t.AssignedTeam.Name
}

// EngineerName returns the assigned engineer display name, empty when
// unassigned
func (t *Ticket) EngineerName() string {
	if t.AssignedEngineer == nil {
		return ""
	}
	return t.AssignedEngineer.Name
}

// CatalogKey returns the service catalog key, empty when uncategorized
func (t *Ticket) CatalogKey() string {
	if t.CatalogEntry == nil {
		return ""
	}
	return t.CatalogEntry.Key
}
