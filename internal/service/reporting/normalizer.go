package reporting

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/catalog"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
)

// Normalize turns raw rows into the canonical record set. It is a pure
// function of its inputs: identical rows and options yield identical
// records, so repeated runs are byte-comparable.
//
// Shape problems return a SchemaError before any row is read. Row-level
// problems skip only the offending row and are counted in the result.
func Normalize(rows *RawRowSet, opts NormalizeOptions) (*NormalizeResult, error) {
	if err := checkSchema(rows); err != nil {
		return nil, err
	}

	loc := opts.Window.location()
	interner := newRefInterner(opts.Categories)
	result := &NormalizeResult{}

	for i, row := range rows.Rows {
		if row == nil {
			result.fail(i, "row", "row is nil")
			continue
		}
		if row.CreatedAt == nil {
			result.fail(i, "created_at", "missing creation timestamp")
			continue
		}
		typ, err := ticket.ParseType(row.Type)
		if err != nil {
			result.fail(i, "type", err.Error())
			continue
		}
		status, err := ticket.ParseStatus(row.Status)
		if err != nil {
			result.fail(i, "status", err.Error())
			continue
		}
		outcome, err := ticket.ParseOutcome(row.Outcome)
		if err != nil {
			// Outcome is not a required field; unknown values degrade to
			// "no outcome" instead of costing the row.
			outcome = ticket.OutcomeNone
		}

		created := *row.CreatedAt
		t := &ticket.Ticket{
			ID:              ticketID(row.Ref, created),
			Ref:             row.Ref,
			Title:           row.Title,
			Type:            typ,
			Status:          status,
			Outcome:         outcome,
			Caller:          row.Caller,
			CreatedAt:       created,
			FirstResponseAt: row.FirstResponseAt,
			ResolvedAt:      row.ResolvedAt,
			ClosedAt:        row.ClosedAt,
			MonthBucket:     values.MonthOf(created, loc),
		}

		switch placeInWindow(t, opts.Window) {
		case placeInside:
			t.CarryOver = false
		case placeCarryOver:
			t.CarryOver = true
		case placeOutside:
			continue
		}

		t.AssignedTeam = interner.team(row.TeamKey, row.TeamName)
		t.AssignedEngineer = interner.engineer(row.EngineerKey, row.EngineerName)
		t.CatalogEntry = interner.entry(row.ServiceKey, row.ServiceName, row.Subservice)

		applySLA(t, row, opts.Policies)
		deriveDurations(t)
		deriveBreaches(t, opts.Cutoff)

		result.Tickets = append(result.Tickets, t)
	}

	sort.SliceStable(result.Tickets, func(a, b int) bool {
		ta, tb := result.Tickets[a], result.Tickets[b]
		if !ta.CreatedAt.Equal(tb.CreatedAt) {
			return ta.CreatedAt.Before(tb.CreatedAt)
		}
		return ta.Ref < tb.Ref
	})

	return result, nil
}

func checkSchema(rows *RawRowSet) *errors.SchemaError {
	if rows == nil {
		return errors.NewSchemaError(RequiredColumns()...)
	}
	present := make(map[string]bool, len(rows.Columns))
	for _, c := range rows.Columns {
		present[strings.ToLower(strings.TrimSpace(c))] = true
	}
	var missing []string
	for _, required := range RequiredColumns() {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return errors.NewSchemaError(missing...)
	}
	return nil
}

// ticketID derives a stable identifier from the source reference, keeping
// normalization idempotent across runs. Rows without a reference fall back
// to the creation instant.
func ticketID(ref string, created time.Time) uuid.UUID {
	seed := ref
	if seed == "" {
		seed = created.UTC().Format(time.RFC3339Nano)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("ticket:"+seed))
}

type windowPlacement int

const (
	placeInside windowPlacement = iota
	placeCarryOver
	placeOutside
)

// placeInWindow decides how a ticket relates to the reporting window.
// In-window creations are the counting set. Earlier tickets stay in the
// record set as carry-over when they are still unresolved or completed
// inside the window; everything else is out of scope.
func placeInWindow(t *ticket.Ticket, w Window) windowPlacement {
	if !t.CreatedAt.Before(w.EndTime()) {
		return placeOutside
	}
	if !t.CreatedAt.Before(w.StartTime()) {
		return placeInside
	}
	if t.IsUnresolved() {
		return placeCarryOver
	}
	if at := t.CompletionTime(); at != nil && w.Contains(*at) {
		return placeCarryOver
	}
	return placeOutside
}

func applySLA(t *ticket.Ticket, row *RawTicketRow, policies ticket.SLAPolicySet) {
	t.SLAResponseDeadline = row.ResponseDeadline
	t.SLAResolutionDeadline = row.ResolutionDeadline

	policy, ok := policies.PolicyFor(t.Type)
	if !ok {
		return
	}
	if t.SLAResponseDeadline == nil {
		t.SLAResponseDeadline = policy.ResponseDeadline(t.CreatedAt)
	}
	if t.SLAResolutionDeadline == nil {
		t.SLAResolutionDeadline = policy.ResolutionDeadline(t.CreatedAt)
	}
	// Changes carry no response-time commitment; a configured offset or a
	// stray source deadline must not create one.
	if t.Type == ticket.TypeChange {
		t.SLAResponseDeadline = nil
	}
}

func deriveDurations(t *ticket.Ticket) {
	if t.FirstResponseAt != nil && !t.FirstResponseAt.Before(t.CreatedAt) {
		d := t.FirstResponseAt.Sub(t.CreatedAt)
		t.ResponseDuration = &d
	}
	if at := t.CompletionTime(); at != nil && !at.Before(t.CreatedAt) {
		d := at.Sub(t.CreatedAt)
		t.ResolutionDuration = &d
	}
}

func deriveBreaches(t *ticket.Ticket, cutoff time.Time) {
	t.SLAResponseBreached, t.SLAResponseOverage = ticket.EvaluateBreach(
		t.SLAResponseDeadline, t.FirstResponseAt, cutoff)
	t.SLAResolutionBreached, t.SLAResolutionOverage = ticket.EvaluateBreach(
		t.SLAResolutionDeadline, t.CompletionTime(), cutoff)
}

func (r *NormalizeResult) fail(rowIndex int, field, reason string) {
	r.Skipped++
	r.RowErrors = append(r.RowErrors, errors.NewRowValidationError(rowIndex, field, reason))
}

// refInterner guarantees one shared instance per reference key so tickets
// hold references, never copies.
type refInterner struct {
	categories CategoryMap
	teams      map[string]*catalog.Team
	engineers  map[string]*catalog.Engineer
	entries    map[string]*catalog.Entry
}

func newRefInterner(categories CategoryMap) *refInterner {
	return &refInterner{
		categories: categories,
		teams:      make(map[string]*catalog.Team),
		engineers:  make(map[string]*catalog.Engineer),
		entries:    make(map[string]*catalog.Entry),
	}
}

func (in *refInterner) team(key, name string) *catalog.Team {
	key = fallbackKey(key, name)
	if key == "" {
		return nil
	}
	if t, ok := in.teams[key]; ok {
		return t
	}
	t, err := catalog.NewTeam(key, name)
	if err != nil {
		return nil
	}
	in.teams[key] = t
	return t
}

func (in *refInterner) engineer(key, name string) *catalog.Engineer {
	key = fallbackKey(key, name)
	if key == "" {
		return nil
	}
	if e, ok := in.engineers[key]; ok {
		return e
	}
	e, err := catalog.NewEngineer(key, name)
	if err != nil {
		return nil
	}
	in.engineers[key] = e
	return e
}

func (in *refInterner) entry(key, name, subservice string) *catalog.Entry {
	key = fallbackKey(key, name)
	if key == "" {
		return nil
	}
	// A subservice is its own catalog entry; classification still follows
	// the parent service.
	entryKey := key
	if subservice != "" {
		entryKey = key + "/" + subservice
	}
	if e, ok := in.entries[entryKey]; ok {
		return e
	}
	e, err := catalog.NewEntry(entryKey, name, in.categories.Classify(key))
	if err != nil {
		return nil
	}
	e.Subservice = subservice
	in.entries[entryKey] = e
	return e
}

func fallbackKey(key, name string) string {
	key = strings.TrimSpace(key)
	if key != "" {
		return key
	}
	return strings.TrimSpace(name)
}
