package reporting

import (
	"fmt"
	"sort"
	"time"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
)

// Dimension selects the grouping axis of one aggregation pass
type Dimension int

const (
	DimensionType Dimension = iota
	DimensionTeam
	DimensionEngineer
	DimensionCatalog
)

func (d Dimension) String() string {
	switch d {
	case DimensionType:
		return "type"
	case DimensionTeam:
		return "team"
	case DimensionEngineer:
		return "engineer"
	case DimensionCatalog:
		return "catalog"
	default:
		return "unknown"
	}
}

// ParseDimension maps a request value onto the closed dimension set
func ParseDimension(raw string) (Dimension, error) {
	switch raw {
	case "type":
		return DimensionType, nil
	case "team":
		return DimensionTeam, nil
	case "engineer":
		return DimensionEngineer, nil
	case "catalog":
		return DimensionCatalog, nil
	default:
		return Dimension(0), fmt.Errorf("unknown dimension %q", raw)
	}
}

// Group keys for tickets without an assignment or classification.
const (
	UnassignedKey    = "unassigned"
	UnassignedLabel  = "Unassigned"
	UncategorizedKey = "uncategorized"
	UncategorizedLbl = "Uncategorized"
)

// Metrics is the computed tuple for one group. The status counts
// partition the total: resolved + closed + unresolved + cancelled always
// equals total. Every rate is in [0,1] or distinctly undefined.
type Metrics struct {
	Key   string `json:"key"`
	Label string `json:"label"`

	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
	Unresolved int `json:"unresolved"`
	Cancelled  int `json:"cancelled"`
	Overdue    int `json:"overdue"`

	ResolutionRate values.Percent `json:"resolution_rate"`
	ClosureRate    values.Percent `json:"closure_rate"`
	SuccessRate    values.Percent `json:"success_rate"`
	OnTimeRate     values.Percent `json:"on_time_rate"`

	AvgResponse   *time.Duration `json:"avg_response,omitempty"`
	MaxResponse   *time.Duration `json:"max_response,omitempty"`
	AvgResolution *time.Duration `json:"avg_resolution,omitempty"`
	MaxResolution *time.Duration `json:"max_resolution,omitempty"`
}

// AggregationResult is one aggregation pass: the per-group metrics in
// deterministic emission order plus the implicit all-groups total.
type AggregationResult struct {
	Dimension Dimension `json:"dimension"`
	All       Metrics   `json:"all"`
	Groups    []Metrics `json:"groups"`
}

// Aggregate computes one AggregationResult over the record set. It reads
// only; the same records can feed concurrent passes. Groups come back
// ordered by descending total, ties by key, so repeated runs emit
// byte-identical tables.
func Aggregate(records []*ticket.Ticket, dim Dimension) *AggregationResult {
	accs := make(map[string]*accumulator)
	all := newAccumulator("all", "All")

	for _, t := range records {
		key, label := groupKey(t, dim)
		acc, ok := accs[key]
		if !ok {
			acc = newAccumulator(key, label)
			accs[key] = acc
		}
		acc.add(t)
		all.add(t)
	}

	groups := make([]Metrics, 0, len(accs))
	for _, acc := range accs {
		groups = append(groups, acc.finalize())
	}
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].Total != groups[b].Total {
			return groups[a].Total > groups[b].Total
		}
		return groups[a].Key < groups[b].Key
	})

	return &AggregationResult{
		Dimension: dim,
		All:       all.finalize(),
		Groups:    groups,
	}
}

func groupKey(t *ticket.Ticket, dim Dimension) (string, string) {
	switch dim {
	case DimensionType:
		return t.Type.String(), t.Type.Label()
	case DimensionTeam:
		if t.AssignedTeam == nil {
			return UnassignedKey, UnassignedLabel
		}
		return t.AssignedTeam.Key, t.AssignedTeam.Name
	case DimensionEngineer:
		if t.AssignedEngineer == nil {
			return UnassignedKey, UnassignedLabel
		}
		return t.AssignedEngineer.Key, t.AssignedEngineer.Name
	case DimensionCatalog:
		if t.CatalogEntry == nil {
			return UncategorizedKey, UncategorizedLbl
		}
		return t.CatalogEntry.Key, t.CatalogEntry.Display()
	default:
		return UncategorizedKey, UncategorizedLbl
	}
}

// accumulator gathers counts and duration sums for one group before rates
// are finalized
type accumulator struct {
	m Metrics

	respSum time.Duration
	respN   int
	respMax time.Duration
	resSum  time.Duration
	resN    int
	resMax  time.Duration

	closedChanges  int
	successChanges int
	nonChange      int
}

func newAccumulator(key, label string) *accumulator {
	return &accumulator{m: Metrics{Key: key, Label: label}}
}

func (a *accumulator) add(t *ticket.Ticket) {
	a.m.Total++
	switch t.Status {
	case ticket.StatusResolved:
		a.m.Resolved++
	case ticket.StatusClosed:
		a.m.Closed++
	case ticket.StatusCancelled:
		a.m.Cancelled++
	default:
		a.m.Unresolved++
	}
	if t.Breached() {
		a.m.Overdue++
	}

	if t.Type == ticket.TypeChange {
		if t.IsClosed() {
			a.closedChanges++
			if t.Outcome == ticket.OutcomeSuccess {
				a.successChanges++
			}
		}
	} else {
		a.nonChange++
		// Response-time metrics apply only to types with a response
		// commitment; changes have none.
		if t.ResponseDuration != nil {
			a.respSum += *t.ResponseDuration
			a.respN++
			if *t.ResponseDuration > a.respMax {
				a.respMax = *t.ResponseDuration
			}
		}
	}

	if t.ResolutionDuration != nil {
		a.resSum += *t.ResolutionDuration
		a.resN++
		if *t.ResolutionDuration > a.resMax {
			a.resMax = *t.ResolutionDuration
		}
	}
}

func (a *accumulator) finalize() Metrics {
	m := a.m

	m.ClosureRate = values.PercentOf(m.Closed, m.Total)
	m.OnTimeRate = values.PercentOf(m.Total-m.Overdue, m.Total)

	if a.closedChanges > 0 || (a.nonChange == 0 && m.Total > 0) {
		m.SuccessRate = values.PercentOf(a.successChanges, a.closedChanges)
	}

	if a.nonChange == 0 && m.Total > 0 {
		// A pure change group reports execution success instead of the
		// generic resolution rate, so a Failed change counts against it.
		m.ResolutionRate = m.SuccessRate
	} else {
		m.ResolutionRate = values.PercentOf(m.Resolved, m.Total)
	}

	if a.respN > 0 {
		avg := a.respSum / time.Duration(a.respN)
		maxV := a.respMax
		m.AvgResponse = &avg
		m.MaxResponse = &maxV
	}
	if a.resN > 0 {
		avg := a.resSum / time.Duration(a.resN)
		maxV := a.resMax
		m.AvgResolution = &avg
		m.MaxResolution = &maxV
	}

	return m
}

// GroupBy selects the grouping axis of the monthly statistics tables
type GroupBy int

const (
	ByTeam GroupBy = iota
	ByEngineer
)

func (g GroupBy) String() string {
	if g == ByEngineer {
		return "engineer"
	}
	return "team"
}

// MonthlyStat is one row of the per-month statistics tables: a (month,
// group, ticket type) cell with its full metrics tuple.
type MonthlyStat struct {
	Month   values.Month `json:"month"`
	Group   string       `json:"group"`
	Type    ticket.Type  `json:"type"`
	Metrics Metrics      `json:"metrics"`
}

// MonthlyStats computes the per-month, per-group, per-type breakdown
// behind the team and engineer analysis tables. Rows come back ordered
// newest month first, then type, then group name, matching the fixed
// table layout.
func MonthlyStats(records []*ticket.Ticket, by GroupBy) []MonthlyStat {
	type cellKey struct {
		month values.Month
		group string
		typ   ticket.Type
	}
	cells := make(map[cellKey]*accumulator)

	for _, t := range records {
		group := UnassignedLabel
		switch by {
		case ByTeam:
			if t.AssignedTeam != nil {
				group = t.AssignedTeam.Name
			}
		case ByEngineer:
			if t.AssignedEngineer != nil {
				group = t.AssignedEngineer.Name
			}
		}
		k := cellKey{month: t.MonthBucket, group: group, typ: t.Type}
		acc, ok := cells[k]
		if !ok {
			acc = newAccumulator(group, group)
			cells[k] = acc
		}
		acc.add(t)
	}

	stats := make([]MonthlyStat, 0, len(cells))
	for k, acc := range cells {
		stats = append(stats, MonthlyStat{
			Month:   k.month,
			Group:   k.group,
			Type:    k.typ,
			Metrics: acc.finalize(),
		})
	}
	sort.Slice(stats, func(a, b int) bool {
		if !stats[a].Month.Equal(stats[b].Month) {
			return stats[a].Month.After(stats[b].Month)
		}
		if stats[a].Type != stats[b].Type {
			return stats[a].Type < stats[b].Type
		}
		return stats[a].Group < stats[b].Group
	})
	return stats
}
