package reporting

import (
	"fmt"
	"sort"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/catalog"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
)

// TrendMetric selects which KPI a trend series tracks
type TrendMetric int

const (
	MetricVolume TrendMetric = iota
	MetricResolutionRate
	MetricOnTimeRate
)

func (m TrendMetric) String() string {
	switch m {
	case MetricVolume:
		return "volume"
	case MetricResolutionRate:
		return "resolution_rate"
	case MetricOnTimeRate:
		return "on_time_rate"
	default:
		return "unknown"
	}
}

// ParseTrendMetric maps a request value onto the closed metric set
func ParseTrendMetric(raw string) (TrendMetric, error) {
	switch raw {
	case "volume":
		return MetricVolume, nil
	case "resolution_rate":
		return MetricResolutionRate, nil
	case "on_time_rate":
		return MetricOnTimeRate, nil
	default:
		return TrendMetric(0), fmt.Errorf("unknown trend metric %q", raw)
	}
}

// Scope restricts a trend to one KPI category of the service catalog
type Scope int

const (
	ScopeAll Scope = iota
	ScopeInfrastructure
	ScopeApplication
)

func (s Scope) String() string {
	switch s {
	case ScopeInfrastructure:
		return "infrastructure"
	case ScopeApplication:
		return "application"
	default:
		return "all"
	}
}

// ParseScope maps a request value onto the closed scope set; empty means all
func ParseScope(raw string) (Scope, error) {
	switch raw {
	case "", "all":
		return ScopeAll, nil
	case "infrastructure":
		return ScopeInfrastructure, nil
	case "application":
		return ScopeApplication, nil
	default:
		return Scope(0), fmt.Errorf("unknown trend scope %q", raw)
	}
}

// The split is a complement: application takes only mapped application
// services, infrastructure takes everything else, so uncategorized
// tickets report in the infrastructure table's uncategorized series.
func (s Scope) admits(t *ticket.Ticket) bool {
	switch s {
	case ScopeInfrastructure:
		return t.CatalogEntry == nil || t.CatalogEntry.Category != catalog.CategoryApplication
	case ScopeApplication:
		return t.CatalogEntry != nil && t.CatalogEntry.Category == catalog.CategoryApplication
	default:
		return true
	}
}

// TrendPoint is one month of a series. NoData marks gap-filled months so
// a rate chart can show a hollow marker instead of a misleading zero.
type TrendPoint struct {
	Month    values.Month   `json:"month"`
	Total    int            `json:"total"`
	Resolved int            `json:"resolved"`
	Overdue  int            `json:"overdue"`
	Value    float64        `json:"value"`
	Rate     values.Percent `json:"rate"`
	NoData   bool           `json:"no_data,omitempty"`
}

// TrendSeries is a gap-free chronological KPI series. Its length always
// equals the number of calendar months in the requested window, whatever
// the data contains.
type TrendSeries struct {
	Metric TrendMetric  `json:"metric"`
	Scope  Scope        `json:"scope"`
	Points []TrendPoint `json:"points"`
}

// Trend computes one metric series over the window. Every calendar month
// of the window appears exactly once, in order; months without tickets
// come back as no-data points so the x-axis stays contiguous. A
// single-month window degenerates to a one-point series.
func Trend(records []*ticket.Ticket, w Window, metric TrendMetric, scope Scope) *TrendSeries {
	buckets := make(map[values.Month]*TrendPoint)
	for _, t := range records {
		if t.CarryOver || !scope.admits(t) {
			continue
		}
		p, ok := buckets[t.MonthBucket]
		if !ok {
			p = &TrendPoint{Month: t.MonthBucket}
			buckets[t.MonthBucket] = p
		}
		p.Total++
		if t.IsResolved() {
			p.Resolved++
		}
		if t.Breached() {
			p.Overdue++
		}
	}

	months := w.Months()
	series := &TrendSeries{Metric: metric, Scope: scope, Points: make([]TrendPoint, 0, len(months))}
	for _, m := range months {
		p := TrendPoint{Month: m, NoData: true}
		if b, ok := buckets[m]; ok {
			p = *b
		}
		switch metric {
		case MetricVolume:
			p.Value = float64(p.Total)
			p.NoData = false
		case MetricResolutionRate:
			p.Rate = values.PercentOf(p.Resolved, p.Total)
			p.NoData = !p.Rate.Valid()
			p.Value = p.Rate.Float64() * 100
		case MetricOnTimeRate:
			p.Rate = values.PercentOf(p.Total-p.Overdue, p.Total)
			p.NoData = !p.Rate.Valid()
			p.Value = p.Rate.Float64() * 100
		}
		series.Points = append(series.Points, p)
	}
	return series
}

// KPIPoint is one month of one catalog entry's KPI breakdown
type KPIPoint struct {
	Month    values.Month   `json:"month"`
	Total    int            `json:"total"`
	Resolved int            `json:"resolved"`
	Rate     values.Percent `json:"rate"`
}

// KPIEntrySeries is the gap-free monthly breakdown for one catalog entry
type KPIEntrySeries struct {
	Entry  string     `json:"entry"`
	Points []KPIPoint `json:"points"`
}

// KPIReport is the per-category KPI table: one series per catalog entry,
// a per-month total line, and a grand total across the whole window.
type KPIReport struct {
	Scope   Scope            `json:"scope"`
	Entries []KPIEntrySeries `json:"entries"`
	Totals  []KPIPoint       `json:"totals"`
	Grand   KPIPoint         `json:"grand"`
}

// KPITrend computes the KPI breakdown for one category scope. Tickets
// without a catalog entry land in an uncategorized series when the scope
// admits them. Entries come back sorted by name; every series covers
// every month of the window.
func KPITrend(records []*ticket.Ticket, w Window, scope Scope) *KPIReport {
	months := w.Months()
	index := make(map[values.Month]int, len(months))
	for i, m := range months {
		index[m] = i
	}

	type entryAgg struct {
		points []KPIPoint
	}
	entries := make(map[string]*entryAgg)
	totals := make([]KPIPoint, len(months))
	for i, m := range months {
		totals[i].Month = m
	}
	grand := KPIPoint{}

	for _, t := range records {
		if t.CarryOver || !scope.admits(t) {
			continue
		}
		i, ok := index[t.MonthBucket]
		if !ok {
			continue
		}
		name := UncategorizedLbl
		if t.CatalogEntry != nil {
			name = t.CatalogEntry.Display()
		}
		agg, ok := entries[name]
		if !ok {
			agg = &entryAgg{points: make([]KPIPoint, len(months))}
			for j, m := range months {
				agg.points[j].Month = m
			}
			entries[name] = agg
		}
		agg.points[i].Total++
		totals[i].Total++
		grand.Total++
		if t.IsResolved() {
			agg.points[i].Resolved++
			totals[i].Resolved++
			grand.Resolved++
		}
	}

	report := &KPIReport{Scope: scope, Entries: make([]KPIEntrySeries, 0, len(entries))}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pts := entries[name].points
		for i := range pts {
			pts[i].Rate = values.PercentOf(pts[i].Resolved, pts[i].Total)
		}
		report.Entries = append(report.Entries, KPIEntrySeries{Entry: name, Points: pts})
	}
	for i := range totals {
		totals[i].Rate = values.PercentOf(totals[i].Resolved, totals[i].Total)
	}
	grand.Rate = values.PercentOf(grand.Resolved, grand.Total)
	report.Totals = totals
	report.Grand = grand
	return report
}
