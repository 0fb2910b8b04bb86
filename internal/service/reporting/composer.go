package reporting

import (
	"fmt"
	"time"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
)

// Pie slice palette, fixed so successive reports stay visually comparable.
const (
	colorResolved   = "#00b8a9"
	colorUnresolved = "#f6416c"
	colorClosed     = "#f8f3d4"
)

// Line charts plot rates on a fixed 0..105 axis so a flat 100% month does
// not hug the frame.
var rateAxis = report.Axis{Min: 0, Max: 105, Step: 20, TickSuffix: "%"}

// Table capacity estimates used for pagination hints. The rendering
// backend fits roughly this many rows under a section heading.
const (
	statRowsPerPage    = 22
	listingRowsPerPage = 28
)

// ComposeInput carries every analyzer output one document needs
type ComposeInput struct {
	Window      Window
	GeneratedAt time.Time
	SkippedRows int

	TypeStats     *AggregationResult
	TeamStats     *AggregationResult
	EngineerStats *AggregationResult

	TeamMonthly     []MonthlyStat
	EngineerMonthly []MonthlyStat
	TeamTrend       map[string]*TrendSeries

	Exceptions *Exceptions

	InfraKPI *KPIReport
	AppKPI   *KPIReport
}

// Compose assembles the final document. Section order is fixed; a section
// whose input is empty still appears with a no-data table so the report
// keeps the same shape run over run. Compose itself is pure: the same
// input yields an identical document apart from the generated ID.
func Compose(in *ComposeInput) *report.Document {
	total, skipped := 0, in.SkippedRows
	if in.TypeStats != nil {
		total = in.TypeStats.All.Total
	}

	title := fmt.Sprintf("iTop 运维服务报表 (%s)", in.Window.Label())
	doc := report.NewDocument(title, in.Window.Start, in.Window.End, in.GeneratedAt)
	doc.TotalTickets = total
	doc.SkippedRows = skipped
	doc.EmptyRange = total == 0

	doc.AddSection(composeOverview(in, total, skipped))
	doc.AddSection(composeTypeBreakdown(in.TypeStats))
	doc.AddSection(composeGroupAnalysis(report.SectionTeamAnalysis, "Team Analysis",
		in.TeamStats, in.TeamMonthly, in.TeamTrend))
	doc.AddSection(composeGroupAnalysis(report.SectionEngineerAnalysis, "Engineer Analysis",
		in.EngineerStats, in.EngineerMonthly, nil))
	doc.AddSection(composeExceptions(in.Exceptions))
	doc.AddSection(composeKPITrends(in.InfraKPI, in.AppKPI))
	doc.AddSection(composeTopCatalog(in.Exceptions))

	return doc
}

func composeOverview(in *ComposeInput, total, skipped int) report.Section {
	resolved := 0
	if in.TypeStats != nil {
		resolved = in.TypeStats.All.Resolved + in.TypeStats.All.Closed
	}
	rate := "N/A"
	if in.TypeStats != nil && in.TypeStats.All.ResolutionRate.Valid() {
		rate = in.TypeStats.All.ResolutionRate.String()
	}

	narrative := fmt.Sprintf(
		"Report for %s: %d tickets, %d resolved or closed (%s resolution rate).",
		in.Window.Label(), total, resolved, rate)
	if skipped > 0 {
		narrative += fmt.Sprintf(" %d source rows were skipped as invalid.", skipped)
	}
	if total == 0 {
		narrative = fmt.Sprintf("Report for %s: no tickets in range.", in.Window.Label())
	}

	t := report.NewTable("Summary",
		report.Column{Key: "metric", Label: "Metric"},
		report.Column{Key: "value", Label: "Value"},
	)
	t.MustAddRow(report.TextCell("Total tickets"), report.IntCell(total))
	t.MustAddRow(report.TextCell("Resolved or closed"), report.IntCell(resolved))
	t.MustAddRow(report.TextCell("Skipped source rows"), report.IntCell(skipped))
	if in.Exceptions != nil {
		t.MustAddRow(report.TextCell("Unresolved tickets"), report.IntCell(len(in.Exceptions.Unresolved)))
		t.MustAddRow(report.TextCell("SLA breaches"), report.IntCell(len(in.Exceptions.Breaches)))
	} else {
		t.MustAddRow(report.TextCell("Unresolved tickets"), report.IntCell(0))
		t.MustAddRow(report.TextCell("SLA breaches"), report.IntCell(0))
	}
	t.Paginate(statRowsPerPage)

	return report.Section{
		Kind:      report.SectionOverview,
		Title:     "Overview",
		Narrative: narrative,
		Tables:    []report.Table{t},
	}
}

func composeTypeBreakdown(stats *AggregationResult) report.Section {
	s := report.Section{Kind: report.SectionTypeBreakdown, Title: "Ticket Type Breakdown"}
	if stats == nil || len(stats.Groups) == 0 {
		s.Tables = []report.Table{report.NoDataTable("Per-Type Statistics")}
		return s
	}

	s.Tables = []report.Table{metricsTable("Per-Type Statistics", stats, true)}
	for _, g := range stats.Groups {
		if g.Total == 0 {
			continue
		}
		s.Charts = append(s.Charts, report.ChartSpec{
			Kind:  report.ChartPie,
			Title: g.Label,
			Series: []report.Series{{
				Name: g.Label,
				Points: []report.Point{
					{Label: "Resolved", Value: float64(g.Resolved)},
					{Label: "Unresolved", Value: float64(g.Unresolved)},
					{Label: "Closed", Value: float64(g.Closed)},
				},
			}},
			Colors: []string{colorResolved, colorUnresolved, colorClosed},
		})
	}
	return s
}

func composeGroupAnalysis(kind report.SectionKind, title string, stats *AggregationResult, monthly []MonthlyStat, trends map[string]*TrendSeries) report.Section {
	s := report.Section{Kind: kind, Title: title}
	if stats == nil || len(stats.Groups) == 0 {
		s.Tables = []report.Table{report.NoDataTable(title)}
		return s
	}

	s.Tables = []report.Table{metricsTable(title+" Totals", stats, false)}
	if len(monthly) > 0 {
		s.Tables = append(s.Tables, monthlyTable(title+" by Month", monthly))
	}

	for _, g := range stats.Groups {
		series, ok := trends[g.Key]
		if !ok || series == nil {
			continue
		}
		s.Charts = append(s.Charts, lineChart(
			g.Label+" Monthly Resolution Rate", g.Label, series))
	}
	return s
}

func composeExceptions(ex *Exceptions) report.Section {
	s := report.Section{Kind: report.SectionExceptions, Title: "Unresolved Tickets & SLA Breaches"}
	if ex == nil {
		ex = &Exceptions{}
	}

	if len(ex.Unresolved) == 0 {
		s.Tables = append(s.Tables, report.NoDataTable("Unresolved Tickets"))
	} else {
		t := report.NewTable("Unresolved Tickets",
			report.Column{Key: "ref", Label: "Ref"},
			report.Column{Key: "title", Label: "Title"},
			report.Column{Key: "created", Label: "Created"},
			report.Column{Key: "status", Label: "Status"},
			report.Column{Key: "caller", Label: "Caller"},
			report.Column{Key: "team", Label: "Team"},
			report.Column{Key: "engineer", Label: "Engineer"},
		)
		for _, u := range ex.Unresolved {
			created := u.CreatedAt
			t.MustAddRow(
				report.TextCell(u.Ref),
				report.TextCell(u.Title),
				report.TimeCell(&created),
				report.TextCell(u.Status.String()),
				report.TextCell(u.Caller),
				report.TextCell(u.TeamName()),
				report.TextCell(u.EngineerName()),
			)
		}
		t.Paginate(listingRowsPerPage)
		s.Tables = append(s.Tables, t)
	}

	if len(ex.Breaches) == 0 {
		s.Tables = append(s.Tables, report.NoDataTable("SLA Breaches"))
	} else {
		t := report.NewTable("SLA Breaches",
			report.Column{Key: "ref", Label: "Ref"},
			report.Column{Key: "title", Label: "Title"},
			report.Column{Key: "status", Label: "Status"},
			report.Column{Key: "created", Label: "Created"},
			report.Column{Key: "response_deadline", Label: "Response Deadline"},
			report.Column{Key: "response_over", Label: "Response Overrun"},
			report.Column{Key: "resolution_deadline", Label: "Resolution Deadline"},
			report.Column{Key: "resolution_over", Label: "Resolution Overrun"},
		)
		for _, b := range ex.Breaches {
			created := b.CreatedAt
			t.MustAddRow(
				report.TextCell(b.Ref),
				report.TextCell(b.Title),
				report.TextCell(b.Status.String()),
				report.TimeCell(&created),
				report.TimeCell(b.SLAResponseDeadline),
				report.DurationCell(b.SLAResponseOverage),
				report.TimeCell(b.SLAResolutionDeadline),
				report.DurationCell(b.SLAResolutionOverage),
			)
		}
		t.Paginate(listingRowsPerPage)
		s.Tables = append(s.Tables, t)
	}
	return s
}

func composeKPITrends(infra, app *KPIReport) report.Section {
	s := report.Section{Kind: report.SectionKPITrends, Title: "KPI Trends"}
	for _, kpi := range []struct {
		name   string
		report *KPIReport
	}{
		{"Infrastructure", infra},
		{"Application", app},
	} {
		if kpi.report == nil || kpi.report.Grand.Total == 0 {
			s.Tables = append(s.Tables, report.NoDataTable(kpi.name+" KPI"))
			continue
		}
		s.Tables = append(s.Tables, kpiTable(kpi.name+" KPI", kpi.report))
		s.Charts = append(s.Charts, kpiChart(kpi.name+" KPI Trend", kpi.report))
	}
	return s
}

func composeTopCatalog(ex *Exceptions) report.Section {
	s := report.Section{Kind: report.SectionTopCatalog, Title: "Top Service Catalog Backlog"}
	if ex == nil || len(ex.TopCatalog) == 0 {
		s.Tables = []report.Table{report.NoDataTable("Top Service Catalog Backlog")}
		return s
	}

	t := report.NewTable("Top Service Catalog Backlog",
		report.Column{Key: "rank", Label: "#"},
		report.Column{Key: "entry", Label: "Service"},
		report.Column{Key: "unresolved", Label: "Unresolved"},
		report.Column{Key: "breached", Label: "Breached"},
		report.Column{Key: "combined", Label: "Total"},
	)
	for i, r := range ex.TopCatalog {
		t.MustAddRow(
			report.IntCell(i+1),
			report.TextCell(r.Label),
			report.IntCell(r.Unresolved),
			report.IntCell(r.Breached),
			report.IntCell(r.Combined),
		)
	}
	t.Paginate(listingRowsPerPage)
	s.Tables = []report.Table{t}
	return s
}

// metricsTable renders one aggregation pass. The "all" summary row comes
// last, matching the grand-total convention of the statistic tables.
// withSuccess adds the change success-rate column, which only the per-type
// table carries.
func metricsTable(title string, stats *AggregationResult, withSuccess bool) report.Table {
	cols := []report.Column{
		{Key: "group", Label: "Group"},
		{Key: "total", Label: "Total"},
		{Key: "resolved", Label: "Resolved"},
		{Key: "closed", Label: "Closed"},
		{Key: "unresolved", Label: "Unresolved"},
		{Key: "overdue", Label: "Overdue"},
		{Key: "resolution_rate", Label: "Resolution Rate"},
		{Key: "on_time_rate", Label: "On-Time Rate"},
		{Key: "avg_response", Label: "Avg Response"},
		{Key: "avg_resolution", Label: "Avg Resolution"},
	}
	if withSuccess {
		cols = append(cols, report.Column{Key: "success_rate", Label: "Change Success Rate"})
	}
	t := report.NewTable(title, cols...)

	addRow := func(m Metrics) {
		cells := []report.Cell{
			report.TextCell(m.Label),
			report.IntCell(m.Total),
			report.IntCell(m.Resolved),
			report.IntCell(m.Closed),
			report.IntCell(m.Unresolved),
			report.IntCell(m.Overdue),
			report.PercentCell(m.ResolutionRate),
			report.PercentCell(m.OnTimeRate),
			report.DurationCell(m.AvgResponse),
			report.DurationCell(m.AvgResolution),
		}
		if withSuccess {
			cells = append(cells, report.PercentCell(m.SuccessRate))
		}
		t.MustAddRow(cells...)
	}
	for _, g := range stats.Groups {
		addRow(g)
	}
	addRow(stats.All)
	t.Paginate(statRowsPerPage)
	return t
}

func monthlyTable(title string, monthly []MonthlyStat) report.Table {
	t := report.NewTable(title,
		report.Column{Key: "month", Label: "Month"},
		report.Column{Key: "group", Label: "Group"},
		report.Column{Key: "type", Label: "Type"},
		report.Column{Key: "total", Label: "Total"},
		report.Column{Key: "resolved", Label: "Resolved"},
		report.Column{Key: "overdue", Label: "Overdue"},
		report.Column{Key: "resolution_rate", Label: "Resolution Rate"},
		report.Column{Key: "on_time_rate", Label: "On-Time Rate"},
		report.Column{Key: "avg_response", Label: "Avg Response"},
		report.Column{Key: "max_response", Label: "Max Response"},
		report.Column{Key: "avg_resolution", Label: "Avg Resolution"},
		report.Column{Key: "max_resolution", Label: "Max Resolution"},
	)
	for _, row := range monthly {
		m := row.Metrics
		t.MustAddRow(
			report.MonthCell(row.Month),
			report.TextCell(row.Group),
			report.TextCell(row.Type.Label()),
			report.IntCell(m.Total),
			report.IntCell(m.Resolved),
			report.IntCell(m.Overdue),
			report.PercentCell(m.ResolutionRate),
			report.PercentCell(m.OnTimeRate),
			report.DurationCell(m.AvgResponse),
			report.DurationCell(m.MaxResponse),
			report.DurationCell(m.AvgResolution),
			report.DurationCell(m.MaxResolution),
		)
	}
	t.Paginate(statRowsPerPage)
	return t
}

func kpiTable(title string, kpi *KPIReport) report.Table {
	cols := []report.Column{{Key: "entry", Label: "Service"}}
	for _, p := range kpi.Totals {
		cols = append(cols, report.Column{Key: p.Month.String(), Label: p.Month.String()})
	}
	t := report.NewTable(title, cols...)

	for _, entry := range kpi.Entries {
		cells := []report.Cell{report.TextCell(entry.Entry)}
		for _, p := range entry.Points {
			cells = append(cells, report.PercentCell(p.Rate))
		}
		t.MustAddRow(cells...)
	}
	totalCells := []report.Cell{report.TextCell("KPI Total")}
	for _, p := range kpi.Totals {
		totalCells = append(totalCells, report.PercentCell(p.Rate))
	}
	t.MustAddRow(totalCells...)
	t.Paginate(statRowsPerPage)
	return t
}

func kpiChart(title string, kpi *KPIReport) report.ChartSpec {
	xAxis := make([]string, 0, len(kpi.Totals))
	points := make([]report.Point, 0, len(kpi.Totals))
	for _, p := range kpi.Totals {
		xAxis = append(xAxis, p.Month.String())
		points = append(points, report.Point{
			Label:  p.Month.String(),
			Value:  p.Rate.Float64() * 100,
			NoData: !p.Rate.Valid(),
		})
	}
	axis := rateAxis
	return report.ChartSpec{
		Kind:   report.ChartLine,
		Title:  title,
		Series: []report.Series{{Name: "KPI Total", Points: points, StrokeWidth: 2}},
		XAxis:  xAxis,
		YAxis:  &axis,
	}
}

func lineChart(title, name string, series *TrendSeries) report.ChartSpec {
	xAxis := make([]string, 0, len(series.Points))
	points := make([]report.Point, 0, len(series.Points))
	for _, p := range series.Points {
		xAxis = append(xAxis, p.Month.String())
		points = append(points, report.Point{Label: p.Month.String(), Value: p.Value, NoData: p.NoData})
	}
	axis := rateAxis
	return report.ChartSpec{
		Kind:   report.ChartLine,
		Title:  title,
		Series: []report.Series{{Name: name, Points: points, StrokeWidth: 2}},
		XAxis:  xAxis,
		YAxis:  &axis,
	}
}
