package reporting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/catalog"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
	"github.com/serviceline/ticket-analytics-backend/internal/testutil/fixtures"
)

func quarterWindow(t *testing.T) reporting.Window {
	t.Helper()
	w, err := reporting.NewWindow(mustMonth(t, "2025-01"), mustMonth(t, "2025-03"), time.UTC)
	require.NoError(t, err)
	return w
}

func TestTrendCoversEveryRequestedMonth(t *testing.T) {
	w := quarterWindow(t)
	// Tickets only in January and March; February must still appear.
	jan := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", jan).ResolvedAfter(time.Hour).Build(),
		fixtures.NewRowBuilder(t, "I-0002", mar).Build(),
	), reporting.NormalizeOptions{Window: w, Cutoff: mar.AddDate(0, 1, 0)})
	require.NoError(t, err)

	series := reporting.Trend(result.Tickets, w, reporting.MetricResolutionRate, reporting.ScopeAll)

	require.Len(t, series.Points, 3)
	assert.Equal(t, "2025-01", series.Points[0].Month.String())
	assert.Equal(t, "2025-02", series.Points[1].Month.String())
	assert.Equal(t, "2025-03", series.Points[2].Month.String())

	assert.False(t, series.Points[0].NoData)
	assert.True(t, series.Points[0].Rate.Valid())
	assert.Equal(t, 1.0, series.Points[0].Rate.Float64())

	// The empty month is a gap marker, not a fake 0%.
	assert.True(t, series.Points[1].NoData)
	assert.False(t, series.Points[1].Rate.Valid())

	assert.Equal(t, 0.0, series.Points[2].Rate.Float64())
	assert.True(t, series.Points[2].Rate.Valid())
}

func TestTrendVolumeCountsEmptyMonthsAsZero(t *testing.T) {
	w := quarterWindow(t)
	feb := time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC)
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", feb).Build(),
		fixtures.NewRowBuilder(t, "I-0002", feb).Build(),
	), reporting.NormalizeOptions{Window: w, Cutoff: feb.AddDate(0, 2, 0)})
	require.NoError(t, err)

	series := reporting.Trend(result.Tickets, w, reporting.MetricVolume, reporting.ScopeAll)

	require.Len(t, series.Points, 3)
	assert.Equal(t, 0.0, series.Points[0].Value)
	assert.False(t, series.Points[0].NoData)
	assert.Equal(t, 2.0, series.Points[1].Value)
	assert.Equal(t, 0.0, series.Points[2].Value)
}

func TestTrendSingleMonthWindow(t *testing.T) {
	w := marchWindow(t)
	mar := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", mar).ResolvedAfter(time.Hour).Build(),
	), marchOptions(t))
	require.NoError(t, err)

	series := reporting.Trend(result.Tickets, w, reporting.MetricResolutionRate, reporting.ScopeAll)

	require.Len(t, series.Points, 1)
	assert.Equal(t, 1.0, series.Points[0].Rate.Float64())
}

func TestTrendScopeFiltersByCategory(t *testing.T) {
	w := marchWindow(t)
	mar := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	opts := marchOptions(t)
	opts.Categories = reporting.CategoryMap{
		"infra": catalog.CategoryInfrastructure,
		"app":   catalog.CategoryApplication,
	}
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", mar).WithService("infra", "Infrastructure").Build(),
		fixtures.NewRowBuilder(t, "I-0002", mar).WithService("app", "ERP").Build(),
		fixtures.NewRowBuilder(t, "I-0003", mar).Build(),
	), opts)
	require.NoError(t, err)

	infra := reporting.Trend(result.Tickets, w, reporting.MetricVolume, reporting.ScopeInfrastructure)
	app := reporting.Trend(result.Tickets, w, reporting.MetricVolume, reporting.ScopeApplication)
	all := reporting.Trend(result.Tickets, w, reporting.MetricVolume, reporting.ScopeAll)

	// The uncategorized ticket counts toward infrastructure, never application.
	assert.Equal(t, 2.0, infra.Points[0].Value)
	assert.Equal(t, 1.0, app.Points[0].Value)
	assert.Equal(t, 3.0, all.Points[0].Value)
}

func TestKPITrend(t *testing.T) {
	w, err := reporting.NewWindow(mustMonth(t, "2025-02"), mustMonth(t, "2025-03"), time.UTC)
	require.NoError(t, err)
	feb := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	opts := reporting.NormalizeOptions{
		Window:     w,
		Cutoff:     mar.AddDate(0, 1, 0),
		Categories: reporting.CategoryMap{"net": catalog.CategoryInfrastructure, "db": catalog.CategoryInfrastructure},
	}
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", feb).WithService("net", "Network").ResolvedAfter(time.Hour).Build(),
		fixtures.NewRowBuilder(t, "I-0002", feb).WithService("net", "Network").Build(),
		fixtures.NewRowBuilder(t, "I-0003", mar).WithService("db", "Database").ResolvedAfter(time.Hour).Build(),
	), opts)
	require.NoError(t, err)

	kpi := reporting.KPITrend(result.Tickets, w, reporting.ScopeInfrastructure)

	require.Len(t, kpi.Entries, 2)
	// Entries sorted by display name, each covering both months.
	assert.Equal(t, "Database", kpi.Entries[0].Entry)
	assert.Equal(t, "Network", kpi.Entries[1].Entry)
	require.Len(t, kpi.Entries[0].Points, 2)
	assert.False(t, kpi.Entries[0].Points[0].Rate.Valid())
	assert.Equal(t, 1.0, kpi.Entries[0].Points[1].Rate.Float64())
	assert.Equal(t, 0.5, kpi.Entries[1].Points[0].Rate.Float64())

	// Monthly totals and grand total across the category.
	require.Len(t, kpi.Totals, 2)
	assert.Equal(t, 2, kpi.Totals[0].Total)
	assert.Equal(t, 1, kpi.Totals[1].Total)
	assert.Equal(t, 3, kpi.Grand.Total)
	assert.Equal(t, 2, kpi.Grand.Resolved)
}

func TestKPITrendUncategorizedLandsInInfrastructure(t *testing.T) {
	w := marchWindow(t)
	mar := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	opts := marchOptions(t)
	opts.Categories = reporting.CategoryMap{"app": catalog.CategoryApplication}
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", mar).ResolvedAfter(time.Hour).Build(),
		fixtures.NewRowBuilder(t, "I-0002", mar).WithService("misc", "杂项服务").Build(),
		fixtures.NewRowBuilder(t, "I-0003", mar).WithService("app", "ERP").ResolvedAfter(time.Hour).Build(),
	), opts)
	require.NoError(t, err)

	infra := reporting.KPITrend(result.Tickets, w, reporting.ScopeInfrastructure)
	app := reporting.KPITrend(result.Tickets, w, reporting.ScopeApplication)

	// Ticket without a service ref and ticket with an unmapped service key
	// both report under infrastructure; only the mapped application service
	// reports under application.
	assert.Equal(t, 2, infra.Grand.Total)
	assert.Equal(t, 1, infra.Grand.Resolved)
	assert.Equal(t, 1, app.Grand.Total)

	entryNames := make([]string, 0, len(infra.Entries))
	for _, e := range infra.Entries {
		entryNames = append(entryNames, e.Entry)
	}
	assert.Contains(t, entryNames, reporting.UncategorizedLbl)
}

func TestKPITrendEmptyCategory(t *testing.T) {
	kpi := reporting.KPITrend(nil, quarterWindow(t), reporting.ScopeApplication)

	assert.Empty(t, kpi.Entries)
	require.Len(t, kpi.Totals, 3)
	assert.Equal(t, 0, kpi.Grand.Total)
	assert.False(t, kpi.Grand.Rate.Valid())
}
