package reporting_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
	"github.com/serviceline/ticket-analytics-backend/internal/testutil/fixtures"
)

func marchWindow(t *testing.T) reporting.Window {
	t.Helper()
	w, err := reporting.NewWindow(
		values.MustNewMonth(2025, time.March),
		values.MustNewMonth(2025, time.March),
		time.UTC,
	)
	require.NoError(t, err)
	return w
}

func marchOptions(t *testing.T) reporting.NormalizeOptions {
	t.Helper()
	return reporting.NormalizeOptions{
		Window: marchWindow(t),
		Cutoff: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNormalizeSchemaError(t *testing.T) {
	tests := []struct {
		name string
		rows *reporting.RawRowSet
	}{
		{name: "nil row set"},
		{
			name: "missing created_at column",
			rows: &reporting.RawRowSet{Columns: []string{"ref", "type", "status"}},
		},
		{
			name: "no columns declared",
			rows: &reporting.RawRowSet{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reporting.Normalize(tt.rows, marchOptions(t))

			var schemaErr *errors.SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.NotEmpty(t, schemaErr.Missing)
		})
	}
}

func TestNormalizeSkipsInvalidRows(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := fixtures.RowSet(
		fixtures.NewRowBuilder(t, "R-0001", base).Build(),
		fixtures.NewRowBuilder(t, "R-0002", base).WithoutCreatedAt().Build(),
		fixtures.NewRowBuilder(t, "R-0003", base).WithType("Problem").Build(),
		fixtures.NewRowBuilder(t, "R-0004", base).WithStatus("unheard_of").Build(),
		nil,
	)

	result, err := reporting.Normalize(rows, marchOptions(t))

	require.NoError(t, err)
	assert.Len(t, result.Tickets, 1)
	assert.Equal(t, 4, result.Skipped)
	require.Len(t, result.RowErrors, 4)
	assert.Equal(t, 1, result.RowErrors[0].RowIndex)
	assert.Equal(t, "created_at", result.RowErrors[0].Field)
	assert.Equal(t, "type", result.RowErrors[1].Field)
}

func TestNormalizeUnknownOutcomeDegrades(t *testing.T) {
	base := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	rows := fixtures.RowSet(
		fixtures.NewRowBuilder(t, "C-0001", base).WithType("Change").WithOutcome("garbled").Build(),
	)

	result, err := reporting.Normalize(rows, marchOptions(t))

	require.NoError(t, err)
	require.Len(t, result.Tickets, 1)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, ticket.OutcomeNone, result.Tickets[0].Outcome)
}

func TestNormalizeDerivedDurations(t *testing.T) {
	base := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	rows := fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", base).
			RespondedAfter(30*time.Minute).
			ResolvedAfter(4*time.Hour).
			Build(),
	)

	result, err := reporting.Normalize(rows, marchOptions(t))

	require.NoError(t, err)
	require.Len(t, result.Tickets, 1)
	tk := result.Tickets[0]
	require.NotNil(t, tk.ResponseDuration)
	assert.Equal(t, 30*time.Minute, *tk.ResponseDuration)
	require.NotNil(t, tk.ResolutionDuration)
	assert.Equal(t, 4*time.Hour, *tk.ResolutionDuration)
	assert.Equal(t, values.MustNewMonth(2025, time.March), tk.MonthBucket)
}

func TestNormalizeSLAFromPolicy(t *testing.T) {
	base := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	opts := marchOptions(t)
	opts.Policies = ticket.SLAPolicySet{
		ticket.TypeIncident: {ResponseWithin: time.Hour, ResolveWithin: 8 * time.Hour},
		ticket.TypeChange:   {ResponseWithin: time.Hour, ResolveWithin: 72 * time.Hour},
	}

	t.Run("incident resolved past deadline breaches with exact overage", func(t *testing.T) {
		rows := fixtures.RowSet(
			fixtures.NewRowBuilder(t, "I-0001", base).
				RespondedAfter(10*time.Minute).
				ResolvedAfter(9*time.Hour).
				Build(),
		)

		result, err := reporting.Normalize(rows, opts)

		require.NoError(t, err)
		tk := result.Tickets[0]
		assert.False(t, tk.SLAResponseBreached)
		assert.True(t, tk.SLAResolutionBreached)
		require.NotNil(t, tk.SLAResolutionOverage)
		assert.Equal(t, time.Hour, *tk.SLAResolutionOverage)
	})

	t.Run("open incident past its deadline already counts as breached", func(t *testing.T) {
		rows := fixtures.RowSet(fixtures.NewRowBuilder(t, "I-0002", base).Build())

		result, err := reporting.Normalize(rows, opts)

		require.NoError(t, err)
		tk := result.Tickets[0]
		assert.True(t, tk.SLAResponseBreached)
		assert.True(t, tk.SLAResolutionBreached)
	})

	t.Run("change never carries a response deadline", func(t *testing.T) {
		rows := fixtures.RowSet(
			fixtures.NewRowBuilder(t, "C-0001", base).
				WithType("Change").
				WithDeadlines(time.Hour, 0).
				Build(),
		)

		result, err := reporting.Normalize(rows, opts)

		require.NoError(t, err)
		tk := result.Tickets[0]
		assert.Nil(t, tk.SLAResponseDeadline)
		assert.False(t, tk.SLAResponseBreached)
	})

	t.Run("type without policy has false breach flags", func(t *testing.T) {
		rows := fixtures.RowSet(
			fixtures.NewRowBuilder(t, "R-0001", base).WithType("UserRequest").Build(),
		)

		result, err := reporting.Normalize(rows, opts)

		require.NoError(t, err)
		tk := result.Tickets[0]
		assert.Nil(t, tk.SLAResolutionDeadline)
		assert.False(t, tk.SLAResponseBreached)
		assert.False(t, tk.SLAResolutionBreached)
	})
}

func TestNormalizeWindowPlacement(t *testing.T) {
	january := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	march := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	april := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

	rows := fixtures.RowSet(
		fixtures.NewRowBuilder(t, "IN-RANGE", march).Build(),
		fixtures.NewRowBuilder(t, "CARRY-OPEN", january).Build(),
		fixtures.NewRowBuilder(t, "CARRY-RESOLVED", january).ResolvedAfter(60*24*time.Hour).Build(),
		fixtures.NewRowBuilder(t, "OLD-RESOLVED", january).ResolvedAfter(time.Hour).Build(),
		fixtures.NewRowBuilder(t, "FUTURE", april).Build(),
	)

	result, err := reporting.Normalize(rows, marchOptions(t))

	require.NoError(t, err)
	refs := make(map[string]bool)
	for _, tk := range result.Tickets {
		refs[tk.Ref] = tk.CarryOver
	}
	assert.Equal(t, map[string]bool{
		"IN-RANGE":       false,
		"CARRY-OPEN":     true,
		"CARRY-RESOLVED": true,
	}, refs)
}

func TestNormalizeIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0002", base.Add(time.Hour)).
			WithTeam("net", "Network Team").
			WithService("infra", "Infrastructure").
			Build(),
		fixtures.NewRowBuilder(t, "I-0001", base.Add(time.Hour)).Build(),
		fixtures.NewRowBuilder(t, "I-0003", base).ResolvedAfter(2*time.Hour).Build(),
	)

	first, err := reporting.Normalize(rows, marchOptions(t))
	require.NoError(t, err)
	second, err := reporting.Normalize(rows, marchOptions(t))
	require.NoError(t, err)

	a, err := json.Marshal(first.Tickets)
	require.NoError(t, err)
	b, err := json.Marshal(second.Tickets)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	// Ordering is (CreatedAt, Ref), independent of input order.
	require.Len(t, first.Tickets, 3)
	assert.Equal(t, "I-0003", first.Tickets[0].Ref)
	assert.Equal(t, "I-0001", first.Tickets[1].Ref)
	assert.Equal(t, "I-0002", first.Tickets[2].Ref)
}

func TestNormalizeInternsReferences(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", base).WithTeam("net", "Network Team").Build(),
		fixtures.NewRowBuilder(t, "I-0002", base).WithTeam("net", "Network Team").Build(),
	)

	result, err := reporting.Normalize(rows, marchOptions(t))

	require.NoError(t, err)
	require.Len(t, result.Tickets, 2)
	assert.Same(t, result.Tickets[0].AssignedTeam, result.Tickets[1].AssignedTeam)
}
