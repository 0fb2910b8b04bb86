package reporting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
	"github.com/serviceline/ticket-analytics-backend/internal/testutil/fixtures"
)

func TestUnresolvedOldestFirst(t *testing.T) {
	jan := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "NEW", mar).Build(),
		// Carry-over from January: excluded from counts, present here.
		fixtures.NewRowBuilder(t, "ANCIENT", jan).Build(),
		fixtures.NewRowBuilder(t, "DONE", mar).ResolvedAfter(time.Hour).Build(),
		fixtures.NewRowBuilder(t, "TIE-B", mar).Build(),
	), marchOptions(t))
	require.NoError(t, err)

	unresolved := reporting.Unresolved(result.Tickets)

	require.Len(t, unresolved, 3)
	assert.Equal(t, "ANCIENT", unresolved[0].Ref)
	assert.Equal(t, "NEW", unresolved[1].Ref)
	assert.Equal(t, "TIE-B", unresolved[2].Ref)
}

func TestBreachesWorstOverageFirst(t *testing.T) {
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	opts := marchOptions(t)
	opts.Policies = ticket.SLAPolicySet{
		ticket.TypeIncident: {ResolveWithin: 4 * time.Hour},
	}
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "MILD", base).ResolvedAfter(5*time.Hour).Build(),
		fixtures.NewRowBuilder(t, "SEVERE", base).ResolvedAfter(10*time.Hour).Build(),
		fixtures.NewRowBuilder(t, "ONTIME", base).ResolvedAfter(time.Hour).Build(),
	), opts)
	require.NoError(t, err)

	breaches := reporting.Breaches(result.Tickets)

	require.Len(t, breaches, 2)
	assert.Equal(t, "SEVERE", breaches[0].Ref)
	assert.Equal(t, 6*time.Hour, breaches[0].WorstOverage())
	assert.Equal(t, "MILD", breaches[1].Ref)
	assert.Equal(t, time.Hour, breaches[1].WorstOverage())
}

func TestTopCatalog(t *testing.T) {
	base := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	opts := marchOptions(t)
	opts.Policies = ticket.SLAPolicySet{
		ticket.TypeIncident: {ResolveWithin: time.Hour},
	}
	rows := []*reporting.RawTicketRow{
		// email: two unresolved, one of them also breached.
		fixtures.NewRowBuilder(t, "E-1", base).WithService("email", "Email").Build(),
		fixtures.NewRowBuilder(t, "E-2", base).WithService("email", "Email").Build(),
		// network: one resolved late (breach only).
		fixtures.NewRowBuilder(t, "N-1", base).WithService("net", "Network").ResolvedAfter(3*time.Hour).Build(),
		// storage: all fine.
		fixtures.NewRowBuilder(t, "S-1", base).WithService("store", "Storage").ResolvedAfter(30*time.Minute).Build(),
		// no catalog entry, unresolved.
		fixtures.NewRowBuilder(t, "U-1", base).Build(),
	}
	result, err := reporting.Normalize(fixtures.RowSet(rows...), opts)
	require.NoError(t, err)

	ranks := reporting.TopCatalog(result.Tickets, 10)

	require.Len(t, ranks, 3)
	assert.Equal(t, "email", ranks[0].Key)
	assert.Equal(t, 2, ranks[0].Combined)
	assert.Equal(t, 2, ranks[0].Unresolved)
	// Ties at combined count 1 break by key: net < uncategorized.
	assert.Equal(t, "net", ranks[1].Key)
	assert.Equal(t, 1, ranks[1].Breached)
	assert.Equal(t, reporting.UncategorizedKey, ranks[2].Key)
}

func TestTopCatalogTruncates(t *testing.T) {
	base := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	rows := make([]*reporting.RawTicketRow, 0, 15)
	for i := 0; i < 15; i++ {
		key := string(rune('a' + i))
		rows = append(rows, fixtures.NewRowBuilder(t, refN("T", i), base).
			WithService(key, "Service "+key).Build())
	}
	result, err := reporting.Normalize(fixtures.RowSet(rows...), marchOptions(t))
	require.NoError(t, err)

	ranks := reporting.TopCatalog(result.Tickets, 0)

	assert.Len(t, ranks, reporting.DefaultTopN)
}

func TestFindExceptionsReadsOnly(t *testing.T) {
	base := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	result, err := reporting.Normalize(fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-1", base).Build(),
	), marchOptions(t))
	require.NoError(t, err)
	before := *result.Tickets[0]

	asOf := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	ex := reporting.FindExceptions(result.Tickets, 10, asOf)

	assert.Equal(t, before, *result.Tickets[0])
	assert.Equal(t, asOf, ex.AsOf)
	assert.Len(t, ex.Unresolved, 1)
	assert.Empty(t, ex.Breaches)
}
