package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
	"github.com/serviceline/ticket-analytics-backend/internal/testutil"
)

func setupTicketRepo(t *testing.T) (*TicketRepository, *testutil.TestDB) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db := testutil.NewTestDB(t)

	pool, err := pgxpool.New(context.Background(), db.ConnectionString())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewTicketRepository(pool, zaptest.NewLogger(t)), db
}

func marchTestWindow(t *testing.T) reporting.Window {
	t.Helper()
	march, err := values.NewMonth(2025, time.March)
	require.NoError(t, err)
	w, err := reporting.NewWindow(march, march, time.UTC)
	require.NoError(t, err)
	return w
}

func seedTicket(t *testing.T, db *testutil.TestDB, ref string, createdAt time.Time, resolvedAt, closedAt *time.Time) {
	t.Helper()
	_, err := db.DB().Exec(`
		INSERT INTO tickets (ref, title, type, status, caller, created_at, resolved_at, closed_at,
		                     team_key, team_name, engineer_key, engineer_name)
		VALUES ($1, 'seeded', 'incident', 'open', 'tester', $2, $3, $4,
		        'team-net', 'Network', 'eng-1', 'Chen Wei')
	`, ref, createdAt, resolvedAt, closedAt)
	require.NoError(t, err)
}

func TestTicketRepository_FetchWindow(t *testing.T) {
	repo, db := setupTicketRepo(t)
	w := marchTestWindow(t)
	ctx := context.Background()

	febResolved := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	marResolved := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	// In-window row.
	seedTicket(t, db, "I-000001", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), nil, nil)
	// Carry-over: created before, still unresolved.
	seedTicket(t, db, "I-000002", time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC), nil, nil)
	// Carry-over: created before, resolved inside the window.
	seedTicket(t, db, "I-000003", time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC), &marResolved, nil)
	// Excluded: created and resolved before the window.
	seedTicket(t, db, "I-000004", time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC), &febResolved, nil)
	// Excluded: created after the window.
	seedTicket(t, db, "I-000005", time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC), nil, nil)

	set, err := repo.FetchWindow(ctx, w)
	require.NoError(t, err)

	refs := make([]string, 0, len(set.Rows))
	for _, row := range set.Rows {
		refs = append(refs, row.Ref)
	}
	assert.Equal(t, []string{"I-000002", "I-000003", "I-000001"}, refs, "ordered by created_at then ref")

	// Column declaration covers everything the normalizer requires.
	declared := map[string]bool{}
	for _, c := range set.Columns {
		declared[c] = true
	}
	for _, required := range reporting.RequiredColumns() {
		assert.True(t, declared[required], "column %s must be declared", required)
	}
}

func TestTicketRepository_FetchWindow_NullColumns(t *testing.T) {
	repo, db := setupTicketRepo(t)
	w := marchTestWindow(t)

	_, err := db.DB().Exec(`
		INSERT INTO tickets (ref, type, status, created_at)
		VALUES ('I-000010', 'incident', 'open', $1)
	`, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	set, err := repo.FetchWindow(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, set.Rows, 1)

	row := set.Rows[0]
	assert.Equal(t, "I-000010", row.Ref)
	assert.Empty(t, row.TeamKey)
	assert.Empty(t, row.EngineerName)
	assert.Nil(t, row.ResolvedAt)
	assert.Nil(t, row.ResponseDeadline)
	require.NotNil(t, row.CreatedAt)
}

func TestTicketRepository_FetchWindow_Empty(t *testing.T) {
	repo, _ := setupTicketRepo(t)

	set, err := repo.FetchWindow(context.Background(), marchTestWindow(t))
	require.NoError(t, err)
	assert.Empty(t, set.Rows)
	assert.NotEmpty(t, set.Columns)
}

func TestTicketRepository_FetchWindow_InvalidWindow(t *testing.T) {
	repo, _ := setupTicketRepo(t)

	_, err := repo.FetchWindow(context.Background(), reporting.Window{})
	assert.Error(t, err)
}

func TestRunLogRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db := testutil.NewTestDB(t)
	pool, err := pgxpool.New(context.Background(), db.ConnectionString())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewRunLogRepository(pool, zaptest.NewLogger(t))
	ctx := context.Background()

	runID := testutil.GenerateUUID(t)
	docID := testutil.GenerateUUID(t)

	require.NoError(t, repo.RecordStarted(ctx, runID, "2025-03:2025-03:UTC"))
	require.NoError(t, repo.RecordCompleted(ctx, runID, docID))

	records, err := repo.ListRecent(ctx, "2025-03:2025-03:UTC", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0].State)
	require.NotNil(t, records[0].DocumentID)
	assert.Equal(t, docID, *records[0].DocumentID)
	require.NotNil(t, records[0].FinishedAt)

	t.Run("failed run keeps the error", func(t *testing.T) {
		failedID := testutil.GenerateUUID(t)
		require.NoError(t, repo.RecordStarted(ctx, failedID, "2025-04:2025-04:UTC"))
		require.NoError(t, repo.RecordFailed(ctx, failedID, assert.AnError))

		records, err := repo.ListRecent(ctx, "2025-04:2025-04:UTC", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "failed", records[0].State)
		assert.NotEmpty(t, records[0].Error)
	})

	t.Run("unknown run", func(t *testing.T) {
		err := repo.RecordCompleted(ctx, testutil.GenerateUUID(t), docID)
		assert.Error(t, err)
	})
}
