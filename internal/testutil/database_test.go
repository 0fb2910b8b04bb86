package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db := NewTestDB(t)

	// Test basic query
	var result int
	err := db.DB().QueryRow("SELECT 1").Scan(&result)
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	// Test schema was initialized
	var tableCount int
	err = db.DB().QueryRow(`
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
	`).Scan(&tableCount)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, tableCount, 2)
}

func TestTestDB_TruncateTables(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db := NewTestDB(t)

	_, err := db.DB().Exec(`
		INSERT INTO tickets (ref, type, status, created_at)
		VALUES ('I-000001', 'incident', 'open', $1)
	`, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	db.AssertRowCount("tickets", 1)

	db.TruncateTables()

	db.AssertRowCount("tickets", 0)
}
