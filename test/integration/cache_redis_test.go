package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/cache"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/config"
	"github.com/serviceline/ticket-analytics-backend/internal/testutil/containers"
)

// Exercises the cache stack against a real Redis instance. Unit tests use
// miniredis; this covers wire behavior like TTL expiry and pipelined
// rate-limit counters.
func TestCacheManagerAgainstRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()

	rc, err := containers.NewRedisContainer(ctx)
	require.NoError(t, err, "redis container should start")
	defer rc.Terminate(ctx)

	cm, err := cache.NewCacheManager(&config.RedisConfig{URL: rc.Addr}, zap.NewNop())
	require.NoError(t, err)
	defer cm.Close()

	require.NoError(t, cm.HealthCheck(ctx))

	t.Run("ReportCacheRoundTrip", func(t *testing.T) {
		start, err := values.ParseMonth("2025-03")
		require.NoError(t, err)

		doc := &report.Document{
			ID:           uuid.New(),
			Title:        "iTop 运维服务报表 (2025年3月)",
			RangeStart:   start,
			RangeEnd:     start,
			GeneratedAt:  time.Now().UTC(),
			TotalTickets: 42,
		}

		require.NoError(t, cm.Reports.Set(ctx, "report:2025-03:2025-03", doc, time.Minute))

		byKey, err := cm.Reports.GetByKey(ctx, "report:2025-03:2025-03")
		require.NoError(t, err)
		require.NotNil(t, byKey)
		assert.Equal(t, doc.ID, byKey.ID)
		assert.Equal(t, doc.Title, byKey.Title)
		assert.Equal(t, 42, byKey.TotalTickets)

		byID, err := cm.Reports.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, doc.Title, byID.Title)
	})

	t.Run("RunStatusLifecycle", func(t *testing.T) {
		runID := uuid.New()
		docID := uuid.New()

		require.NoError(t, cm.Runs.Put(ctx, &cache.RunStatus{
			RunID:     runID,
			State:     cache.RunStateStarted,
			Window:    "2025-03..2025-03",
			UpdatedAt: time.Now().UTC(),
		}))

		require.NoError(t, cm.Runs.Put(ctx, &cache.RunStatus{
			RunID:      runID,
			State:      cache.RunStateCompleted,
			Window:     "2025-03..2025-03",
			DocumentID: &docID,
			UpdatedAt:  time.Now().UTC(),
		}))

		status, err := cm.Runs.Get(ctx, runID)
		require.NoError(t, err)
		require.NotNil(t, status)
		assert.Equal(t, cache.RunStateCompleted, status.State)
		require.NotNil(t, status.DocumentID)
		assert.Equal(t, docID, *status.DocumentID)
	})

	t.Run("RateLimiterWindow", func(t *testing.T) {
		key := "integration:limits:" + uuid.NewString()

		for i := 0; i < 5; i++ {
			allowed, err := cm.RateLimiter.Allow(ctx, key, 5, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d inside the limit", i)
		}

		allowed, err := cm.RateLimiter.Allow(ctx, key, 5, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed, "sixth request exceeds the limit")

		count, err := cm.RateLimiter.Count(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 5)

		require.NoError(t, cm.RateLimiter.Reset(ctx, key))

		allowed, err = cm.RateLimiter.Allow(ctx, key, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "counter cleared after reset")
	})
}
