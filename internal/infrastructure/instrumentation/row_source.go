package instrumentation

import (
	"context"
	"time"

	"github.com/serviceline/ticket-analytics-backend/internal/metrics"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// MeteredRowSource wraps a ticket row source with fetch metrics. The
// engine keeps seeing the plain RowSource interface.
type MeteredRowSource struct {
	source  reporting.RowSource
	metrics *metrics.Registry
}

// NewMeteredRowSource creates an instrumented row source
func NewMeteredRowSource(source reporting.RowSource, m *metrics.Registry) *MeteredRowSource {
	return &MeteredRowSource{
		source:  source,
		metrics: m,
	}
}

// FetchWindow delegates to the wrapped source and records the fetch
// duration, outcome, and row count
func (s *MeteredRowSource) FetchWindow(ctx context.Context, w reporting.Window) (*reporting.RawRowSet, error) {
	start := time.Now()
	rows, err := s.source.FetchWindow(ctx, w)

	var fetched int64
	if rows != nil {
		fetched = int64(len(rows.Rows))
	}
	s.metrics.RecordSourceFetch(ctx, float64(time.Since(start).Milliseconds()), fetched, err)
	return rows, err
}
