package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
	"github.com/serviceline/ticket-analytics-backend/internal/testutil/fixtures"
)

// Mock implementations

type MockRowSource struct {
	mock.Mock
}

func (m *MockRowSource) FetchWindow(ctx context.Context, w reporting.Window) (*reporting.RawRowSet, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.RawRowSet), args.Error(1)
}

type MockDocumentCache struct {
	mock.Mock
}

func (m *MockDocumentCache) GetByKey(ctx context.Context, key string) (*report.Document, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*report.Document), args.Error(1)
}

func (m *MockDocumentCache) GetByID(ctx context.Context, id uuid.UUID) (*report.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*report.Document), args.Error(1)
}

func (m *MockDocumentCache) Set(ctx context.Context, key string, doc *report.Document, ttl time.Duration) error {
	args := m.Called(ctx, key, doc, ttl)
	return args.Error(0)
}

type MockRunNotifier struct {
	mock.Mock
}

func (m *MockRunNotifier) RunStarted(runID uuid.UUID, w reporting.Window) {
	m.Called(runID, w)
}

func (m *MockRunNotifier) RunCompleted(runID uuid.UUID, doc *report.Document) {
	m.Called(runID, doc)
}

func (m *MockRunNotifier) RunFailed(runID uuid.UUID, err error) {
	m.Called(runID, err)
}

func serviceOptions() reporting.Options {
	return reporting.Options{
		Zone: time.UTC,
		Policies: ticket.SLAPolicySet{
			ticket.TypeIncident: {ResponseWithin: time.Hour, ResolveWithin: 8 * time.Hour},
		},
		TopN:     10,
		CacheTTL: time.Hour,
		Now:      func() time.Time { return time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC) },
	}
}

func marchRows(t *testing.T) *reporting.RawRowSet {
	t.Helper()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return fixtures.RowSet(
		fixtures.NewRowBuilder(t, "I-0001", base).RespondedAfter(10*time.Minute).ResolvedAfter(time.Hour).Build(),
		fixtures.NewRowBuilder(t, "I-0002", base).Build(),
	)
}

func TestGenerateReport(t *testing.T) {
	source := new(MockRowSource)
	cache := new(MockDocumentCache)
	notifier := new(MockRunNotifier)
	svc := reporting.NewService(source, cache, notifier, serviceOptions(), nil)

	source.On("FetchWindow", mock.Anything, mock.Anything).Return(marchRows(t), nil)
	cache.On("GetByKey", mock.Anything, mock.Anything).Return(nil, errors.ErrReportNotFound)
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything, time.Hour).Return(nil)
	notifier.On("RunStarted", mock.Anything, mock.Anything).Return()
	notifier.On("RunCompleted", mock.Anything, mock.Anything).Return()

	doc, err := svc.GenerateReport(context.Background(), &reporting.ReportRequest{
		Start: "2025-03", End: "2025-03",
	})

	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 2, doc.TotalTickets)
	assert.False(t, doc.EmptyRange)
	assert.Len(t, doc.Sections, 7)
	source.AssertExpectations(t)
	cache.AssertExpectations(t)
	notifier.AssertExpectations(t)
	notifier.AssertNotCalled(t, "RunFailed", mock.Anything, mock.Anything)
}

func TestGenerateReportCacheHit(t *testing.T) {
	source := new(MockRowSource)
	cache := new(MockDocumentCache)
	svc := reporting.NewService(source, cache, nil, serviceOptions(), nil)

	cached := &report.Document{ID: uuid.New(), Title: "cached"}
	cache.On("GetByKey", mock.Anything, mock.Anything).Return(cached, nil)

	doc, err := svc.GenerateReport(context.Background(), &reporting.ReportRequest{
		Start: "2025-03", End: "2025-03",
	})

	require.NoError(t, err)
	assert.Same(t, cached, doc)
	source.AssertNotCalled(t, "FetchWindow", mock.Anything, mock.Anything)
}

func TestGenerateReportForceRefreshSkipsCache(t *testing.T) {
	source := new(MockRowSource)
	cache := new(MockDocumentCache)
	svc := reporting.NewService(source, cache, nil, serviceOptions(), nil)

	source.On("FetchWindow", mock.Anything, mock.Anything).Return(marchRows(t), nil)
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	doc, err := svc.GenerateReport(context.Background(), &reporting.ReportRequest{
		Start: "2025-03", End: "2025-03", ForceRefresh: true,
	})

	require.NoError(t, err)
	require.NotNil(t, doc)
	cache.AssertNotCalled(t, "GetByKey", mock.Anything, mock.Anything)
}

func TestGenerateReportValidation(t *testing.T) {
	svc := reporting.NewService(new(MockRowSource), nil, nil, serviceOptions(), nil)

	tests := []struct {
		name string
		req  *reporting.ReportRequest
	}{
		{name: "nil request"},
		{name: "malformed month", req: &reporting.ReportRequest{Start: "March", End: "2025-03"}},
		{name: "inverted window", req: &reporting.ReportRequest{Start: "2025-04", End: "2025-03"}},
		{name: "window too wide", req: &reporting.ReportRequest{Start: "2020-01", End: "2025-03"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := svc.GenerateReport(context.Background(), tt.req)

			assert.Nil(t, doc)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestGenerateReportSourceFailure(t *testing.T) {
	source := new(MockRowSource)
	notifier := new(MockRunNotifier)
	svc := reporting.NewService(source, nil, notifier, serviceOptions(), nil)

	source.On("FetchWindow", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	notifier.On("RunStarted", mock.Anything, mock.Anything).Return()
	notifier.On("RunFailed", mock.Anything, mock.Anything).Return()

	doc, err := svc.GenerateReport(context.Background(), &reporting.ReportRequest{
		Start: "2025-03", End: "2025-03",
	})

	assert.Nil(t, doc)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExternal))
	notifier.AssertExpectations(t)
}

func TestGenerateReportEmptyRange(t *testing.T) {
	source := new(MockRowSource)
	notifier := new(MockRunNotifier)
	svc := reporting.NewService(source, nil, notifier, serviceOptions(), nil)

	source.On("FetchWindow", mock.Anything, mock.Anything).Return(fixtures.RowSet(), nil)
	notifier.On("RunStarted", mock.Anything, mock.Anything).Return()
	notifier.On("RunCompleted", mock.Anything, mock.Anything).Return()

	doc, err := svc.GenerateReport(context.Background(), &reporting.ReportRequest{
		Start: "2025-03", End: "2025-03",
	})

	// An empty window is a successful run with an all-zero document, never
	// a failure.
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.True(t, doc.EmptyRange)
	assert.Len(t, doc.Sections, 7)
	notifier.AssertCalled(t, "RunCompleted", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "RunFailed", mock.Anything, mock.Anything)
}

func TestGenerateReportCacheWriteFailureIsNonFatal(t *testing.T) {
	source := new(MockRowSource)
	cache := new(MockDocumentCache)
	svc := reporting.NewService(source, cache, nil, serviceOptions(), nil)

	source.On("FetchWindow", mock.Anything, mock.Anything).Return(marchRows(t), nil)
	cache.On("GetByKey", mock.Anything, mock.Anything).Return(nil, errors.ErrReportNotFound)
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	doc, err := svc.GenerateReport(context.Background(), &reporting.ReportRequest{
		Start: "2025-03", End: "2025-03",
	})

	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestGetAggregates(t *testing.T) {
	source := new(MockRowSource)
	svc := reporting.NewService(source, nil, nil, serviceOptions(), nil)

	source.On("FetchWindow", mock.Anything, mock.Anything).Return(marchRows(t), nil)

	result, err := svc.GetAggregates(context.Background(), &reporting.StatsRequest{
		Start: "2025-03", End: "2025-03", Dimension: "type",
	})

	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "incident", result.Groups[0].Key)
	assert.Equal(t, 2, result.Groups[0].Total)
}

func TestGetAggregatesInvalidDimension(t *testing.T) {
	svc := reporting.NewService(new(MockRowSource), nil, nil, serviceOptions(), nil)

	_, err := svc.GetAggregates(context.Background(), &reporting.StatsRequest{
		Start: "2025-03", End: "2025-03", Dimension: "severity",
	})

	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestGetTrend(t *testing.T) {
	source := new(MockRowSource)
	svc := reporting.NewService(source, nil, nil, serviceOptions(), nil)

	source.On("FetchWindow", mock.Anything, mock.Anything).Return(marchRows(t), nil)

	series, err := svc.GetTrend(context.Background(), &reporting.TrendRequest{
		Start: "2025-01", End: "2025-03", Metric: "volume",
	})

	require.NoError(t, err)
	require.Len(t, series.Points, 3)
	assert.Equal(t, 2.0, series.Points[2].Value)
}

func TestGetReport(t *testing.T) {
	cache := new(MockDocumentCache)
	svc := reporting.NewService(new(MockRowSource), cache, nil, serviceOptions(), nil)

	id := uuid.New()
	doc := &report.Document{ID: id}
	cache.On("GetByID", mock.Anything, id).Return(doc, nil)

	got, err := svc.GetReport(context.Background(), id)

	require.NoError(t, err)
	assert.Same(t, doc, got)

	_, err = svc.GetReport(context.Background(), uuid.Nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
