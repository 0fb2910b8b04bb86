package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/values"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/cache"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/config"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

type mockReportingService struct {
	mock.Mock
}

func (m *mockReportingService) GenerateReport(ctx context.Context, req *reporting.ReportRequest) (*report.Document, error) {
	args := m.Called(ctx, req)
	if doc := args.Get(0); doc != nil {
		return doc.(*report.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReportingService) GetReport(ctx context.Context, id uuid.UUID) (*report.Document, error) {
	args := m.Called(ctx, id)
	if doc := args.Get(0); doc != nil {
		return doc.(*report.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReportingService) GetAggregates(ctx context.Context, req *reporting.StatsRequest) (*reporting.AggregationResult, error) {
	args := m.Called(ctx, req)
	if res := args.Get(0); res != nil {
		return res.(*reporting.AggregationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReportingService) GetTrend(ctx context.Context, req *reporting.TrendRequest) (*reporting.TrendSeries, error) {
	args := m.Called(ctx, req)
	if res := args.Get(0); res != nil {
		return res.(*reporting.TrendSeries), args.Error(1)
	}
	return nil, args.Error(1)
}

func testDocument(t *testing.T) *report.Document {
	t.Helper()
	march, err := values.ParseMonth("2025-03")
	require.NoError(t, err)
	return &report.Document{
		ID:           uuid.New(),
		Title:        "iTop 运维服务报表 (2025年3月)",
		RangeStart:   march,
		RangeEnd:     march,
		GeneratedAt:  time.Now().UTC(),
		TotalTickets: 42,
	}
}

func TestHandleGenerateReport(t *testing.T) {
	t.Run("returns generated document", func(t *testing.T) {
		svc := new(mockReportingService)
		doc := testDocument(t)
		svc.On("GenerateReport", mock.Anything, mock.MatchedBy(func(req *reporting.ReportRequest) bool {
			return req.Start == "2025-03" && req.End == "2025-03"
		})).Return(doc, nil)

		h := NewHandler(svc, nil, nil)
		body := bytes.NewBufferString(`{"start":"2025-03","end":"2025-03"}`)
		req := httptest.NewRequest(http.MethodPost, "/reports", body)
		rec := httptest.NewRecorder()

		h.handleGenerateReport(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "/api/v1/reports/"+doc.ID.String(), rec.Header().Get("Location"))

		var got report.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, doc.ID, got.ID)
		assert.Equal(t, doc.Title, got.Title)
		assert.Equal(t, 42, got.TotalTickets)
		svc.AssertExpectations(t)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		svc := new(mockReportingService)
		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/reports", bytes.NewBufferString(`{broken`))
		rec := httptest.NewRecorder()

		h.handleGenerateReport(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_JSON")
		svc.AssertNotCalled(t, "GenerateReport")
	})

	t.Run("rejects missing months", func(t *testing.T) {
		svc := new(mockReportingService)
		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/reports", bytes.NewBufferString(`{"start":"2025-03"}`))
		rec := httptest.NewRecorder()

		h.handleGenerateReport(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "GenerateReport")
	})

	t.Run("maps schema errors to 422", func(t *testing.T) {
		svc := new(mockReportingService)
		svc.On("GenerateReport", mock.Anything, mock.Anything).
			Return(nil, errors.NewSchemaError("created_at"))

		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/reports",
			bytes.NewBufferString(`{"start":"2025-01","end":"2025-03"}`))
		rec := httptest.NewRecorder()

		h.handleGenerateReport(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "SCHEMA_MISMATCH")
	})
}

func TestHandleGetReport(t *testing.T) {
	t.Run("returns cached document", func(t *testing.T) {
		svc := new(mockReportingService)
		doc := testDocument(t)
		svc.On("GetReport", mock.Anything, doc.ID).Return(doc, nil)

		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/reports/"+doc.ID.String(), nil)
		req.SetPathValue("id", doc.ID.String())
		rec := httptest.NewRecorder()

		h.handleGetReport(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects non-UUID id", func(t *testing.T) {
		svc := new(mockReportingService)
		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/reports/not-a-uuid", nil)
		req.SetPathValue("id", "not-a-uuid")
		rec := httptest.NewRecorder()

		h.handleGetReport(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "GetReport")
	})

	t.Run("unknown document returns 404", func(t *testing.T) {
		svc := new(mockReportingService)
		id := uuid.New()
		svc.On("GetReport", mock.Anything, id).Return(nil, errors.ErrReportNotFound)

		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/reports/"+id.String(), nil)
		req.SetPathValue("id", id.String())
		rec := httptest.NewRecorder()

		h.handleGetReport(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleGetStats(t *testing.T) {
	t.Run("passes query parameters through", func(t *testing.T) {
		svc := new(mockReportingService)
		svc.On("GetAggregates", mock.Anything, mock.MatchedBy(func(req *reporting.StatsRequest) bool {
			return req.Start == "2025-01" && req.End == "2025-03" && req.Dimension == "team"
		})).Return(&reporting.AggregationResult{}, nil)

		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodGet,
			"/tickets/stats?start=2025-01&end=2025-03&dimension=team", nil)
		rec := httptest.NewRecorder()

		h.handleGetStats(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects unknown dimension", func(t *testing.T) {
		svc := new(mockReportingService)
		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodGet,
			"/tickets/stats?start=2025-01&end=2025-03&dimension=color", nil)
		rec := httptest.NewRecorder()

		h.handleGetStats(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "GetAggregates")
	})
}

func TestHandleGetTrend(t *testing.T) {
	t.Run("category is optional", func(t *testing.T) {
		svc := new(mockReportingService)
		svc.On("GetTrend", mock.Anything, mock.MatchedBy(func(req *reporting.TrendRequest) bool {
			return req.Metric == "volume" && req.Category == ""
		})).Return(&reporting.TrendSeries{}, nil)

		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodGet,
			"/tickets/trend?start=2025-01&end=2025-03&metric=volume", nil)
		rec := httptest.NewRecorder()

		h.handleGetTrend(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects unknown metric", func(t *testing.T) {
		svc := new(mockReportingService)
		h := NewHandler(svc, nil, nil)
		req := httptest.NewRequest(http.MethodGet,
			"/tickets/trend?start=2025-01&end=2025-03&metric=velocity", nil)
		rec := httptest.NewRecorder()

		h.handleGetTrend(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "GetTrend")
	})
}

func TestHandleGetRun(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c, err := cache.NewRedisCache(&config.RedisConfig{URL: mr.Addr(), DialTimeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	runs := cache.NewRunStatusStore(c)

	t.Run("returns stored run status", func(t *testing.T) {
		runID := uuid.New()
		require.NoError(t, runs.Put(context.Background(), &cache.RunStatus{
			RunID:     runID,
			State:     cache.RunStateCompleted,
			Window:    "2025-03:2025-03:UTC",
			UpdatedAt: time.Now().UTC(),
		}))

		h := NewHandler(new(mockReportingService), runs, nil)
		req := httptest.NewRequest(http.MethodGet, "/runs/"+runID.String(), nil)
		req.SetPathValue("id", runID.String())
		rec := httptest.NewRecorder()

		h.handleGetRun(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var got cache.RunStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, runID, got.RunID)
		assert.Equal(t, cache.RunStateCompleted, got.State)
	})

	t.Run("unknown run returns 404", func(t *testing.T) {
		h := NewHandler(new(mockReportingService), runs, nil)
		id := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/runs/"+id.String(), nil)
		req.SetPathValue("id", id.String())
		rec := httptest.NewRecorder()

		h.handleGetRun(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("nil store returns 404", func(t *testing.T) {
		h := NewHandler(new(mockReportingService), nil, nil)
		id := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/runs/"+id.String(), nil)
		req.SetPathValue("id", id.String())
		rec := httptest.NewRecorder()

		h.handleGetRun(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
