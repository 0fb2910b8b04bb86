package instrumentation

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/report"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/telemetry"
	"github.com/serviceline/ticket-analytics-backend/internal/metrics"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// ReportingTracedService wraps the reporting service with OpenTelemetry
// instrumentation. It satisfies the same interface, so callers wire it in
// transparently.
type ReportingTracedService struct {
	service reporting.Service
	tracer  telemetry.TracerInterface
	metrics *metrics.Registry
}

// NewReportingTracedService creates a new instrumented reporting service
func NewReportingTracedService(service reporting.Service, tracer telemetry.TracerInterface, metrics *metrics.Registry) *ReportingTracedService {
	return &ReportingTracedService{
		service: service,
		tracer:  tracer,
		metrics: metrics,
	}
}

// GenerateReport instruments the full report pipeline
func (s *ReportingTracedService) GenerateReport(ctx context.Context, req *reporting.ReportRequest) (*report.Document, error) {
	window := ""
	if req != nil {
		window = req.Start + ":" + req.End
	}
	ctx, span := telemetry.StartReportSpan(ctx, s.tracer, "generate", window)
	defer span.End()

	startTime := time.Now()
	doc, err := s.service.GenerateReport(ctx, req)
	duration := time.Since(startTime)

	if err != nil {
		s.tracer.RecordError(span, err, "Report generation failed")
		s.metrics.RecordReportRun(ctx, duration, window, false)
		var schemaErr *errors.SchemaError
		if stderrors.As(err, &schemaErr) {
			s.metrics.RecordSchemaError(ctx)
		}
		return nil, err
	}

	s.metrics.RecordReportRun(ctx, duration, window, true)
	s.metrics.RecordRunRows(ctx, int64(doc.TotalTickets), int64(doc.SkippedRows))
	s.tracer.SetAttributes(span, map[string]interface{}{
		"report.document_id":   doc.ID.String(),
		"report.total_tickets": doc.TotalTickets,
		"report.skipped_rows":  doc.SkippedRows,
		"report.empty_range":   doc.EmptyRange,
		"report.duration_ms":   duration.Milliseconds(),
	})
	s.tracer.AddEvent(span, "report_generated", map[string]interface{}{
		"report.document_id": doc.ID.String(),
		"report.duration_ms": duration.Milliseconds(),
	})

	return doc, nil
}

// GetReport instruments cached document lookups
func (s *ReportingTracedService) GetReport(ctx context.Context, id uuid.UUID) (*report.Document, error) {
	ctx, span := s.tracer.StartSpanWithAttributes(ctx, "reporting.GetReport", map[string]interface{}{
		"report.document_id": id.String(),
	})
	defer span.End()

	doc, err := s.service.GetReport(ctx, id)
	if err != nil {
		s.metrics.RecordCacheLookup(ctx, id.String(), false)
		s.tracer.RecordError(span, err, "Report lookup failed")
		return nil, err
	}

	s.metrics.RecordCacheLookup(ctx, id.String(), true)
	return doc, nil
}

// GetAggregates instruments on-demand aggregation
func (s *ReportingTracedService) GetAggregates(ctx context.Context, req *reporting.StatsRequest) (*reporting.AggregationResult, error) {
	attrs := map[string]interface{}{}
	if req != nil {
		attrs["stats.dimension"] = req.Dimension
		attrs["report.window"] = req.Start + ":" + req.End
	}
	ctx, span := s.tracer.StartSpanWithAttributes(ctx, "reporting.GetAggregates", attrs)
	defer span.End()

	result, err := s.service.GetAggregates(ctx, req)
	if err != nil {
		s.tracer.RecordError(span, err, "Aggregation failed")
		return nil, err
	}

	if result != nil {
		s.tracer.SetAttributes(span, map[string]interface{}{
			"stats.groups": len(result.Groups),
		})
	}
	return result, nil
}

// GetTrend instruments on-demand trend computation
func (s *ReportingTracedService) GetTrend(ctx context.Context, req *reporting.TrendRequest) (*reporting.TrendSeries, error) {
	attrs := map[string]interface{}{}
	if req != nil {
		attrs["trend.metric"] = req.Metric
		attrs["trend.category"] = req.Category
		attrs["report.window"] = req.Start + ":" + req.End
	}
	ctx, span := s.tracer.StartSpanWithAttributes(ctx, "reporting.GetTrend", attrs)
	defer span.End()

	series, err := s.service.GetTrend(ctx, req)
	if err != nil {
		s.tracer.RecordError(span, err, "Trend computation failed")
		return nil, err
	}

	if series != nil {
		s.tracer.SetAttributes(span, map[string]interface{}{
			"trend.points": len(series.Points),
		})
	}
	return series, nil
}
