package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerInterface is the span surface the reporting decorators use. It
// keeps attribute maps in plain Go types so callers never touch the
// attribute package directly.
type TracerInterface interface {
	// StartSpan starts a new span with the given name
	StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// StartSpanWithAttributes starts a new span carrying initial attributes
	StartSpanWithAttributes(ctx context.Context, spanName string, attrs map[string]interface{}, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// RecordError records an error on the span and marks it failed
	RecordError(span trace.Span, err error, description string)

	// AddEvent adds an event to the span
	AddEvent(span trace.Span, name string, attrs map[string]interface{})

	// SetAttributes sets attributes on a span
	SetAttributes(span trace.Span, attrs map[string]interface{})
}

// OpenTelemetryTracer implements TracerInterface using OpenTelemetry
type OpenTelemetryTracer struct {
	tracer trace.Tracer
	name   string
}

// NewOpenTelemetryTracer creates a new OpenTelemetry tracer
func NewOpenTelemetryTracer(name string) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{
		tracer: otel.Tracer(name),
		name:   name,
	}
}

// StartSpan starts a new span with the given name
func (t *OpenTelemetryTracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartSpanWithAttributes starts a new span carrying initial attributes
func (t *OpenTelemetryTracer) StartSpanWithAttributes(ctx context.Context, spanName string, attrs map[string]interface{}, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	allOpts := append(opts, trace.WithAttributes(convertAttributes(attrs)...))
	return t.tracer.Start(ctx, spanName, allOpts...)
}

// RecordError records an error on the span and marks it failed
func (t *OpenTelemetryTracer) RecordError(span trace.Span, err error, description string) {
	if err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.description", description),
	))
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds an event to the span
func (t *OpenTelemetryTracer) AddEvent(span trace.Span, name string, attrs map[string]interface{}) {
	span.AddEvent(name, trace.WithAttributes(convertAttributes(attrs)...))
}

// SetAttributes sets attributes on a span
func (t *OpenTelemetryTracer) SetAttributes(span trace.Span, attrs map[string]interface{}) {
	span.SetAttributes(convertAttributes(attrs)...)
}

// convertAttributes maps the scalar types the reporting spans use onto
// OpenTelemetry attributes; anything else is stringified.
func convertAttributes(attrs map[string]interface{}) []attribute.KeyValue {
	result := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			result = append(result, attribute.String(k, val))
		case int:
			result = append(result, attribute.Int(k, val))
		case int64:
			result = append(result, attribute.Int64(k, val))
		case float64:
			result = append(result, attribute.Float64(k, val))
		case bool:
			result = append(result, attribute.Bool(k, val))
		default:
			result = append(result, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return result
}

// StartReportSpan starts a span for one report pipeline stage
func StartReportSpan(ctx context.Context, tracer TracerInterface, stage, window string) (context.Context, trace.Span) {
	return tracer.StartSpanWithAttributes(ctx, fmt.Sprintf("report.%s", stage), map[string]interface{}{
		"report.stage":  stage,
		"report.window": window,
		"span.kind":     "internal",
		"component":     "reporting",
	})
}
