// Package tracing provides OpenTelemetry tracing support for the resource
// data layer.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the name of the tracer used by this package.
const TracerName = "github.com/malekhnovich/refine"

// Span names.
const (
	SpanNameGetOne       = "refine.get_one"
	SpanNameProviderCall = "refine.provider.get_one"
)

// Attribute keys.
const (
	AttrResource   = "refine.resource"
	AttrIdentifier = "refine.resource_identifier"
	AttrProvider   = "refine.provider"
	AttrRecordID   = "refine.record_id"
	AttrCacheKey   = "refine.cache_key"
)

// Tracer wraps the OpenTelemetry tracer with convenience methods.
type Tracer struct {
	tracer  trace.Tracer
	enabled bool
}

// NewTracer creates a Tracer. If enabled is false, all operations use a noop
// tracer.
func NewTracer(enabled bool) *Tracer {
	var tracer trace.Tracer
	if enabled {
		tracer = otel.Tracer(TracerName)
	} else {
		tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	return &Tracer{tracer: tracer, enabled: enabled}
}

// IsEnabled returns whether tracing is enabled.
func (t *Tracer) IsEnabled() bool {
	return t.enabled
}

// StartGetOne starts a span covering one orchestrated single-record fetch.
func (t *Tracer) StartGetOne(ctx context.Context, resource, identifier, provider, id string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanNameGetOne,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrResource, resource),
			attribute.String(AttrIdentifier, identifier),
			attribute.String(AttrProvider, provider),
			attribute.String(AttrRecordID, id),
		),
	)
}

// StartProviderCall starts a span for the backend provider call.
func (t *Tracer) StartProviderCall(ctx context.Context, resource, provider, id, cacheKey string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanNameProviderCall,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrResource, resource),
			attribute.String(AttrProvider, provider),
			attribute.String(AttrRecordID, id),
			attribute.String(AttrCacheKey, cacheKey),
		),
	)
}

// EndSpan finishes a span, recording the error when the operation failed.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
