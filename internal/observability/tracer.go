package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for conduit spans.
var (
	AttrAction     = attribute.Key("conduit.action")
	AttrRequestID  = attribute.Key("conduit.request_id")
	AttrCallerID   = attribute.Key("conduit.caller_id")
	AttrStatus     = attribute.Key("conduit.status")
	AttrErrorCode  = attribute.Key("conduit.error_code")
	AttrDurationMs = attribute.Key("conduit.duration_ms")
	AttrCacheHit   = attribute.Key("conduit.cache_hit")
)

// StartSpan creates an internal span with the given attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError marks the span as errored.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
