package observer

import (
	"context"
	"fmt"
	"time"

	depth "github.com/irfansofyana/depth"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// unitSpanName is the span the engine opens around each research unit. The
// tracer keys unit metrics off it so unit counts and durations land in
// metrics without the engine depending on this package.
const unitSpanName = "research.unit"

// otelTracer implements depth.Tracer using OpenTelemetry. Spans named
// unitSpanName additionally feed the ResearchUnits counter and UnitDuration
// histogram on end.
type otelTracer struct {
	inner trace.Tracer
	inst  *Instruments
}

// NewTracer returns a depth.Tracer backed by the global OTEL TracerProvider.
// Call observer.Init() first to configure the provider; otherwise spans go to
// a no-op backend. inst may be nil, which disables unit metrics.
func NewTracer(inst *Instruments) depth.Tracer {
	return &otelTracer{inner: otel.Tracer(scopeName), inst: inst}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...depth.SpanAttr) (context.Context, depth.Span) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		otelAttrs[i] = toOTELAttr(a)
	}
	ctx, span := t.inner.Start(ctx, name, trace.WithAttributes(otelAttrs...))
	s := &otelSpan{inner: span}
	if name == unitSpanName && t.inst != nil {
		s.inst = t.inst
		s.ctx = ctx
		s.start = time.Now()
	}
	return ctx, s
}

// otelSpan implements depth.Span using an OTEL trace.Span. inst is non-nil
// only for research unit spans.
type otelSpan struct {
	inner  trace.Span
	inst   *Instruments
	ctx    context.Context
	start  time.Time
	failed bool
}

func (s *otelSpan) SetAttr(attrs ...depth.SpanAttr) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		otelAttrs[i] = toOTELAttr(a)
	}
	s.inner.SetAttributes(otelAttrs...)
}

func (s *otelSpan) Event(name string, attrs ...depth.SpanAttr) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		otelAttrs[i] = toOTELAttr(a)
	}
	s.inner.AddEvent(name, trace.WithAttributes(otelAttrs...))
}

func (s *otelSpan) Error(err error) {
	s.failed = true
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	if s.inst != nil {
		status := "ok"
		if s.failed {
			status = "error"
		}
		s.inst.ResearchUnits.Add(s.ctx, 1, metric.WithAttributes(
			attribute.String("status", status),
		))
		s.inst.UnitDuration.Record(s.ctx, float64(time.Since(s.start).Milliseconds()))
	}
	s.inner.End()
}

// toOTELAttr converts a depth.SpanAttr to an OTEL attribute.KeyValue.
func toOTELAttr(a depth.SpanAttr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case float64:
		return attribute.Float64(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	default:
		return attribute.String(a.Key, fmt.Sprintf("%v", v))
	}
}

// compile-time checks
var (
	_ depth.Tracer = (*otelTracer)(nil)
	_ depth.Span   = (*otelSpan)(nil)
)
