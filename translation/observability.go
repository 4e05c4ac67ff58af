package translation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/doctranslate/translation"

// tracing 持有流水线的 span 与 OTel 计数器.
// 未配置全局 provider 时 otel 返回 noop 实现.
type tracing struct {
	tracer trace.Tracer
	chunks metric.Int64Counter
	calls  metric.Int64Counter
}

func newTracing() *tracing {
	meter := otel.Meter(instrumentationName)
	t := &tracing{tracer: otel.Tracer(instrumentationName)}

	var err error
	t.chunks, err = meter.Int64Counter("doctranslate.chunks",
		metric.WithDescription("Chunks produced by the chunker"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		otel.Handle(err)
	}
	t.calls, err = meter.Int64Counter("doctranslate.backend.calls",
		metric.WithDescription("Backend translation calls"),
		metric.WithUnit("{call}"))
	if err != nil {
		otel.Handle(err)
	}
	return t
}

func (t *tracing) start(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "translation."+stage, trace.WithAttributes(attrs...))
}

func (t *tracing) addChunks(ctx context.Context, n int) {
	if t.chunks != nil {
		t.chunks.Add(ctx, int64(n))
	}
}

func (t *tracing) addCall(ctx context.Context, succeeded bool) {
	if t.calls != nil {
		t.calls.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", succeeded)))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
