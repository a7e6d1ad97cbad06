package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestCorrelationIDWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty without a span", got)
	}
}

func TestCorrelationIDIsHexTraceID(t *testing.T) {
	tp, _ := testTracerProvider(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("len = %d, want 32", len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q is not lowercase hex", cid)
	}
}

func TestStartSpanRecordsName(t *testing.T) {
	tp, exp := testTracerProvider(t)

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx, span := StartSpan(context.Background(), "graph.invoke")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan produced no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "graph.invoke" {
		t.Fatalf("spans = %+v, want one named graph.invoke", spans)
	}
}

func TestLoggerCarriesSpanIDs(t *testing.T) {
	tp, _ := testTracerProvider(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
	defer span.End()

	Logger(ctx).Info("with span")
	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing trace attrs: %q", out)
	}

	buf.Reset()
	Logger(context.Background()).Info("no span")
	if out := buf.String(); strings.Contains(out, "trace_id=") {
		t.Errorf("bare logger should not carry trace_id: %q", out)
	}
}
