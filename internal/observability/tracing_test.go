package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.ServiceName != "bigsmall" {
		t.Fatalf("expected service name 'bigsmall', got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}
}

func TestSampler(t *testing.T) {
	if sampler(1).Description() != sdktrace.AlwaysSample().Description() {
		t.Error("rate 1 should always sample")
	}
	if sampler(0).Description() != sdktrace.NeverSample().Description() {
		t.Error("rate 0 should never sample")
	}
	if !strings.Contains(sampler(0.25).Description(), "TraceIDRatioBased") {
		t.Errorf("unexpected sampler %s", sampler(0.25).Description())
	}
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStageSpans_Recorded(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := NewProvider(sdktrace.AlwaysSample(), sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	ctx, run := StartRunSpan(context.Background(), "gut", 1000, "combined_log")
	_, stage := StartStageSpan(ctx, StageNetwork)
	RecordNetwork(stage, 10, 20, 45, 1, 2)
	stage.End()

	_, sim := StartStageSpan(ctx, StageSimulate)
	RecordSimulation(sim, 1000, 4, 42)
	RecordError(sim, errors.New("sampling failed"))
	sim.End()
	run.End()

	spans := rec.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].Name() != "stage.network" {
		t.Errorf("unexpected span name %s", spans[0].Name())
	}
	if v, ok := attrValue(spans[0].Attributes(), "network.edges"); !ok || v.AsInt64() != 45 {
		t.Errorf("network.edges = %v", v)
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("expected error status on simulate span, got %v", spans[1].Status())
	}
	if spans[0].Parent().SpanID() != spans[2].SpanContext().SpanID() {
		t.Error("stage span should be a child of the run span")
	}
	if v, ok := attrValue(spans[2].Attributes(), "bigsmall.run.name"); !ok || v.AsString() != "gut" {
		t.Errorf("run name = %v", v)
	}
}

func TestRecordError_Nil(t *testing.T) {
	_, span := StartStageSpan(context.Background(), StageScore)
	RecordError(span, nil)
	RecordScores(span, 3, 0)
	span.End()
}

func TestTracerProvider_Shutdown_NilProvider(t *testing.T) {
	tp := &TracerProvider{}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil error for nil provider, got: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("omitting unmapped id", "id", "K1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warning, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if rec["id"] != "K1" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewLogger_Errors(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger(LogConfig{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "": slog.LevelInfo, "WARNING": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}
