package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/orbit-tracker/internal/logging"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"TRACKER_TRACING_ENABLED",
		"TRACKER_TRACING_EXPORTER",
		"TRACKER_TRACING_SERVICE_NAME",
		"TRACKER_TRACING_SAMPLE_RATIO",
		"TRACKER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg := TracingConfigFromEnv()
	if cfg.Enabled {
		t.Fatal("tracing should be disabled by default")
	}
	if cfg.Exporter != "stdout" || cfg.ServiceName != DefaultServiceName || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTracingConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("TRACKER_TRACING_ENABLED", "true")
	t.Setenv("TRACKER_TRACING_EXPORTER", "OTLP")
	t.Setenv("TRACKER_TRACING_SERVICE_NAME", "tracker-test")
	t.Setenv("TRACKER_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("TRACKER_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	want := TracingConfig{
		Enabled:     true,
		ServiceName: "tracker-test",
		Exporter:    "otlp",
		Endpoint:    "collector:4317",
		SampleRatio: 0.25,
	}
	if cfg != want {
		t.Fatalf("TracingConfigFromEnv = %+v, want %+v", cfg, want)
	}

	t.Setenv("TRACKER_TRACING_SAMPLE_RATIO", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("out-of-range ratio should fall back to 1, got %v", got)
	}
}

func TestInitTracingDisabledInstallsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatal("disabled tracing should produce non-recording spans")
	}
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "tracker-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Output:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "sampled")
	if !span.SpanContext().IsSampled() {
		t.Fatal("ratio 1 should sample every root span")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), `"sampled"`) || !strings.Contains(buf.String(), "tracker-test") {
		t.Fatalf("exported span missing from output: %s", buf.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
