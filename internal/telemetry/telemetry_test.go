package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestInit_NoDirKeepsNoop(t *testing.T) {
	tracer, meter, cleanup, err := Init(context.Background(), "", slog.Default())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if tracer == nil || meter == nil || cleanup == nil {
		t.Fatalf("nil telemetry handles")
	}
	cleanup()
}

func TestInit_WritesTraceFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "otel")
	tracer, meter, cleanup, err := Init(context.Background(), dir, slog.Default())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := tracer.Start(context.Background(), "probe")
	span.End()
	counter, err := meter.Int64Counter("probe.count")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 1)
	cleanup()

	st, err := os.Stat(filepath.Join(dir, "traces.log"))
	if err != nil || st.Size() == 0 {
		t.Fatalf("trace file not written: %v", err)
	}
}
