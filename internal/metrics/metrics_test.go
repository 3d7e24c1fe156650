package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewCreatesAllInstrumentsWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("New returned nil")
	}
}

func TestFallbackActivationsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFallbackActivation(ctx, "llm", 1)
	m.RecordFallbackActivation(ctx, "stt", 1)

	rm := collect(t, reader)
	met := findMetric(rm, "voxcore.fallback_activations")
	if met == nil {
		t.Fatal("voxcore.fallback_activations metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("expected fallback_activations to be a Sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Fatalf("expected 2 fallback activations recorded, got %d", total)
	}
}

func TestToolCallSuccessAndErrorGoToDifferentCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "get_weather", false)
	m.RecordToolCall(ctx, "get_weather", true)

	rm := collect(t, reader)

	calls := findMetric(rm, "voxcore.tool.calls")
	errs := findMetric(rm, "voxcore.tool.errors")
	if calls == nil || errs == nil {
		t.Fatal("expected both tool.calls and tool.errors metrics present")
	}

	callSum := calls.Data.(metricdata.Sum[int64])
	errSum := errs.Data.(metricdata.Sum[int64])
	if len(callSum.DataPoints) != 1 || callSum.DataPoints[0].Value != 1 {
		t.Fatalf("expected exactly 1 successful tool call, got %#v", callSum.DataPoints)
	}
	if len(errSum.DataPoints) != 1 || errSum.DataPoints[0].Value != 1 {
		t.Fatalf("expected exactly 1 tool error, got %#v", errSum.DataPoints)
	}
}

func TestTTFBHistogramsRecordSamples(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.STTTTFBMs.Record(ctx, 120)
	m.LLMTTFBMs.Record(ctx, 240)
	m.TTSTTFBMs.Record(ctx, 80)

	rm := collect(t, reader)
	for _, name := range []string{"voxcore.stt.ttfb_ms", "voxcore.llm.ttfb_ms", "voxcore.tts.ttfb_ms"} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
			t.Fatalf("metric %q expected one recorded sample", name)
		}
	}
}
