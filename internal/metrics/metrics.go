// Package metrics implements spec §4 component C13 (Metrics/Reporter) and
// the operational-environment metric names from spec §6:
// *_ttfb_ms, *_total_ms, fallback_activations, queue_depth,
// interrupt_latency_ms.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/room4-2/voxcore"

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Metrics holds every OpenTelemetry instrument the pipeline records into. It
// is per-process (not per-call): instruments carry port, candidate_index or
// tool attributes where a breakdown matters, and none carries a per-call
// attribute.
type Metrics struct {
	STTTTFBMs   metric.Float64Histogram
	LLMTTFBMs   metric.Float64Histogram
	TTSTTFBMs   metric.Float64Histogram
	TurnTotalMs metric.Float64Histogram

	FallbackActivations metric.Int64Counter
	InterruptLatencyMs  metric.Float64Histogram
	QueueDepth          metric.Int64Histogram

	ActiveSessions metric.Int64UpDownCounter
	ToolCalls      metric.Int64Counter
	ToolErrors     metric.Int64Counter
}

// New builds a Metrics instance from mp. Returns an error if any instrument
// creation fails.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.STTTTFBMs, err = m.Float64Histogram("voxcore.stt.ttfb_ms",
		metric.WithDescription("Time to first STT partial transcript."),
		metric.WithUnit("ms"), metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMTTFBMs, err = m.Float64Histogram("voxcore.llm.ttfb_ms",
		metric.WithDescription("Time to first LLM chunk."),
		metric.WithUnit("ms"), metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSTTFBMs, err = m.Float64Histogram("voxcore.tts.ttfb_ms",
		metric.WithDescription("Time to first synthesized audio frame."),
		metric.WithUnit("ms"), metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnTotalMs, err = m.Float64Histogram("voxcore.turn.total_ms",
		metric.WithDescription("End-to-end turn latency, user-stopped-speaking to TTSEnd."),
		metric.WithUnit("ms"), metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FallbackActivations, err = m.Int64Counter("voxcore.fallback_activations",
		metric.WithDescription("Times a fallback provider was activated in place of the primary."),
	); err != nil {
		return nil, err
	}
	if met.InterruptLatencyMs, err = m.Float64Histogram("voxcore.interrupt_latency_ms",
		metric.WithDescription("Wall time from control-channel publish to observed effect."),
		metric.WithUnit("ms"), metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64Histogram("voxcore.queue_depth",
		metric.WithDescription("Observed depth of a pipeline hop's bounded queue."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxcore.active_sessions",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voxcore.tool.calls",
		metric.WithDescription("Total tool invocations."),
	); err != nil {
		return nil, err
	}
	if met.ToolErrors, err = m.Int64Counter("voxcore.tool.errors",
		metric.WithDescription("Total tool invocation errors."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level Metrics instance built against the
// global OTel meter provider, creating it on first call.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = New(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default instruments: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFallbackActivation increments FallbackActivations with the port kind
// and the index of the candidate that was activated.
func (m *Metrics) RecordFallbackActivation(ctx context.Context, port string, toIndex int) {
	m.FallbackActivations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("port", port),
		attribute.Int("candidate_index", toIndex),
	))
}

// RecordToolCall records a tool invocation outcome.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, err bool) {
	if err {
		m.ToolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
		return
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}
