// Package observe provides application-wide observability for the Voco
// engine: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus through the exporter bridge registered by [InitProvider]. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a private
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/Radix-Obsidian/Voco-ai"

// Metrics holds all OpenTelemetry metric instruments for the engine. All
// fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per turn phase ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// GraphDuration tracks one reasoning-graph run (invoke or resume).
	GraphDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks turn-end to TTS-start, the user-perceived latency.
	TurnDuration metric.Float64Histogram

	// RPCDuration tracks client JSON-RPC round trips by method.
	RPCDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed turns. Attributes: model ("fast"/"full").
	Turns metric.Int64Counter

	// ToolCalls counts tool dispatches. Attributes: tool, class, status.
	ToolCalls metric.Int64Counter

	// BargeIns counts user interruptions during playback.
	BargeIns metric.Int64Counter

	// RPCTimeouts counts background RPCs the client never answered.
	RPCTimeouts metric.Int64Counter

	// UnknownReplies counts RPC replies with no registered future.
	UnknownReplies metric.Int64Counter

	// ProviderErrors counts model/STT/TTS provider failures. Attributes:
	// provider, kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks live WebSocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveJobs tracks in-flight background jobs across sessions.
	ActiveJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = m.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	gauge := func(name, desc string) metric.Int64UpDownCounter {
		if err != nil {
			return nil
		}
		var g metric.Int64UpDownCounter
		g, err = m.Int64UpDownCounter(name, metric.WithDescription(desc))
		return g
	}

	met.STTDuration = histogram("voco.stt.duration", "Latency of speech-to-text transcription.")
	met.GraphDuration = histogram("voco.graph.duration", "Latency of one reasoning-graph run.")
	met.TTSDuration = histogram("voco.tts.duration", "Latency of text-to-speech synthesis.")
	met.TurnDuration = histogram("voco.turn.duration", "Turn-end to TTS-start latency.")
	met.RPCDuration = histogram("voco.rpc.duration", "Client JSON-RPC round-trip latency by method.")

	met.Turns = counter("voco.turns", "Completed turns by routed model.")
	met.ToolCalls = counter("voco.tool.calls", "Tool dispatches by tool, class, and status.")
	met.BargeIns = counter("voco.barge_ins", "User interruptions during TTS playback.")
	met.RPCTimeouts = counter("voco.rpc.timeouts", "Background RPCs the client never answered.")
	met.UnknownReplies = counter("voco.rpc.unknown_replies", "RPC replies with no registered future.")
	met.ProviderErrors = counter("voco.provider.errors", "Provider failures by provider and kind.")

	met.ActiveSessions = gauge("voco.active_sessions", "Live WebSocket sessions.")
	met.ActiveJobs = gauge("voco.active_jobs", "In-flight background jobs.")

	if err == nil {
		met.HTTPRequestDuration, err = m.Float64Histogram("voco.http.request.duration",
			metric.WithDescription("HTTP request latency by method and path."),
			metric.WithUnit("s"),
		)
	}
	if err != nil {
		return nil, err
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records a tool dispatch with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, class, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("class", class),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records a completed turn for the routed model.
func (m *Metrics) RecordTurn(ctx context.Context, model string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}
