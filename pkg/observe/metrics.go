// Package observe provides OpenTelemetry metric instruments for the speech
// session engine. Metrics are recorded through the OTel Metrics API; a
// Prometheus exporter bridge is available via [InitProvider] so they can be
// scraped from the standard /metrics endpoint. All record methods are
// nil-receiver safe, so library code can carry an optional *Metrics without
// guarding every call site.
package observe

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/voxwire-ai/voxwire-session"

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics holds all metric instruments for the session engine. The
// underlying OTel types handle their own synchronisation.
type Metrics struct {
	// StateTransitions counts session state machine transitions. Attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// ForcedFinalizations counts timeout-driven finalizations. Attribute:
	//   attribute.String("source", ...)
	ForcedFinalizations metric.Int64Counter

	// BargeIns counts accepted barge-in interruptions.
	BargeIns metric.Int64Counter

	// Reconnects counts recognition backend reconnection attempts.
	Reconnects metric.Int64Counter

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ResponderDuration tracks response-text generation latency.
	ResponderDuration metric.Float64Histogram

	// SynthesisDuration tracks full playback duration per generate call.
	SynthesisDuration metric.Float64Histogram
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.StateTransitions, err = meter.Int64Counter("voxwire.session.transitions",
		metric.WithDescription("Session state machine transitions."),
	); err != nil {
		return nil, err
	}
	if m.ForcedFinalizations, err = meter.Int64Counter("voxwire.session.forced_finalizations",
		metric.WithDescription("Timeout-driven transcript finalizations."),
	); err != nil {
		return nil, err
	}
	if m.BargeIns, err = meter.Int64Counter("voxwire.session.barge_ins",
		metric.WithDescription("Accepted barge-in interruptions."),
	); err != nil {
		return nil, err
	}
	if m.Reconnects, err = meter.Int64Counter("voxwire.session.reconnects",
		metric.WithDescription("Recognition backend reconnection attempts."),
	); err != nil {
		return nil, err
	}
	if m.ActiveSessions, err = meter.Int64UpDownCounter("voxwire.session.active",
		metric.WithDescription("Live call sessions."),
	); err != nil {
		return nil, err
	}
	if m.ResponderDuration, err = meter.Float64Histogram("voxwire.responder.duration",
		metric.WithDescription("Latency of response-text generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.SynthesisDuration, err = meter.Float64Histogram("voxwire.synthesis.duration",
		metric.WithDescription("Duration of synthesis playback runs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// InitProvider builds an SDK meter provider backed by the Prometheus
// exporter and returns it together with an http.Handler serving /metrics.
func InitProvider() (*sdkmetric.MeterProvider, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return mp, promhttp.Handler(), nil
}

// RecordTransition records one state machine transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordForcedFinalization records one timeout firing.
func (m *Metrics) RecordForcedFinalization(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.ForcedFinalizations.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordBargeIn records one accepted barge-in.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.BargeIns.Add(ctx, 1)
}

// RecordReconnect records one recognition backend reconnection attempt.
func (m *Metrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.Reconnects.Add(ctx, 1)
}

// SessionStarted increments the live-session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the live-session gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// ObserveResponder records response generation latency in seconds.
func (m *Metrics) ObserveResponder(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.ResponderDuration.Record(ctx, seconds)
}

// ObserveSynthesis records playback duration in seconds.
func (m *Metrics) ObserveSynthesis(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Record(ctx, seconds)
}
