// Package observe provides observability primitives for aurisync:
// OpenTelemetry metrics with a Prometheus exporter bridge, plus sink
// adapters that connect the pipeline packages to the instruments.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/aurisync/pkg/audio"
	"github.com/MrWong99/aurisync/pkg/audio/align"
)

// meterName is the instrumentation scope name used for all aurisync metrics.
const meterName = "github.com/MrWong99/aurisync"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// FramesAccumulated counts completed frames per stream. Use with
	// attribute.String("stream", ...).
	FramesAccumulated metric.Int64Counter

	// FramesDropped counts frames evicted from a full stream queue.
	// Use with attribute.String("stream", ...).
	FramesDropped metric.Int64Counter

	// AlignedFrames counts emitted aligned frames by match kind. Use
	// with attribute.String("match", ...).
	AlignedFrames metric.Int64Counter

	// AlignedDropped counts aligned frames evicted before retrieval.
	AlignedDropped metric.Int64Counter

	// AECSamples counts capture samples run through the canceller.
	AECSamples metric.Int64Counter

	// AECReferenceSamples counts far-end samples fed as reference.
	AECReferenceSamples metric.Int64Counter

	// --- Gauges ---

	// PendingFrames tracks aligned frames waiting for retrieval.
	PendingFrames metric.Int64Gauge

	// --- Histograms ---

	// AECDuration tracks per-block capture processing latency. The
	// budget is one hardware callback cycle, so buckets start well below
	// a millisecond.
	AECDuration metric.Float64Histogram

	// NearLevel and FarLevel track per-frame RMS levels in [0, 1].
	NearLevel metric.Float64Histogram
	FarLevel  metric.Float64Histogram
}

// aecBuckets defines histogram bucket boundaries (in seconds) sized for
// per-block processing that must finish within a hardware callback cycle.
var aecBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// levelBuckets defines histogram bucket boundaries for normalised RMS levels.
var levelBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesAccumulated, err = m.Int64Counter("aurisync.frames.accumulated",
		metric.WithDescription("Completed fixed-size frames by stream."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("aurisync.frames.dropped",
		metric.WithDescription("Frames evicted from a full stream queue, by stream."),
	); err != nil {
		return nil, err
	}
	if met.AlignedFrames, err = m.Int64Counter("aurisync.aligned.frames",
		metric.WithDescription("Aligned frames emitted, by match kind."),
	); err != nil {
		return nil, err
	}
	if met.AlignedDropped, err = m.Int64Counter("aurisync.aligned.dropped",
		metric.WithDescription("Aligned frames evicted before retrieval."),
	); err != nil {
		return nil, err
	}
	if met.AECSamples, err = m.Int64Counter("aurisync.aec.samples",
		metric.WithDescription("Capture samples run through the echo canceller."),
	); err != nil {
		return nil, err
	}
	if met.AECReferenceSamples, err = m.Int64Counter("aurisync.aec.reference.samples",
		metric.WithDescription("Far-end samples fed to the echo canceller as reference."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.PendingFrames, err = m.Int64Gauge("aurisync.pending.frames",
		metric.WithDescription("Aligned frames waiting for retrieval."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.AECDuration, err = m.Float64Histogram("aurisync.aec.duration",
		metric.WithDescription("Echo-canceller processing latency per capture block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(aecBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NearLevel, err = m.Float64Histogram("aurisync.level.near",
		metric.WithDescription("Per-frame RMS level of the near-end stream."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FarLevel, err = m.Float64Histogram("aurisync.level.far",
		metric.WithDescription("Per-frame RMS level of the far-end stream."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordLevels records the per-frame RMS levels of an aligned frame.
func (m *Metrics) RecordLevels(ctx context.Context, near, far float64) {
	m.NearLevel.Record(ctx, near)
	m.FarLevel.Record(ctx, far)
}

// RecordPending records the current aligned-frame backlog.
func (m *Metrics) RecordPending(ctx context.Context, n int) {
	m.PendingFrames.Record(ctx, int64(n))
}

// AlignSink adapts [Metrics] to the aligner's sink interface. The aligner
// calls it from the capture path, so every method is a single instrument
// operation with no allocation beyond the attribute set.
type AlignSink struct {
	m *Metrics
}

// NewAlignSink returns a sink recording into m.
func NewAlignSink(m *Metrics) *AlignSink {
	return &AlignSink{m: m}
}

func (s *AlignSink) FrameCompleted(tag audio.Tag) {
	s.m.FramesAccumulated.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("stream", tag.String())))
}

func (s *AlignSink) FrameDropped(tag audio.Tag) {
	s.m.FramesDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("stream", tag.String())))
}

func (s *AlignSink) AlignedEmitted(kind align.MatchKind) {
	s.m.AlignedFrames.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("match", kind.String())))
}

func (s *AlignSink) AlignedDropped() {
	s.m.AlignedDropped.Add(context.Background(), 1)
}

// AECSink adapts [Metrics] to the echo canceller's sink interface.
type AECSink struct {
	m *Metrics
}

// NewAECSink returns a sink recording into m.
func NewAECSink(m *Metrics) *AECSink {
	return &AECSink{m: m}
}

func (s *AECSink) ReferenceFed(samples int) {
	s.m.AECReferenceSamples.Add(context.Background(), int64(samples))
}

func (s *AECSink) CaptureProcessed(elapsed time.Duration, samples int) {
	ctx := context.Background()
	s.m.AECDuration.Record(ctx, elapsed.Seconds())
	s.m.AECSamples.Add(ctx, int64(samples))
}
