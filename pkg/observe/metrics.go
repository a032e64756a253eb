// Package observe wires capture metrics into OpenTelemetry, exposes them for
// Prometheus scraping and logs a periodic summary.
//
// Instruments are created from a [metric.MeterProvider]; tests pass their own
// provider backed by a ManualReader. A nil *Metrics is valid everywhere and
// records nothing.
package observe

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/NicolasHaas/earshot"

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var durationBuckets = []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30}

// Metrics holds the capture pipeline instruments plus lock-free totals used
// for the periodic log line.
type Metrics struct {
	startTime time.Time

	segmentsEmitted   metric.Int64Counter
	segmentsDiscarded metric.Int64Counter
	framesDropped     metric.Int64Counter
	driverStatus      metric.Int64Counter
	segmentDuration   metric.Float64Histogram
	preprocessLatency metric.Float64Histogram
	recognizeLatency  metric.Float64Histogram
	recognizeErrors   metric.Int64Counter

	// totals mirrored for LogSummary
	Emitted     atomic.Int64
	Discarded   atomic.Int64
	Dropped     atomic.Int64
	Overflows   atomic.Int64
	Underflows  atomic.Int64
	Transcribed atomic.Int64
	Failed      atomic.Int64
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{startTime: time.Now()}
	var err error

	if met.segmentsEmitted, err = m.Int64Counter("earshot.segments.emitted",
		metric.WithDescription("Utterance segments delivered to the handler.")); err != nil {
		return nil, err
	}
	if met.segmentsDiscarded, err = m.Int64Counter("earshot.segments.discarded",
		metric.WithDescription("Candidate segments dropped by the minimum duration gate.")); err != nil {
		return nil, err
	}
	if met.framesDropped, err = m.Int64Counter("earshot.frames.dropped",
		metric.WithDescription("Frames discarded while capture was paused.")); err != nil {
		return nil, err
	}
	if met.driverStatus, err = m.Int64Counter("earshot.driver.status",
		metric.WithDescription("Driver input overflow/underflow reports.")); err != nil {
		return nil, err
	}
	if met.segmentDuration, err = m.Float64Histogram("earshot.segment.duration",
		metric.WithDescription("Duration of delivered segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if met.preprocessLatency, err = m.Float64Histogram("earshot.preprocess.duration",
		metric.WithDescription("Time spent normalizing and resampling a segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.recognizeLatency, err = m.Float64Histogram("earshot.recognize.duration",
		metric.WithDescription("Latency of the speech recognizer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.recognizeErrors, err = m.Int64Counter("earshot.recognize.errors",
		metric.WithDescription("Recognizer failures.")); err != nil {
		return nil, err
	}
	return met, nil
}

// SegmentEmitted records a delivered segment.
func (m *Metrics) SegmentEmitted(d time.Duration, preprocess time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.Emitted.Add(1)
	m.segmentsEmitted.Add(ctx, 1)
	m.segmentDuration.Record(ctx, d.Seconds())
	m.preprocessLatency.Record(ctx, preprocess.Seconds())
}

// SegmentDiscarded records a candidate rejected as too short.
func (m *Metrics) SegmentDiscarded() {
	if m == nil {
		return
	}
	m.Discarded.Add(1)
	m.segmentsDiscarded.Add(context.Background(), 1)
}

// FramesDropped records frames skipped while paused.
func (m *Metrics) FramesDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Dropped.Add(int64(n))
	m.framesDropped.Add(context.Background(), int64(n))
}

// DriverStatus records newly reported overflows and underflows.
func (m *Metrics) DriverStatus(overflows, underflows int64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	if overflows > 0 {
		m.Overflows.Add(overflows)
		m.driverStatus.Add(ctx, overflows, metric.WithAttributes(attribute.String("kind", "overflow")))
	}
	if underflows > 0 {
		m.Underflows.Add(underflows)
		m.driverStatus.Add(ctx, underflows, metric.WithAttributes(attribute.String("kind", "underflow")))
	}
}

// Recognized records one recognizer call for backend.
func (m *Metrics) Recognized(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	m.recognizeLatency.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.Failed.Add(1)
		m.recognizeErrors.Add(ctx, 1, attrs)
		return
	}
	m.Transcribed.Add(1)
}

// LogSummary writes the running totals to the default logger.
func (m *Metrics) LogSummary() {
	if m == nil {
		return
	}
	slog.Info("metrics",
		"uptime", time.Since(m.startTime).Truncate(time.Second).String(),
		"segments", m.Emitted.Load(),
		"discarded", m.Discarded.Load(),
		"dropped_frames", m.Dropped.Load(),
		"overflows", m.Overflows.Load(),
		"recognized", m.Transcribed.Load(),
		"recognize_failed", m.Failed.Load(),
	)
}

// StartPeriodicLog logs a summary every interval until ctx is done.
func (m *Metrics) StartPeriodicLog(ctx context.Context, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
