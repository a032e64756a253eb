// Package capture runs the voice segmentation loop: it drains captured frames,
// classifies them, tracks voiced and silent time and hands finished utterances
// to a callback. Pause and Resume let a playback component keep the loop from
// hearing its own output.
package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/NicolasHaas/earshot/pkg/audio"
	"github.com/NicolasHaas/earshot/pkg/observe"
)

const (
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultEnergyLogEvery = 10
)

// SegmentHandler receives each finished segment on the capture goroutine.
// It must return promptly: capture stalls while it runs.
type SegmentHandler func(audio.Segment)

// FrameDrainer is the consumer side of the hand-off queue.
type FrameDrainer interface {
	Drain() (audio.Frame, bool)
}

// statusReporter is implemented by sources that track driver overruns.
type statusReporter interface {
	ReportStatus(log *slog.Logger) (overflows, underflows int64)
}

// Detector classifies a frame as voiced.
type Detector interface {
	IsVoice(f audio.Frame) bool
}

// Options configures a Controller. Zero values pick defaults.
type Options struct {
	Source         FrameDrainer
	Detector       Detector
	Segmenter      SegmenterConfig
	Clock          Clock
	CanonicalRate  int
	PollInterval   time.Duration
	EnergyLogEvery int
	Handler        SegmentHandler
	Metrics        *observe.Metrics
	Logger         *slog.Logger
}

// Controller owns the consumer loop.
type Controller struct {
	source        FrameDrainer
	detector      Detector
	seg           *Segmenter
	clock         Clock
	canonicalRate int
	poll          time.Duration
	energyEvery   int
	handler       SegmentHandler
	metrics       *observe.Metrics
	log           *slog.Logger

	paused     atomic.Bool
	frameCount int

	// consumer goroutine only
	lastNow time.Time
	dropped bool
}

// NewController builds a controller from opts.
func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		source:        opts.Source,
		detector:      opts.Detector,
		clock:         opts.Clock,
		canonicalRate: opts.CanonicalRate,
		poll:          opts.PollInterval,
		energyEvery:   opts.EnergyLogEvery,
		handler:       opts.Handler,
		metrics:       opts.Metrics,
		log:           log,
	}
	if c.detector == nil {
		c.detector = audio.NewEnergyVAD(audio.DefaultVADThreshold)
	}
	if c.clock == nil {
		c.clock = WallClock{}
	}
	if c.canonicalRate <= 0 {
		c.canonicalRate = audio.CanonicalRate
	}
	if c.poll <= 0 {
		c.poll = DefaultPollInterval
	}
	if c.energyEvery <= 0 {
		c.energyEvery = DefaultEnergyLogEvery
	}
	c.seg = NewSegmenter(opts.Segmenter, log)
	return c
}

// Pause stops frames from reaching the segmenter. Safe from any goroutine.
func (c *Controller) Pause() {
	if !c.paused.Swap(true) {
		c.log.Info("audio capture paused")
	}
}

// Resume undoes Pause. Safe from any goroutine.
func (c *Controller) Resume() {
	if c.paused.Swap(false) {
		c.log.Info("audio capture resumed")
	}
}

// Paused reports whether capture is paused.
func (c *Controller) Paused() bool { return c.paused.Load() }

// Segmenter exposes the state machine for inspection.
func (c *Controller) Segmenter() *Segmenter { return c.seg }

// Step runs one poll iteration. It returns false when no audio was available.
func (c *Controller) Step() bool {
	f, ok := c.source.Drain()
	if !ok {
		return false
	}
	if r, ok := c.source.(statusReporter); ok {
		c.metrics.DriverStatus(r.ReportStatus(c.log))
	}

	// Dropped outright: neither the buffer nor the timers move.
	if c.paused.Load() {
		c.metrics.FramesDropped(f.Frames())
		c.dropped = true
		return true
	}

	now := c.clock.Advance(f)
	if c.dropped && !c.lastNow.IsZero() {
		// A clock that kept running through the pause must not close the
		// utterance on that time.
		c.seg.Shift(now.Sub(c.lastNow) - f.Duration())
	}
	c.dropped = false
	c.lastNow = now
	energy := audio.Energy(f.Samples)
	voiced := c.detector.IsVoice(f)

	c.frameCount++
	if c.frameCount%c.energyEvery == 0 {
		c.log.Debug("energy", "energy", energy, "state", c.seg.State().String())
	}
	if voiced && c.seg.State() == Idle {
		c.log.Info("voice detected", "energy", energy)
	}

	raw, outcome := c.seg.Feed(f, voiced, now)
	switch outcome {
	case TooShort:
		c.metrics.SegmentDiscarded()
	case Emitted:
		c.emit(raw, now)
	}
	return true
}

func (c *Controller) emit(raw audio.Frame, now time.Time) {
	start := time.Now()
	samples := audio.Preprocess(raw, c.canonicalRate)
	took := time.Since(start)
	c.log.Debug("preprocessing done", "took", took.String(), "source_rate", raw.SampleRate)

	seg := audio.NewSegment(samples, c.canonicalRate, now)
	c.metrics.SegmentEmitted(seg.Duration, took)
	if c.handler == nil {
		return
	}
	c.deliver(seg)
}

// deliver isolates the loop from handler panics.
func (c *Controller) deliver(seg audio.Segment) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("segment handler panicked", "segment", seg.ID, "panic", r)
		}
	}()
	c.handler(seg)
}

// Run polls until ctx is done. Any partially captured utterance is discarded
// on return.
func (c *Controller) Run(ctx context.Context) error {
	defer c.seg.Reset()

	timer := time.NewTimer(c.poll)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.Step() {
			continue
		}
		timer.Reset(c.poll)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
