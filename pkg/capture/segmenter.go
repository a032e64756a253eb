package capture

import (
	"log/slog"
	"time"

	"github.com/NicolasHaas/earshot/pkg/audio"
)

const (
	DefaultSilenceThreshold = 800 * time.Millisecond
	DefaultMinDuration      = 500 * time.Millisecond
)

// State is the segmenter's position in the idle/voiced cycle.
type State int

const (
	Idle State = iota
	Voiced
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Voiced:
		return "voiced"
	default:
		return "unknown"
	}
}

// SegmenterConfig holds the timing thresholds.
type SegmenterConfig struct {
	// SilenceThreshold is how long after the last voiced frame a segment closes.
	SilenceThreshold time.Duration
	// MinDuration is the length a segment must strictly exceed to be emitted.
	MinDuration time.Duration
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.MinDuration <= 0 {
		c.MinDuration = DefaultMinDuration
	}
	return c
}

// Outcome describes what a Feed call did with the buffer.
type Outcome int

const (
	// Accumulating means the frame was buffered (or ignored while idle).
	Accumulating Outcome = iota
	// Emitted means a segment closed and passed the duration gate.
	Emitted
	// TooShort means a segment closed but was discarded by the duration gate.
	TooShort
)

// Segmenter turns a stream of classified frames into raw utterances. It is
// not safe for concurrent use; it lives on the consumer goroutine.
type Segmenter struct {
	cfg       SegmenterConfig
	log       *slog.Logger
	state     State
	onset     time.Time
	lastVoice time.Time
	buffer    []audio.Frame
	frames    int // per-channel samples buffered
}

// NewSegmenter creates a segmenter in the Idle state.
func NewSegmenter(cfg SegmenterConfig, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{cfg: cfg.withDefaults(), log: log}
}

// Feed advances the state machine by one frame observed at now. When a
// segment closes the buffer is concatenated and cleared; the raw frame is
// returned only for Emitted.
func (s *Segmenter) Feed(f audio.Frame, voiced bool, now time.Time) (audio.Frame, Outcome) {
	if voiced {
		if s.state == Idle {
			s.state = Voiced
			s.onset = now
		}
		s.lastVoice = now
	}
	if s.state == Idle {
		return audio.Frame{}, Accumulating
	}

	// Trailing silence is kept so word endings are not clipped.
	s.buffer = append(s.buffer, f)
	s.frames += f.Frames()

	if now.Sub(s.lastVoice) < s.cfg.SilenceThreshold {
		return audio.Frame{}, Accumulating
	}

	raw := audio.Concat(s.buffer)
	onset := s.onset
	s.reset()

	minFrames := int(int64(raw.SampleRate) * int64(s.cfg.MinDuration) / int64(time.Second))
	if raw.Frames() <= minFrames {
		s.log.Debug("audio too short, discarded",
			"duration", raw.Duration().String(), "min", s.cfg.MinDuration.String())
		return audio.Frame{}, TooShort
	}
	s.log.Info("captured audio", "duration", raw.Duration().String(), "span", now.Sub(onset).String())
	return raw, Emitted
}

// Reset discards any in-flight buffer and returns to Idle.
func (s *Segmenter) Reset() {
	if s.state != Idle {
		s.log.Debug("discarding in-flight audio", "duration", audio.SamplesDuration(s.frames, s.rate()).String())
	}
	s.reset()
}

func (s *Segmenter) reset() {
	s.state = Idle
	s.onset = time.Time{}
	s.lastVoice = time.Time{}
	s.buffer = nil
	s.frames = 0
}

func (s *Segmenter) rate() int {
	if len(s.buffer) == 0 {
		return 0
	}
	return s.buffer[0].SampleRate
}

// Shift moves the onset and last-voice timestamps forward by d, so time
// during which no frames were observed does not count as silence.
func (s *Segmenter) Shift(d time.Duration) {
	if s.state == Idle || d <= 0 {
		return
	}
	s.onset = s.onset.Add(d)
	s.lastVoice = s.lastVoice.Add(d)
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Buffered returns the number of per-channel samples accumulated so far.
func (s *Segmenter) Buffered() int { return s.frames }

// LastVoice returns the timestamp of the most recent voiced frame, zero when idle.
func (s *Segmenter) LastVoice() time.Time { return s.lastVoice }
