package audio

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalRate is the sample rate every delivered Segment is resampled to.
const CanonicalRate = 16000

// Frame is one or more driver blocks of interleaved float32 samples.
type Frame struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of per-channel samples in f.
func (f Frame) Frames() int {
	if f.Channels <= 1 {
		return len(f.Samples)
	}
	return len(f.Samples) / f.Channels
}

// Duration returns the playback length of f, computed from integer sample counts.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(f.Frames(), f.SampleRate)
}

// SamplesDuration converts a per-channel sample count at rate into a duration.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Concat joins frames that share channel count and sample rate into one Frame.
func Concat(frames []Frame) Frame {
	if len(frames) == 0 {
		return Frame{}
	}
	if len(frames) == 1 {
		return frames[0]
	}
	total := 0
	for _, f := range frames {
		total += len(f.Samples)
	}
	out := Frame{
		Samples:    make([]float32, 0, total),
		Channels:   frames[0].Channels,
		SampleRate: frames[0].SampleRate,
	}
	for _, f := range frames {
		out.Samples = append(out.Samples, f.Samples...)
	}
	return out
}

// Segment is a finished utterance: mono, normalized and at the canonical rate.
// Ownership passes to the receiver on delivery.
type Segment struct {
	ID         string
	Samples    []float32
	SampleRate int
	Duration   time.Duration
	CapturedAt time.Time
}

// NewSegment wraps preprocessed mono samples into a Segment with a fresh ID.
func NewSegment(samples []float32, rate int, capturedAt time.Time) Segment {
	return Segment{
		ID:         uuid.NewString(),
		Samples:    samples,
		SampleRate: rate,
		Duration:   SamplesDuration(len(samples), rate),
		CapturedAt: capturedAt,
	}
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
