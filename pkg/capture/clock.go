package capture

import (
	"time"

	"github.com/NicolasHaas/earshot/pkg/audio"
)

// Clock supplies the timestamps the segmenter measures silence against.
// Advance is called once per drained frame, before the frame is classified.
type Clock interface {
	Advance(f audio.Frame) time.Time
}

// WallClock reads the monotonic system clock; use it for live capture.
type WallClock struct{}

// Advance implements Clock.
func (WallClock) Advance(audio.Frame) time.Time { return time.Now() }

// MediaClock derives time from the audio itself: each frame moves it forward
// by the frame's exact duration. File replay and tests use it so results do
// not depend on how fast frames are fed.
type MediaClock struct {
	start   time.Time
	samples int64
	rate    int
}

// NewMediaClock starts a media clock at start.
func NewMediaClock(start time.Time) *MediaClock {
	return &MediaClock{start: start}
}

// Advance implements Clock. The returned time is the end of f.
func (c *MediaClock) Advance(f audio.Frame) time.Time {
	if f.SampleRate != c.rate && f.SampleRate > 0 {
		// Rebase so a rate change does not rescale time already elapsed.
		c.start = c.now()
		c.samples = 0
		c.rate = f.SampleRate
	}
	c.samples += int64(f.Frames())
	return c.now()
}

func (c *MediaClock) now() time.Time {
	if c.rate <= 0 {
		return c.start
	}
	return c.start.Add(time.Duration(c.samples) * time.Second / time.Duration(c.rate))
}
