package audio

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		frame Frame
		want  time.Duration
	}{
		"mono_16k":   {frame: Frame{Samples: make([]float32, 8000), Channels: 1, SampleRate: 16000}, want: 500 * time.Millisecond},
		"stereo_48k": {frame: Frame{Samples: make([]float32, 960), Channels: 2, SampleRate: 48000}, want: 10 * time.Millisecond},
		"block_44k":  {frame: Frame{Samples: make([]float32, 441), Channels: 1, SampleRate: 44100}, want: 10 * time.Millisecond},
		"no_rate":    {frame: Frame{Samples: make([]float32, 10), Channels: 1}, want: 0},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			if got := tc.frame.Duration(); got != tc.want {
				t.Errorf("Duration = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConcat(t *testing.T) {
	t.Parallel()

	got := Concat([]Frame{
		{Samples: []float32{1, 2}, Channels: 2, SampleRate: 8000},
		{Samples: []float32{3, 4, 5, 6}, Channels: 2, SampleRate: 8000},
	})
	want := Frame{Samples: []float32{1, 2, 3, 4, 5, 6}, Channels: 2, SampleRate: 8000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Concat mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Frame{}, Concat(nil)); diff != "" {
		t.Errorf("Concat(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSegment(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewSegment(make([]float32, 24000), CanonicalRate, at)
	b := NewSegment(nil, CanonicalRate, at)

	if a.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", a.Duration)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("segment IDs must be unique and non-empty, got %q and %q", a.ID, b.ID)
	}
	if !a.CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, want %v", a.CapturedAt, at)
	}
}
