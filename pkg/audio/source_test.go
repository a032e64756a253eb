package audio

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSourceDrainEmpty(t *testing.T) {
	s := NewFrameSource()
	_, ok := s.Drain()
	assert.False(t, ok)
}

func TestFrameSourceDrainConcatenatesInOrder(t *testing.T) {
	s := NewFrameSource()
	in := []float32{1, 2}
	s.Push(in, 1, 16000)
	in[0] = 99 // caller reuses its buffer
	s.Push([]float32{3}, 1, 16000)
	s.Push([]float32{4, 5}, 1, 16000)

	f, ok := s.Drain()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, f.Samples)
	assert.Equal(t, 1, f.Channels)
	assert.Equal(t, 16000, f.SampleRate)
	assert.Zero(t, s.Pending())
}

func TestFrameSourceDrainStopsAtLayoutChange(t *testing.T) {
	s := NewFrameSource()
	s.Push([]float32{1}, 1, 16000)
	s.Push([]float32{2}, 1, 16000)
	s.Push([]float32{3, 3}, 2, 16000)
	s.Push([]float32{4}, 1, 16000)

	f, ok := s.Drain()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, f.Samples)
	assert.Equal(t, 2, s.Pending())

	f, ok = s.Drain()
	require.True(t, ok)
	assert.Equal(t, 2, f.Channels)
	assert.Equal(t, []float32{3, 3}, f.Samples)

	f, ok = s.Drain()
	require.True(t, ok)
	assert.Equal(t, []float32{4}, f.Samples)
}

func TestFrameSourceConcurrentPushLosesNothing(t *testing.T) {
	s := NewFrameSource()
	const producers, blocks = 4, 250

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range blocks {
				s.Push([]float32{1, 1}, 1, 16000)
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		if f, ok := s.Drain(); ok {
			total += len(f.Samples)
			continue
		}
		select {
		case <-done:
			if f, ok := s.Drain(); ok {
				total += len(f.Samples)
			}
			assert.Equal(t, producers*blocks*2, total)
			return
		default:
		}
	}
}

func TestFrameSourceReportStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	s := NewFrameSource()
	s.PushStatus(true, false)
	s.PushStatus(true, true)

	over, under := s.ReportStatus(log)
	assert.EqualValues(t, 2, over)
	assert.EqualValues(t, 1, under)
	assert.Contains(t, buf.String(), "audio driver status")

	buf.Reset()
	over, under = s.ReportStatus(log)
	assert.Zero(t, over)
	assert.Zero(t, under)
	assert.Empty(t, buf.String(), "no change, nothing logged")

	totalOver, totalUnder := s.Status()
	assert.EqualValues(t, 2, totalOver)
	assert.EqualValues(t, 1, totalUnder)
}
