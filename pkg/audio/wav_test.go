package audio

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	in := sine(1600, CanonicalRate, 440, 0.5)
	require.NoError(t, WriteWAV(path, in, CanonicalRate))

	f, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, CanonicalRate, f.SampleRate)
	assert.Equal(t, 1, f.Channels)
	require.Len(t, f.Samples, len(in))
	for i := range in {
		// 16-bit quantization step is 1/32768.
		if math.Abs(float64(in[i]-f.Samples[i])) > 1.0/16384 {
			t.Fatalf("sample %d = %v, want %v", i, f.Samples[i], in[i])
		}
	}
}

func TestWAVClipsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, WriteWAV(path, []float32{2, -2}, 8000))

	f, err := ReadWAV(path)
	require.NoError(t, err)
	require.Len(t, f.Samples, 2)
	assert.InDelta(t, 1.0, f.Samples[0], 1e-3)
	assert.InDelta(t, -1.0, f.Samples[1], 1e-3)
}

func TestWriteTempWAV(t *testing.T) {
	seg := NewSegment(make([]float32, 160), CanonicalRate, time.Now())
	path, err := WriteTempWAV(seg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })

	assert.True(t, strings.HasSuffix(path, ".wav"))
	f, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Len(t, f.Samples, 160)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV(strings.NewReader("definitely not a riff file"))
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestWriteWAVRejectsBadRate(t *testing.T) {
	err := WriteWAV(filepath.Join(t.TempDir(), "bad.wav"), []float32{0}, 0)
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	f := Frame{Samples: make([]float32, 2*10), Channels: 2, SampleRate: 8000}
	blocks := Split(f, 4)

	require.Len(t, blocks, 3)
	assert.Equal(t, 4, blocks[0].Frames())
	assert.Equal(t, 4, blocks[1].Frames())
	assert.Equal(t, 2, blocks[2].Frames())
	for _, b := range blocks {
		assert.Equal(t, 2, b.Channels)
		assert.Equal(t, 8000, b.SampleRate)
	}

	assert.Len(t, Split(f, 0), 1)
	assert.Empty(t, Split(Frame{Channels: 1, SampleRate: 8000}, 4))
}
