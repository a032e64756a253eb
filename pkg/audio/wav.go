package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// ErrInvalidWAV is returned for files that are not RIFF/WAVE PCM.
var ErrInvalidWAV = errors.New("audio: not a valid WAV file")

// EncodeWAV writes mono samples in [-1, 1] as 16-bit PCM WAV to w.
func EncodeWAV(w io.WriteSeeker, samples []float32, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", rate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		data[i] = int(max(min(v, math.MaxInt16), math.MinInt16))
	}
	enc := wav.NewEncoder(w, rate, wavBitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}

// WriteWAV writes samples to a WAV file at path.
func WriteWAV(path string, samples []float32, rate int) error {
	f, err := os.Create(path) //nolint:gosec // path from CLI/config
	if err != nil {
		return fmt.Errorf("audio: create wav: %w", err)
	}
	if err := EncodeWAV(f, samples, rate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteTempWAV writes seg to a new file in the system temp dir and returns its
// path. The caller removes it.
func WriteTempWAV(seg Segment) (string, error) {
	f, err := os.CreateTemp("", "earshot-*.wav")
	if err != nil {
		return "", fmt.Errorf("audio: create temp wav: %w", err)
	}
	if err := EncodeWAV(f, seg.Samples, seg.SampleRate); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("audio: close temp wav: %w", err)
	}
	return f.Name(), nil
}

// DecodeWAV reads a PCM WAV stream into an interleaved float32 Frame.
func DecodeWAV(r io.ReadSeeker) (Frame, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Frame{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Frame{}, fmt.Errorf("audio: read wav: %w", err)
	}
	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = wavBitDepth
	}
	scale := float32(int64(1) << (depth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return Frame{
		Samples:    samples,
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// ReadWAV loads a WAV file from path.
func ReadWAV(path string) (Frame, error) {
	f, err := os.Open(path) //nolint:gosec // path from CLI
	if err != nil {
		return Frame{}, fmt.Errorf("audio: open wav: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeWAV(f)
}

// Split cuts f into consecutive frames of at most blockFrames per-channel samples.
// It emulates driver-sized blocks when replaying a file.
func Split(f Frame, blockFrames int) []Frame {
	if blockFrames <= 0 {
		return []Frame{f}
	}
	ch := max(f.Channels, 1)
	step := blockFrames * ch
	var out []Frame
	for off := 0; off < len(f.Samples); off += step {
		end := min(off+step, len(f.Samples))
		out = append(out, Frame{Samples: f.Samples[off:end], Channels: f.Channels, SampleRate: f.SampleRate})
	}
	return out
}
