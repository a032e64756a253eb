// Package audio provides microphone capture, rate negotiation, preprocessing,
// energy VAD, playback, Opus coding and WAV I/O.
package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// DefaultFramesPerBuffer is the driver block size (about 32ms at 16 kHz).
const DefaultFramesPerBuffer = 512

// InputStream is a callback-driven PortAudio capture stream feeding a FrameSource.
type InputStream struct {
	stream     *portaudio.Stream
	source     *FrameSource
	device     int
	sampleRate int
	channels   int
	mu         sync.Mutex
	running    bool
}

// OpenInputStream opens device at sampleRate and starts delivering blocks of
// framesPerBuffer samples into source. The stream is opened mono; frames still
// carry their channel count so the consumer never assumes it.
func OpenInputStream(device, sampleRate, framesPerBuffer int, source *FrameSource) (*InputStream, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	info, err := DeviceByIndex(device)
	if err != nil {
		return nil, err
	}
	if info.MaxInputChannels < 1 {
		return nil, fmt.Errorf("audio: device %d (%s) has no input channels", device, info.Name)
	}

	s := &InputStream{
		source:     source,
		device:     device,
		sampleRate: sampleRate,
		channels:   1,
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: s.channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		return nil, fmt.Errorf("audio: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("audio: start capture: %w", err)
	}

	s.stream = stream
	s.running = true
	slog.Debug("audio capture started", "device", info.Name, "index", device, "rate", sampleRate)
	return s, nil
}

// callback runs on the PortAudio thread. It only copies and records status.
func (s *InputStream) callback(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	if flags != 0 {
		s.source.PushStatus(flags&portaudio.InputOverflow != 0, flags&portaudio.InputUnderflow != 0)
	}
	s.source.Push(in, s.channels, s.sampleRate)
}

// SampleRate returns the rate the stream was opened at.
func (s *InputStream) SampleRate() int { return s.sampleRate }

// Close stops and closes the stream. Safe to call more than once.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	var firstErr error
	if err := s.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("audio: stop capture: %w", err)
	}
	if err := s.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("audio: close capture: %w", err)
	}
	return firstErr
}
