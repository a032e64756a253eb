package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const playbackFrameSize = 512

// Pauser is implemented by anything that must go deaf while we play sound.
type Pauser interface {
	Pause()
	Resume()
}

// Player plays mono float32 audio to an output device. Every playback is
// bracketed by Pause/Resume on the capture side so the microphone never
// records our own output.
type Player struct {
	deviceName string // empty = default
	pauser     Pauser
	mu         sync.Mutex // one playback at a time
}

// NewPlayer creates a player. deviceName may be empty to use the system default;
// pauser may be nil.
func NewPlayer(deviceName string, pauser Pauser) *Player {
	return &Player{deviceName: deviceName, pauser: pauser}
}

// SetPauser replaces the pauser. It waits for any playback in progress.
func (p *Player) SetPauser(pauser Pauser) {
	p.mu.Lock()
	p.pauser = pauser
	p.mu.Unlock()
}

// Play blocks until samples have been written or ctx is cancelled. Capture is
// resumed on every return path.
func (p *Player) Play(ctx context.Context, samples []float32, rate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pauser != nil {
		p.pauser.Pause()
		defer p.pauser.Resume()
	}

	if err := WaitPreInit(); err != nil {
		return err
	}

	var output *portaudio.DeviceInfo
	if p.deviceName != "" {
		output = FindDevice(p.deviceName)
	}
	if output == nil {
		var err error
		output, err = portaudio.DefaultOutputDevice()
		if err != nil {
			return fmt.Errorf("audio: no output device: %w", err)
		}
	}

	buffer := make([]float32, playbackFrameSize)
	params := portaudio.LowLatencyParameters(nil, output)
	params.Output.Channels = 1
	params.Input.Device = nil
	params.Input.Channels = 0
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = playbackFrameSize

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return fmt.Errorf("audio: open playback stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("audio: start playback: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	slog.Debug("audio playback started", "device", output.Name, "rate", rate, "samples", len(samples))
	for off := 0; off < len(samples); off += playbackFrameSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buffer, samples[off:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("audio: write frame: %w", err)
		}
	}
	return nil
}

// PlayFrame plays a decoded WAV or any other Frame, keeping channel 0.
func (p *Player) PlayFrame(ctx context.Context, f Frame) error {
	return p.Play(ctx, Mono(f), f.SampleRate)
}
