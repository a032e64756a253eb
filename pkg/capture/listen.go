package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NicolasHaas/earshot/pkg/audio"
)

// DeviceConfig selects and opens the input device for Listen.
type DeviceConfig struct {
	Device          int
	CandidateRates  []int
	FramesPerBuffer int
	// Prober defaults to audio.PortAudioProber.
	Prober audio.Prober
}

// Listen negotiates a sample rate, opens the device and runs the controller
// until ctx is done. A *audio.NoSupportedRateError is returned before any
// stream is opened. ready, if non-nil, is called with the controller once
// capture is live so callers can wire Pause/Resume.
func Listen(ctx context.Context, dev DeviceConfig, opts Options, ready func(*Controller)) error {
	if err := audio.WaitPreInit(); err != nil {
		return err
	}
	prober := dev.Prober
	if prober == nil {
		prober = audio.PortAudioProber{}
	}
	rate, err := audio.Negotiator{
		Prober:     prober,
		Candidates: dev.CandidateRates,
		Logger:     opts.Logger,
	}.Negotiate(dev.Device)
	if err != nil {
		return err
	}

	source := audio.NewFrameSource()
	stream, err := audio.OpenInputStream(dev.Device, rate, dev.FramesPerBuffer, source)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	defer func() { _ = stream.Close() }()

	opts.Source = source
	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	ctrl := NewController(opts)
	ctrl.log.Info("listening", "device", dev.Device, "rate", rate)
	if ready != nil {
		ready(ctrl)
	}
	return ctrl.Run(ctx)
}

// Replay drives the pipeline from a recording instead of a device. The frame
// is cut into driver-sized blocks, time is taken from the audio itself, and
// silence equal to the silence threshold is appended so a trailing utterance
// still closes. It returns the number of segments delivered.
func Replay(ctx context.Context, rec audio.Frame, blockFrames int, opts Options) (int, error) {
	if blockFrames <= 0 {
		blockFrames = audio.DefaultFramesPerBuffer
	}
	source := audio.NewFrameSource()
	opts.Source = source
	if opts.Clock == nil {
		opts.Clock = NewMediaClock(time.Now())
	}

	delivered := 0
	handler := opts.Handler
	opts.Handler = func(seg audio.Segment) {
		delivered++
		if handler != nil {
			handler(seg)
		}
	}
	ctrl := NewController(opts)
	defer ctrl.seg.Reset()

	silence := opts.Segmenter.withDefaults().SilenceThreshold
	tail := audio.Frame{
		Samples:    make([]float32, int(int64(rec.SampleRate)*int64(silence)/int64(time.Second))*max(rec.Channels, 1)),
		Channels:   rec.Channels,
		SampleRate: rec.SampleRate,
	}
	blocks := append(audio.Split(rec, blockFrames), audio.Split(tail, blockFrames)...)

	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		source.Push(b.Samples, b.Channels, b.SampleRate)
		ctrl.Step()
	}
	return delivered, nil
}

// Record captures a fixed length of raw audio from the device at the
// negotiated rate. No VAD or segmentation is applied.
func Record(ctx context.Context, dev DeviceConfig, length time.Duration, log *slog.Logger) (audio.Frame, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := audio.WaitPreInit(); err != nil {
		return audio.Frame{}, err
	}
	prober := dev.Prober
	if prober == nil {
		prober = audio.PortAudioProber{}
	}
	rate, err := audio.Negotiator{Prober: prober, Candidates: dev.CandidateRates, Logger: log}.Negotiate(dev.Device)
	if err != nil {
		return audio.Frame{}, err
	}

	source := audio.NewFrameSource()
	stream, err := audio.OpenInputStream(dev.Device, rate, dev.FramesPerBuffer, source)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("capture: %w", err)
	}
	defer func() { _ = stream.Close() }()

	want := int(int64(rate) * int64(length) / int64(time.Second))
	log.Info("recording", "device", dev.Device, "rate", rate, "length", length)

	var blocks []audio.Frame
	got := 0
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()
	for got < want {
		select {
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		case <-ticker.C:
		}
		for {
			f, ok := source.Drain()
			if !ok {
				break
			}
			// Keep channel 0 so blocks always concatenate.
			mono := audio.Frame{Samples: audio.Mono(f), Channels: 1, SampleRate: f.SampleRate}
			blocks = append(blocks, mono)
			got += mono.Frames()
		}
	}
	source.ReportStatus(log)

	rec := audio.Concat(blocks)
	if len(rec.Samples) > want {
		rec.Samples = rec.Samples[:want]
	}
	return rec, nil
}
