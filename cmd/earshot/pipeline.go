package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/NicolasHaas/earshot/pkg/archive"
	"github.com/NicolasHaas/earshot/pkg/audio"
	"github.com/NicolasHaas/earshot/pkg/capture"
	"github.com/NicolasHaas/earshot/pkg/config"
	"github.com/NicolasHaas/earshot/pkg/logging"
	"github.com/NicolasHaas/earshot/pkg/observe"
	"github.com/NicolasHaas/earshot/pkg/recognize"
	"github.com/NicolasHaas/earshot/pkg/recognize/whisper"
	"github.com/NicolasHaas/earshot/pkg/version"
)

// pipeline holds everything downstream of the capture loop.
type pipeline struct {
	cfg        *config.Config
	metrics    *observe.Metrics
	recognizer recognize.Recognizer
	journal    *archive.Journal
	player     *audio.Player
	ack        audio.Frame
	closers    []io.Closer
	shutdown   func(context.Context) error
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	p := &pipeline{cfg: cfg}

	mp, shutdown, err := observe.InitProvider("earshot", version.String())
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	p.shutdown = shutdown
	if p.metrics, err = observe.NewMetrics(mp); err != nil {
		p.Close()
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	observe.StartHTTP(ctx, cfg.MetricsAddr)
	p.metrics.StartPeriodicLog(ctx, cfg.StatsEvery)

	if p.recognizer, err = newRecognizer(cfg); err != nil {
		p.Close()
		return nil, err
	}
	if c, ok := p.recognizer.(io.Closer); ok {
		p.closers = append(p.closers, c)
	}

	if cfg.ArchivePath != "" {
		if p.journal, err = archive.Open(cfg.ArchivePath, archive.Options{Passphrase: cfg.ArchiveKey}); err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, p.journal)
		slog.Info("archiving segments", "path", cfg.ArchivePath, "sealed", cfg.ArchiveKey != "")
	}

	if cfg.AckSound != "" {
		if p.ack, err = audio.ReadWAV(cfg.AckSound); err != nil {
			p.Close()
			return nil, err
		}
		p.player = audio.NewPlayer(cfg.AudioOutput, nil)
	}
	return p, nil
}

func newRecognizer(cfg *config.Config) (recognize.Recognizer, error) {
	switch cfg.Backend {
	case config.BackendOpenAI:
		return recognize.NewOpenAI(recognize.OpenAIConfig{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.Model,
			Language: cfg.OpenAI.Language,
			Prompt:   cfg.OpenAI.Prompt,
		})
	case config.BackendWhisper:
		return whisper.New(cfg.Whisper.ModelPath, cfg.Whisper.Language)
	default:
		return nil, nil
	}
}

// Close releases backends in reverse order and flushes metrics.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
	if p.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.shutdown(ctx)
	}
	p.metrics.LogSummary()
}

// handler builds the segment handler. Transcripts go to stdout, one per line.
func (p *pipeline) handler(ctx context.Context) capture.SegmentHandler {
	opts := recognize.HandlerOptions{
		Recognizer: p.recognizer,
		Timeout:    p.cfg.Timeout,
		DebugWAV:   p.cfg.DebugDump,
		Metrics:    p.metrics,
		Logger:     logging.For("recognize"),
		OnText: func(_ audio.Segment, text string) {
			fmt.Println(text)
			p.acknowledge(ctx)
		},
	}
	if p.journal != nil {
		opts.Archive = p.journal
	}
	return recognize.Handler(opts)
}

// acknowledge plays the ack sound off the capture goroutine so the loop keeps
// draining (and dropping) frames while the player holds capture paused.
func (p *pipeline) acknowledge(ctx context.Context) {
	if p.player == nil {
		return
	}
	go func() {
		if err := p.player.PlayFrame(ctx, p.ack); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("ack playback failed", "err", err)
		}
	}()
}

func (p *pipeline) options(ctx context.Context) capture.Options {
	return capture.Options{
		Detector:      audio.NewEnergyVAD(p.cfg.VADThreshold),
		Segmenter:     p.cfg.Segmenter(),
		CanonicalRate: p.cfg.CanonicalRate,
		PollInterval:  p.cfg.PollInterval,
		Handler:       p.handler(ctx),
		Metrics:       p.metrics,
		Logger:        logging.For("capture"),
	}
}

func runListen(ctx context.Context, cfg *config.Config) error {
	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	err = capture.Listen(ctx, cfg.DeviceConfig(), p.options(ctx), func(c *capture.Controller) {
		if p.player != nil {
			p.player.SetPauser(c)
		}
	})
	var rateErr *audio.NoSupportedRateError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("device %d: %w (see -list-devices)", cfg.Device, err)
	}
	return err
}

func runInput(ctx context.Context, cfg *config.Config, path string) error {
	rec, err := audio.ReadWAV(path)
	if err != nil {
		return err
	}
	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	slog.Info("replaying recording", "path", path, "rate", rec.SampleRate, "channels", rec.Channels, "duration", rec.Duration().String())
	n, err := capture.Replay(ctx, rec, cfg.FramesPerBuffer, p.options(ctx))
	slog.Info("replay finished", "segments", n)
	return err
}

func runReplayArchive(ctx context.Context, cfg *config.Config, limit int) error {
	if cfg.ArchivePath == "" {
		return errors.New("-replay-archive needs archive_path")
	}
	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()
	if p.recognizer == nil {
		return errors.New("-replay-archive needs a recognizer backend")
	}

	entries, err := p.journal.List(ctx, limit)
	if err != nil {
		return err
	}
	log := logging.For("archive")
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		seg, _, err := p.journal.Load(ctx, e.ID)
		if err != nil {
			log.Warn("load segment failed", "segment", e.ID, "err", err)
			continue
		}
		text, err := transcribeOne(ctx, p, seg)
		if err != nil {
			log.Warn("transcription failed", "segment", e.ID, "err", err)
			continue
		}
		if err := p.journal.UpdateText(ctx, e.ID, text); err != nil {
			log.Warn("update transcript failed", "segment", e.ID, "err", err)
		}
		fmt.Printf("%s\t%s\t%s\n", e.CapturedAt.Format(time.RFC3339), e.ID, text)
	}
	return nil
}

func transcribeOne(ctx context.Context, p *pipeline, seg audio.Segment) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	start := time.Now()
	text, err := p.recognizer.Transcribe(ctx, seg)
	p.metrics.Recognized(p.recognizer.Name(), time.Since(start), err)
	return text, err
}
