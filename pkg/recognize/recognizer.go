// Package recognize turns captured segments into text. Backends implement
// Recognizer; Handler adapts any of them into a capture.SegmentHandler that
// never lets a backend failure reach the capture loop.
package recognize

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/NicolasHaas/earshot/pkg/audio"
	"github.com/NicolasHaas/earshot/pkg/capture"
	"github.com/NicolasHaas/earshot/pkg/observe"
)

// DefaultTimeout bounds one recognition call so a hung backend cannot stall capture forever.
const DefaultTimeout = 30 * time.Second

// ErrEmptyTranscript is returned by backends that produced no text.
var ErrEmptyTranscript = errors.New("recognize: empty transcript")

// Recognizer converts one segment (mono, canonical rate) into text.
type Recognizer interface {
	Name() string
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
}

// Archive persists delivered segments together with their transcript.
type Archive interface {
	Save(ctx context.Context, seg audio.Segment, text string) error
}

// HandlerOptions configures Handler.
type HandlerOptions struct {
	Recognizer Recognizer // nil: segments are archived/dumped only
	Timeout    time.Duration
	// OnText receives every non-empty transcript.
	OnText func(seg audio.Segment, text string)
	// Archive, if set, stores each segment after recognition.
	Archive Archive
	// DebugWAV, if set, is overwritten with the latest segment.
	DebugWAV string
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// Handler returns a SegmentHandler that runs the recognizer synchronously.
// Errors are logged and counted, never propagated.
func Handler(opts HandlerOptions) capture.SegmentHandler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return func(seg audio.Segment) {
		if opts.DebugWAV != "" {
			if err := audio.WriteWAV(opts.DebugWAV, seg.Samples, seg.SampleRate); err != nil {
				log.Warn("debug wav dump failed", "path", opts.DebugWAV, "err", err)
			} else {
				log.Debug("saved debug audio", "path", opts.DebugWAV, "samples", len(seg.Samples), "peak", audio.Peak(seg.Samples))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var text string
		if opts.Recognizer != nil {
			text = transcribe(ctx, opts.Recognizer, seg, opts.Metrics, log)
		}

		if opts.Archive != nil {
			if err := opts.Archive.Save(ctx, seg, text); err != nil {
				log.Warn("archive segment failed", "segment", seg.ID, "err", err)
			}
		}
		if text != "" && opts.OnText != nil {
			opts.OnText(seg, text)
		}
	}
}

func transcribe(ctx context.Context, r Recognizer, seg audio.Segment, m *observe.Metrics, log *slog.Logger) string {
	start := time.Now()
	text, err := r.Transcribe(ctx, seg)
	took := time.Since(start)
	m.Recognized(r.Name(), took, err)

	switch {
	case errors.Is(err, ErrEmptyTranscript):
		log.Info("no transcription result", "segment", seg.ID, "backend", r.Name())
		return ""
	case err != nil:
		log.Error("transcription failed", "segment", seg.ID, "backend", r.Name(), "err", err)
		return ""
	}
	text = strings.TrimSpace(text)
	log.Info("transcribed", "backend", r.Name(), "took", took.String(), "text", text)
	return text
}
