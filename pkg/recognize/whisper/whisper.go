// Package whisper runs speech recognition in-process with whisper.cpp.
// Building it requires libwhisper.a and whisper.h on LIBRARY_PATH and
// C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/NicolasHaas/earshot/pkg/audio"
	"github.com/NicolasHaas/earshot/pkg/recognize"
)

// Recognizer loads the model once; every call gets a fresh context because
// contexts are not safe for concurrent use.
type Recognizer struct {
	model    whisperlib.Model
	language string
	mu       sync.Mutex
}

// New loads the ggml model at modelPath. language "" means "en".
func New(modelPath, language string) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	if language == "" {
		language = "en"
	}
	return &Recognizer{model: model, language: language}, nil
}

// Name implements recognize.Recognizer.
func (w *Recognizer) Name() string { return "whisper" }

// Transcribe implements recognize.Recognizer. seg must be at 16 kHz, which
// whisper.cpp expects and every delivered segment already is.
func (w *Recognizer) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	if seg.SampleRate != whisperlib.SampleRate {
		return "", fmt.Errorf("whisper: needs %d Hz audio, got %d", whisperlib.SampleRate, seg.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", w.language, "err", err)
	}
	if err := wctx.Process(seg.Samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var parts []string
	for {
		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", recognize.ErrEmptyTranscript
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (w *Recognizer) Close() error {
	return w.model.Close()
}

var _ recognize.Recognizer = (*Recognizer)(nil)
