package recognize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/NicolasHaas/earshot/pkg/audio"
)

// OpenAIConfig configures the cloud transcription backend.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string // optional, for compatible gateways
	Model    string // default whisper-1
	Language string // ISO-639-1, empty = auto
	Prompt   string
}

// OpenAI sends segments to the audio transcription endpoint. Each segment is
// written to a temporary WAV file first, which is removed afterwards.
type OpenAI struct {
	client   openai.Client
	model    openai.AudioModel
	language string
	prompt   string
}

// NewOpenAI creates the backend. An API key is required.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("recognize: OpenAI API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := openai.AudioModelWhisper1
	if cfg.Model != "" {
		model = openai.AudioModel(cfg.Model)
	}
	return &OpenAI{
		client:   openai.NewClient(opts...),
		model:    model,
		language: cfg.Language,
		prompt:   cfg.Prompt,
	}, nil
}

// Name implements Recognizer.
func (o *OpenAI) Name() string { return "openai" }

// Transcribe implements Recognizer.
func (o *OpenAI) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	path, err := audio.WriteTempWAV(seg)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(path) }()

	f, err := os.Open(path) //nolint:gosec // our own temp file
	if err != nil {
		return "", fmt.Errorf("recognize: open temp wav: %w", err)
	}
	defer func() { _ = f.Close() }()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: o.model,
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}
	if o.prompt != "" {
		params.Prompt = openai.String(o.prompt)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("recognize: openai transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
