// Package config loads earshot settings from a YAML file, an optional .env
// file and EARSHOT_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/earshot/pkg/audio"
	"github.com/NicolasHaas/earshot/pkg/capture"
	"github.com/NicolasHaas/earshot/pkg/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EARSHOT_"

// Backend names.
const (
	BackendNone    = "none"
	BackendOpenAI  = "openai"
	BackendWhisper = "whisper"
)

// Config is the full earshot configuration.
type Config struct {
	VADThreshold     float64       `yaml:"vad_threshold"`
	SilenceThreshold time.Duration `yaml:"silence_threshold"`
	MinDuration      time.Duration `yaml:"min_duration"`
	CanonicalRate    int           `yaml:"canonical_rate"`
	CandidateRates   []int         `yaml:"candidate_rates"`
	Device           int           `yaml:"device"`
	FramesPerBuffer  int           `yaml:"frames_per_buffer"`
	PollInterval     time.Duration `yaml:"poll_interval"`

	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"recognize_timeout"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Whisper WhisperConfig `yaml:"whisper"`

	ArchivePath string `yaml:"archive_path,omitempty"`
	ArchiveKey  string `yaml:"archive_key,omitempty"`
	DebugDump   string `yaml:"debug_dump,omitempty"`
	AckSound    string `yaml:"ack_sound,omitempty"`
	AudioOutput string `yaml:"audio_output,omitempty"`

	MetricsAddr string        `yaml:"metrics_addr,omitempty"`
	StatsEvery  time.Duration `yaml:"stats_interval"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
}

// OpenAIConfig holds the cloud backend settings. The key is normally taken
// from OPENAI_API_KEY rather than the file.
type OpenAIConfig struct {
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model"`
	Language string `yaml:"language,omitempty"`
	Prompt   string `yaml:"prompt,omitempty"`
}

// WhisperConfig holds the local backend settings.
type WhisperConfig struct {
	ModelPath string `yaml:"model_path,omitempty"`
	Language  string `yaml:"language"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VADThreshold:     audio.DefaultVADThreshold,
		SilenceThreshold: capture.DefaultSilenceThreshold,
		MinDuration:      capture.DefaultMinDuration,
		CanonicalRate:    audio.CanonicalRate,
		CandidateRates:   append([]int(nil), audio.DefaultCandidateRates...),
		Device:           0,
		FramesPerBuffer:  audio.DefaultFramesPerBuffer,
		PollInterval:     capture.DefaultPollInterval,
		Backend:          BackendNone,
		Timeout:          30 * time.Second,
		OpenAI:           OpenAIConfig{Model: "whisper-1"},
		Whisper:          WhisperConfig{Language: "en"},
		StatsEvery:       time.Minute,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Override adjusts a loaded Config before validation, typically from flags.
type Override func(*Config)

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the .env file in the working directory if present, the
// process environment and finally overrides. The result is validated.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := cfg.UnmarshalYAMLBytes(data); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: failed to load .env", "err", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalYAMLBytes overlays YAML data onto cfg.
func (c *Config) UnmarshalYAMLBytes(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}
	return nil
}

// ApplyEnv overlays EARSHOT_* variables (and OPENAI_API_KEY) using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	if v, ok := lookup(EnvPrefix + "VAD_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sVAD_THRESHOLD: %w", EnvPrefix, err))
		} else {
			c.VADThreshold = f
		}
	}
	if v, ok := lookup(EnvPrefix + "CANDIDATE_RATES"); ok {
		rates, err := parseRates(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.CandidateRates = rates
		}
	}
	dur("SILENCE_THRESHOLD", &c.SilenceThreshold)
	dur("MIN_DURATION", &c.MinDuration)
	num("CANONICAL_RATE", &c.CanonicalRate)
	num("DEVICE", &c.Device)
	num("FRAMES_PER_BUFFER", &c.FramesPerBuffer)
	dur("POLL_INTERVAL", &c.PollInterval)
	str("BACKEND", &c.Backend)
	dur("RECOGNIZE_TIMEOUT", &c.Timeout)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	str("OPENAI_LANGUAGE", &c.OpenAI.Language)
	str("WHISPER_MODEL", &c.Whisper.ModelPath)
	str("WHISPER_LANGUAGE", &c.Whisper.Language)
	str("ARCHIVE_PATH", &c.ArchivePath)
	str("ARCHIVE_KEY", &c.ArchiveKey)
	str("DEBUG_DUMP", &c.DebugDump)
	str("ACK_SOUND", &c.AckSound)
	str("AUDIO_OUTPUT", &c.AudioOutput)
	str("METRICS_ADDR", &c.MetricsAddr)
	dur("STATS_INTERVAL", &c.StatsEvery)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if c.OpenAI.APIKey == "" {
		if v, ok := lookup("OPENAI_API_KEY"); ok {
			c.OpenAI.APIKey = v
		}
	}
	return errors.Join(errs...)
}

func parseRates(v string) ([]int, error) {
	var rates []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("config: %sCANDIDATE_RATES: %w", EnvPrefix, err)
		}
		rates = append(rates, n)
	}
	return rates, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.VADThreshold <= 0 {
		errs = append(errs, fmt.Errorf("vad_threshold must be positive, got %g", c.VADThreshold))
	}
	if c.SilenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("silence_threshold must be positive, got %s", c.SilenceThreshold))
	}
	if c.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("min_duration must not be negative, got %s", c.MinDuration))
	}
	if c.CanonicalRate <= 0 {
		errs = append(errs, fmt.Errorf("canonical_rate must be positive, got %d", c.CanonicalRate))
	}
	if len(c.CandidateRates) == 0 {
		errs = append(errs, errors.New("candidate_rates must not be empty"))
	}
	for _, r := range c.CandidateRates {
		if r <= 0 {
			errs = append(errs, fmt.Errorf("candidate rate must be positive, got %d", r))
		}
	}
	if c.Device < 0 {
		errs = append(errs, fmt.Errorf("device index must not be negative, got %d", c.Device))
	}
	if c.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("frames_per_buffer must be positive, got %d", c.FramesPerBuffer))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	switch c.Backend {
	case BackendNone, "":
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("backend openai needs OPENAI_API_KEY"))
		}
	case BackendWhisper:
		if c.Whisper.ModelPath == "" {
			errs = append(errs, errors.New("backend whisper needs whisper.model_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (valid: none, openai, whisper)", c.Backend))
	}
	if err := logging.Validate(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Segmenter returns the segmenter settings.
func (c *Config) Segmenter() capture.SegmenterConfig {
	return capture.SegmenterConfig{SilenceThreshold: c.SilenceThreshold, MinDuration: c.MinDuration}
}

// DeviceConfig returns the input device settings.
func (c *Config) DeviceConfig() capture.DeviceConfig {
	return capture.DeviceConfig{
		Device:          c.Device,
		CandidateRates:  c.CandidateRates,
		FramesPerBuffer: c.FramesPerBuffer,
	}
}

// Save writes cfg as YAML, omitting secrets.
func (c *Config) Save(path string) error {
	out := *c
	out.OpenAI.APIKey = ""
	out.ArchiveKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
