package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.0035, cfg.VADThreshold, 1e-12)
	assert.Equal(t, 800*time.Millisecond, cfg.SilenceThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.MinDuration)
	assert.Equal(t, 16000, cfg.CanonicalRate)
	assert.Equal(t, []int{16000, 44100, 48000, 8000}, cfg.CandidateRates)
	assert.Equal(t, 0, cfg.Device)
	assert.Equal(t, BackendNone, cfg.Backend)
}

func TestYAMLOverlay(t *testing.T) {
	cfg := Default()
	err := cfg.UnmarshalYAMLBytes([]byte(`
vad_threshold: 0.01
silence_threshold: 1s
min_duration: 250ms
candidate_rates: [48000, 44100]
device: 2
backend: whisper
whisper:
  model_path: /models/ggml-base.en.bin
debug_dump: last.wav
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.01, cfg.VADThreshold, 1e-12)
	assert.Equal(t, time.Second, cfg.SilenceThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.MinDuration)
	assert.Equal(t, []int{48000, 44100}, cfg.CandidateRates)
	assert.Equal(t, 2, cfg.Device)
	assert.Equal(t, "/models/ggml-base.en.bin", cfg.Whisper.ModelPath)
	assert.Equal(t, "en", cfg.Whisper.Language, "unset keys keep defaults")
	assert.Equal(t, "last.wav", cfg.DebugDump)
	assert.Equal(t, 16000, cfg.CanonicalRate)
}

func TestYAMLParseError(t *testing.T) {
	err := Default().UnmarshalYAMLBytes([]byte("device: [not a number"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"EARSHOT_VAD_THRESHOLD":     "0.02",
		"EARSHOT_SILENCE_THRESHOLD": "600ms",
		"EARSHOT_CANDIDATE_RATES":   "44100, 16000",
		"EARSHOT_DEVICE":            "3",
		"EARSHOT_BACKEND":           "openai",
		"EARSHOT_ARCHIVE_PATH":      "earshot.db",
		"OPENAI_API_KEY":            "sk-env",
	}))
	require.NoError(t, err)

	assert.InDelta(t, 0.02, cfg.VADThreshold, 1e-12)
	assert.Equal(t, 600*time.Millisecond, cfg.SilenceThreshold)
	assert.Equal(t, []int{44100, 16000}, cfg.CandidateRates)
	assert.Equal(t, 3, cfg.Device)
	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, "earshot.db", cfg.ArchivePath)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvReportsEveryBadValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"EARSHOT_DEVICE":        "mic",
		"EARSHOT_POLL_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EARSHOT_DEVICE")
	assert.Contains(t, err.Error(), "EARSHOT_POLL_INTERVAL")
	assert.Equal(t, 0, cfg.Device, "bad values leave the field alone")
}

func openAIWithKey(c *Config) {
	c.Backend = BackendOpenAI
	c.OpenAI.APIKey = "sk"
}

func TestValidate(t *testing.T) {
	tcases := map[string]struct {
		mutate  func(*Config)
		wantErr bool
	}{
		"defaults":          {mutate: func(*Config) {}},
		"zero_vad":          {mutate: func(c *Config) { c.VADThreshold = 0 }, wantErr: true},
		"negative_silence":  {mutate: func(c *Config) { c.SilenceThreshold = -time.Second }, wantErr: true},
		"no_rates":          {mutate: func(c *Config) { c.CandidateRates = nil }, wantErr: true},
		"bad_rate":          {mutate: func(c *Config) { c.CandidateRates = []int{16000, -1} }, wantErr: true},
		"negative_device":   {mutate: func(c *Config) { c.Device = -1 }, wantErr: true},
		"unknown_backend":   {mutate: func(c *Config) { c.Backend = "vosk" }, wantErr: true},
		"openai_no_key":     {mutate: func(c *Config) { c.Backend = BackendOpenAI }, wantErr: true},
		"whisper_no_model":  {mutate: func(c *Config) { c.Backend = BackendWhisper }, wantErr: true},
		"bad_log_level":     {mutate: func(c *Config) { c.LogLevel = "chatty" }, wantErr: true},
		"bad_log_format":    {mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		"openai_with_key":   {mutate: openAIWithKey},
		"zero_min_duration": {mutate: func(c *Config) { c.MinDuration = 0 }},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadAppliesOverridesLast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "earshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: 1\nlog_level: debug\n"), 0600))

	t.Setenv("EARSHOT_DEVICE", "2")
	cfg, err := Load(path, func(c *Config) { c.Device = 5 })
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Device)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: 1\n"), 0600))

	t.Setenv("EARSHOT_DEVICE", "2")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Device)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveRoundTripOmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Device = 4
	cfg.SilenceThreshold = 900 * time.Millisecond
	cfg.OpenAI.APIKey = "sk-secret"
	cfg.ArchiveKey = "hunter2"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.NotContains(t, string(data), "hunter2")

	loaded := Default()
	require.NoError(t, loaded.UnmarshalYAMLBytes(data))

	want := *cfg
	want.OpenAI.APIKey = ""
	want.ArchiveKey = ""
	if diff := cmp.Diff(&want, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
