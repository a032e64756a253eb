package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/earshot/pkg/audio"
	"github.com/NicolasHaas/earshot/pkg/capture"
	"github.com/NicolasHaas/earshot/pkg/config"
	"github.com/NicolasHaas/earshot/pkg/logging"
	"github.com/NicolasHaas/earshot/pkg/version"
)

func main() {
	// Device enumeration is slow on some ALSA setups; start it now.
	audio.PreInitAudio()

	configPath := flag.String("config", "", "YAML configuration file (optional)")
	listDevices := flag.Bool("list-devices", false, "List input devices and exit")
	record := flag.String("record", "", "Record a fixed-length WAV to this path and exit")
	seconds := flag.Float64("seconds", 3, "Length of -record in seconds")
	input := flag.String("input", "", "Run the pipeline over a WAV file instead of a device")
	replayArchive := flag.Bool("replay-archive", false, "Re-transcribe segments stored in the archive and exit")
	limit := flag.Int("limit", 0, "Maximum archive entries for -replay-archive (0 = all)")
	device := flag.Int("device", -1, "Input device index (overrides config)")
	backend := flag.String("backend", "", "Recognizer: none, openai or whisper (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "", "Log format: text or json")
	writeConfig := flag.String("write-config", "", "Write the effective configuration (without secrets) to this path and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("earshot", version.Full())
		return
	}

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *device >= 0 {
			c.Device = *device
		}
		if *backend != "" {
			c.Backend = *backend
		}
		if *logLevel != "" {
			c.LogLevel = *logLevel
		}
		if *logFormat != "" {
			c.LogFormat = *logFormat
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = audio.Terminate() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *writeConfig != "":
		err = runWriteConfig(cfg, *writeConfig)
	case *listDevices:
		err = runListDevices()
	case *record != "":
		err = runRecord(ctx, cfg, *record, time.Duration(*seconds*float64(time.Second)))
	case *replayArchive:
		err = runReplayArchive(ctx, cfg, *limit)
	case *input != "":
		err = runInput(ctx, cfg, *input)
	default:
		err = runListen(ctx, cfg)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("earshot failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func runWriteConfig(cfg *config.Config, path string) error {
	if err := cfg.Save(path); err != nil {
		return err
	}
	slog.Info("configuration written", "path", path)
	return nil
}

func runListDevices() error {
	devices, err := audio.ListInputDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Printf("%s %2d  %-40s in=%d out=%d default_rate=%.0f\n",
			mark, d.Index, d.Name, d.MaxInputs, d.MaxOutputs, d.DefaultSampleRate)
	}
	return nil
}

func runRecord(ctx context.Context, cfg *config.Config, path string, length time.Duration) error {
	if length <= 0 {
		return fmt.Errorf("record length must be positive, got %s", length)
	}
	log := logging.For("record")
	rec, err := capture.Record(ctx, cfg.DeviceConfig(), length, log)
	if err != nil {
		return err
	}
	if err := audio.WriteWAV(path, rec.Samples, rec.SampleRate); err != nil {
		return err
	}
	log.Info("recording saved", "path", path, "rate", rec.SampleRate, "duration", rec.Duration().String(), "peak", audio.Peak(rec.Samples))
	return nil
}
