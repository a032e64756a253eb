package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// DefaultCandidateRates is probed in order: canonical first, then common
// alternates, then a low-rate fallback.
var DefaultCandidateRates = []int{CanonicalRate, 44100, 48000, 8000}

// ErrNoSupportedRate matches every *NoSupportedRateError.
var ErrNoSupportedRate = errors.New("audio: no supported sample rate")

// NoSupportedRateError reports that a device accepted none of the candidate rates.
type NoSupportedRateError struct {
	Device int
	Tried  []int
	Last   error
}

func (e *NoSupportedRateError) Error() string {
	msg := fmt.Sprintf("audio: no supported sample rate for device %d (tried %v)", e.Device, e.Tried)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *NoSupportedRateError) Is(target error) bool { return target == ErrNoSupportedRate }

func (e *NoSupportedRateError) Unwrap() error { return e.Last }

// Prober checks whether a device accepts a mono float32 input configuration
// without opening a stream.
type Prober interface {
	Supports(device, channels, rate int) error
}

// Negotiator picks the first candidate rate the device accepts.
type Negotiator struct {
	Prober     Prober
	Candidates []int
	Logger     *slog.Logger
}

// Negotiate returns the working sample rate for device. Failure is fatal for
// that device and is not retried.
func (n Negotiator) Negotiate(device int) (int, error) {
	candidates := n.Candidates
	if len(candidates) == 0 {
		candidates = DefaultCandidateRates
	}
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}

	var last error
	for _, rate := range candidates {
		if err := n.Prober.Supports(device, 1, rate); err != nil {
			log.Debug("sample rate rejected", "device", device, "rate", rate, "err", err)
			last = err
			continue
		}
		if rate != candidates[0] {
			log.Info("using fallback sample rate", "device", device, "rate", rate, "preferred", candidates[0])
		}
		return rate, nil
	}
	return 0, &NoSupportedRateError{Device: device, Tried: candidates, Last: last}
}

// PortAudioProber validates formats with Pa_IsFormatSupported.
// PortAudio must be initialized (see WaitPreInit).
type PortAudioProber struct{}

// Supports implements Prober.
func (PortAudioProber) Supports(device, channels, rate int) error {
	info, err := DeviceByIndex(device)
	if err != nil {
		return err
	}
	if info.MaxInputChannels < channels {
		return fmt.Errorf("audio: device %d has %d input channels", device, info.MaxInputChannels)
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate: float64(rate),
	}
	var sampleType []float32
	if err := portaudio.IsFormatSupported(params, sampleType); err != nil {
		return fmt.Errorf("audio: device %d at %d Hz: %w", device, rate, err)
	}
	return nil
}
