package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	preInitOnce sync.Once
	preInitDone = make(chan struct{})
	preInitErr  error
)

// PreInitAudio starts PortAudio initialization in the background. Device
// enumeration on ALSA can take a noticeable moment on small boards, so main
// kicks this off before parsing config.
func PreInitAudio() {
	preInitOnce.Do(func() {
		go func() {
			slog.Debug("pre-initializing PortAudio...")
			if err := portaudio.Initialize(); err != nil {
				preInitErr = fmt.Errorf("audio: initialize portaudio: %w", err)
				slog.Error("pre-init portaudio failed", "err", err)
			}
			slog.Debug("PortAudio pre-init complete")
			close(preInitDone)
		}()
	})
}

// WaitPreInit blocks until PreInitAudio completes, starting it if needed.
func WaitPreInit() error {
	PreInitAudio()
	<-preInitDone
	return preInitErr
}

// Terminate releases PortAudio. Call once, after every stream is closed.
func Terminate() error {
	return portaudio.Terminate()
}

// DeviceEntry holds basic info about an audio device.
type DeviceEntry struct {
	Index             int
	Name              string
	MaxInputs         int
	MaxOutputs        int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListInputDevices returns every device with at least one input channel.
func ListInputDevices() ([]DeviceEntry, error) {
	if err := WaitPreInit(); err != nil {
		return nil, err
	}
	defaultIn, _ := portaudio.DefaultInputDevice()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}

	var result []DeviceEntry
	for i, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		result = append(result, DeviceEntry{
			Index:             i,
			Name:              d.Name,
			MaxInputs:         d.MaxInputChannels,
			MaxOutputs:        d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         defaultIn != nil && d.Name == defaultIn.Name,
		})
	}
	return result, nil
}

// DeviceByIndex returns the PortAudio device at position index in the host's
// device list, the same numbering ALSA tools print.
func DeviceByIndex(index int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("audio: device index %d out of range (%d devices)", index, len(devices))
	}
	return devices[index], nil
}

// FindDevice returns the device matching name, or nil.
func FindDevice(name string) *portaudio.DeviceInfo {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil
	}
	for _, d := range devices {
		if d.Name == name {
			return d
		}
	}
	return nil
}
