package audio

import (
	"math"
	"sync"
)

// TargetPeak is the amplitude auto-gain normalizes to.
const TargetPeak = 0.9

// smallest positive normal float32
const minNormal32 = 1.17549435e-38

// Preprocess turns a raw capture into canonical form. The steps run in a fixed
// order: keep channel 0, scrub non-finite and subnormal samples, auto-gain to
// TargetPeak, then resample to targetRate if the rates differ. The result is
// clipped to [-1, 1] last, since filter ringing can overshoot full scale.
// It never fails; silent or all-NaN input yields silence.
func Preprocess(raw Frame, targetRate int) []float32 {
	mono := Mono(raw)
	Scrub(mono)
	Normalize(mono)
	if raw.SampleRate == targetRate || raw.SampleRate <= 0 || targetRate <= 0 {
		return mono
	}
	out := resamplerFor(raw.SampleRate, targetRate).Resample(mono)
	Clip(out)
	return out
}

// Mono returns a copy of channel 0. Channels are never mixed.
func Mono(f Frame) []float32 {
	if f.Channels <= 1 {
		out := make([]float32, len(f.Samples))
		copy(out, f.Samples)
		return out
	}
	out := make([]float32, f.Frames())
	for i := range out {
		out[i] = f.Samples[i*f.Channels]
	}
	return out
}

// Scrub zeroes NaN, infinite and subnormal samples in place.
func Scrub(samples []float32) {
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) || (s != 0 && math.Abs(f) < minNormal32) {
			samples[i] = 0
		}
	}
}

// Normalize scales samples in place so the peak is TargetPeak, then clips to
// [-1, 1]. A zero peak leaves the samples untouched.
func Normalize(samples []float32) {
	peak := Peak(samples)
	if peak > 0 {
		gain := TargetPeak / float64(peak)
		for i, s := range samples {
			samples[i] = float32(float64(s) * gain)
		}
	}
	Clip(samples)
}

// Clip limits samples to [-1, 1] in place.
func Clip(samples []float32) {
	for i, s := range samples {
		if s > 1 {
			samples[i] = 1
		} else if s < -1 {
			samples[i] = -1
		}
	}
}

var (
	resamplersMu sync.Mutex
	resamplers   = map[[2]int]*Resampler{}
)

// resamplerFor caches filter designs; a device keeps one rate for its lifetime.
func resamplerFor(from, to int) *Resampler {
	resamplersMu.Lock()
	defer resamplersMu.Unlock()
	key := [2]int{from, to}
	r, ok := resamplers[key]
	if !ok {
		r = NewResampler(from, to)
		resamplers[key] = r
	}
	return r
}
