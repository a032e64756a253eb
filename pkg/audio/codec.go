package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hraban/opus"
)

const (
	opusChannels  = 1
	opusBitrate   = 24000 // plenty for 16 kHz speech
	opusFrameMs   = 20
	maxOpusPacket = 1275
)

// ErrCorruptPackets is returned when an encoded segment cannot be split into packets.
var ErrCorruptPackets = errors.New("audio: corrupt opus packet stream")

// Encoder compresses mono float32 segments into a length-prefixed Opus packet stream.
type Encoder struct {
	enc       *opus.Encoder
	rate      int
	frameSize int
	buf       []byte
}

// lookahead is the encoder delay libopus reports for non-low-delay
// applications: 2.5 ms plus 4 ms of delay compensation.
func lookahead(rate int) int { return rate/400 + rate/250 }

// NewEncoder creates a voice-tuned Opus encoder. rate must be one Opus
// supports (8000, 12000, 16000, 24000 or 48000).
func NewEncoder(rate int) (*Encoder, error) {
	enc, err := opus.NewEncoder(rate, opusChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: new encoder: %w", err)
	}
	_ = enc.SetBitrate(opusBitrate)
	_ = enc.SetDTX(false)

	return &Encoder{
		enc:       enc,
		rate:      rate,
		frameSize: rate * opusFrameMs / 1000,
		buf:       make([]byte, maxOpusPacket),
	}, nil
}

// EncodeSegment encodes every sample from a fresh encoder state, so each
// segment decodes on its own. The input is followed by lookahead zeros and the
// final frame is zero-padded. Each packet is written as a uint16 big-endian
// length followed by its bytes.
func (e *Encoder) EncodeSegment(samples []float32) ([]byte, error) {
	if err := e.enc.Reset(); err != nil {
		return nil, fmt.Errorf("audio: reset encoder: %w", err)
	}
	total := len(samples) + lookahead(e.rate)
	out := make([]byte, 0, total/4)
	frame := make([]float32, e.frameSize)
	for off := 0; off < total; off += e.frameSize {
		n := 0
		if off < len(samples) {
			n = copy(frame, samples[off:])
		}
		clear(frame[n:])
		size, err := e.enc.EncodeFloat32(frame, e.buf)
		if err != nil {
			return nil, fmt.Errorf("audio: encode: %w", err)
		}
		out = binary.BigEndian.AppendUint16(out, uint16(size)) //nolint:gosec // opus packets are at most 1275 bytes
		out = append(out, e.buf[:size]...)
	}
	return out, nil
}

// Decoder expands packet streams written by Encoder.
type Decoder struct {
	dec       *opus.Decoder
	frameSize int
	delay     int
}

// NewDecoder creates an Opus decoder for mono audio at rate.
func NewDecoder(rate int) (*Decoder, error) {
	dec, err := opus.NewDecoder(rate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: new decoder: %w", err)
	}
	return &Decoder{dec: dec, frameSize: rate * opusFrameMs / 1000, delay: lookahead(rate)}, nil
}

// DecodeSegment decodes a packet stream, drops the encoder delay and trims
// the result to n samples (the padding added by EncodeSegment). n <= 0 keeps
// everything after the delay.
func (d *Decoder) DecodeSegment(data []byte, n int) ([]float32, error) {
	var out []float32
	pcm := make([]float32, d.frameSize)
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, ErrCorruptPackets
		}
		size := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if size > len(data) {
			return nil, ErrCorruptPackets
		}
		got, err := d.dec.DecodeFloat32(data[:size], pcm)
		if err != nil {
			return nil, fmt.Errorf("audio: decode: %w", err)
		}
		out = append(out, pcm[:got]...)
		data = data[size:]
	}
	out = out[min(d.delay, len(out)):]
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}
