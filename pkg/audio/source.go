package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// FrameSource bridges the real-time driver callback and the processing loop.
// Push never waits on anything but a slice swap in Drain, so the producer is
// never blocked behind consumer work.
type FrameSource struct {
	mu     sync.Mutex
	blocks []Frame

	overflows  atomic.Int64
	underflows atomic.Int64
	reported   [2]int64 // consumer-side only
}

// NewFrameSource creates an empty hand-off queue.
func NewFrameSource() *FrameSource {
	return &FrameSource{}
}

// Push copies one driver block onto the queue. in is not retained.
func (s *FrameSource) Push(in []float32, channels, rate int) {
	block := make([]float32, len(in))
	copy(block, in)
	f := Frame{Samples: block, Channels: channels, SampleRate: rate}

	s.mu.Lock()
	s.blocks = append(s.blocks, f)
	s.mu.Unlock()
}

// PushStatus records a driver overrun/underrun without logging.
func (s *FrameSource) PushStatus(overflow, underflow bool) {
	if overflow {
		s.overflows.Add(1)
	}
	if underflow {
		s.underflows.Add(1)
	}
}

// Drain removes every queued block and returns them joined into one frame.
// It never blocks; ok is false when nothing was queued. Blocks with a
// different layout than the first stay queued for the next call.
func (s *FrameSource) Drain() (Frame, bool) {
	s.mu.Lock()
	blocks := s.blocks
	s.blocks = nil
	s.mu.Unlock()

	if len(blocks) == 0 {
		return Frame{}, false
	}

	n := 1
	for n < len(blocks) && sameLayout(blocks[0], blocks[n]) {
		n++
	}
	if n < len(blocks) {
		rest := blocks[n:]
		s.mu.Lock()
		s.blocks = append(rest, s.blocks...)
		s.mu.Unlock()
	}
	return Concat(blocks[:n]), true
}

// Pending returns the number of queued blocks.
func (s *FrameSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// Status returns the driver overrun and underrun totals.
func (s *FrameSource) Status() (overflows, underflows int64) {
	return s.overflows.Load(), s.underflows.Load()
}

// ReportStatus logs driver status changes since the previous call.
// Call it from the consumer, never from the callback.
func (s *FrameSource) ReportStatus(log *slog.Logger) (newOverflows, newUnderflows int64) {
	over, under := s.Status()
	newOverflows = over - s.reported[0]
	newUnderflows = under - s.reported[1]
	s.reported = [2]int64{over, under}
	if newOverflows > 0 || newUnderflows > 0 {
		log.Warn("audio driver status", "input_overflows", newOverflows, "input_underflows", newUnderflows)
	}
	return newOverflows, newUnderflows
}

func sameLayout(a, b Frame) bool {
	return a.Channels == b.Channels && a.SampleRate == b.SampleRate
}
