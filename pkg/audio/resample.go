package audio

import (
	"math"
)

const (
	kaiserBeta     = 5.0
	halfLenPerRate = 10
)

// Ratio returns the resampling factors up/down = to/from reduced to lowest terms.
func Ratio(from, to int) (up, down int) {
	g := gcd(from, to)
	return to / g, from / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// Resampler converts mono signals between two fixed rates with a polyphase
// FIR filter. The filter is designed once; Resample is safe for concurrent use.
type Resampler struct {
	up, down int
	taps     []float64
	delay    int
}

// NewResampler designs a Kaiser-windowed low-pass for the exact from->to ratio.
func NewResampler(from, to int) *Resampler {
	up, down := Ratio(from, to)
	r := &Resampler{up: up, down: down}
	if up == 1 && down == 1 {
		return r
	}
	maxRate := max(up, down)
	halfLen := halfLenPerRate * maxRate
	n := 2*halfLen + 1
	cutoff := 1.0 / float64(maxRate)

	taps := make([]float64, n)
	window := kaiser(n, kaiserBeta)
	var sum float64
	for i := range taps {
		x := float64(i - halfLen)
		taps[i] = cutoff * sinc(cutoff*x) * window[i]
		sum += taps[i]
	}
	// Unity DC gain after zero-stuffing requires a gain of up.
	for i := range taps {
		taps[i] = taps[i] / sum * float64(up)
	}
	r.taps = taps
	r.delay = halfLen
	return r
}

// Up returns the interpolation factor.
func (r *Resampler) Up() int { return r.up }

// Down returns the decimation factor.
func (r *Resampler) Down() int { return r.down }

// OutputLen returns ceil(n*up/down).
func (r *Resampler) OutputLen(n int) int {
	return (n*r.up + r.down - 1) / r.down
}

// Resample filters x and returns the resampled signal. The filter's group delay
// is compensated, so output sample m aligns with input time m*down/up.
func (r *Resampler) Resample(x []float32) []float32 {
	if r.up == 1 && r.down == 1 {
		out := make([]float32, len(x))
		copy(out, x)
		return out
	}
	outLen := r.OutputLen(len(x))
	out := make([]float32, outLen)
	nTaps := len(r.taps)
	for m := range out {
		// Position of this output in the zero-stuffed domain, plus filter delay.
		p := m*r.down + r.delay
		// Only taps k with (p-k) % up == 0 hit a non-zero input sample.
		k := p % r.up
		j := (p - k) / r.up
		// Skip taps that would index past the end of x.
		if j >= len(x) {
			skip := j - len(x) + 1
			k += skip * r.up
			j -= skip
		}
		var acc float64
		for ; k < nTaps && j >= 0; k, j = k+r.up, j-1 {
			acc += r.taps[k] * float64(x[j])
		}
		out[m] = float32(acc)
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// kaiser returns an n-point symmetric Kaiser window.
func kaiser(n int, beta float64) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	denom := besselI0(beta)
	m := float64(n - 1)
	for i := range w {
		r := 2*float64(i)/m - 1
		w[i] = besselI0(beta*math.Sqrt(1-r*r)) / denom
	}
	return w
}

// besselI0 evaluates the zeroth-order modified Bessel function of the first kind.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	half := x / 2
	for k := 1; k < 64; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-16 {
			break
		}
	}
	return sum
}
