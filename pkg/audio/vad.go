package audio

// DefaultVADThreshold is low on purpose: typical microphone gain leaves speech
// far below full scale.
const DefaultVADThreshold = 0.0035

// EnergyVAD classifies frames by mean absolute amplitude. It keeps no state;
// onset and hangover timing belong to the segmenter.
type EnergyVAD struct {
	Threshold float64
}

// NewEnergyVAD returns a detector with the given threshold, or the default
// when threshold is not positive.
func NewEnergyVAD(threshold float64) EnergyVAD {
	if threshold <= 0 {
		threshold = DefaultVADThreshold
	}
	return EnergyVAD{Threshold: threshold}
}

// IsVoice reports whether the frame's energy exceeds the threshold.
func (v EnergyVAD) IsVoice(f Frame) bool {
	return Energy(f.Samples) > v.Threshold
}

// Energy computes the mean absolute amplitude of samples. Useful for level meters.
func Energy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		if f < 0 {
			f = -f
		}
		sum += f
	}
	return sum / float64(len(samples))
}
