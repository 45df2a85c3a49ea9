package audio

import "math"

// resampleZeroCrossings controls the half-width of the sinc kernel, in zero
// crossings of the low-pass filter. Larger is sharper and slower.
const resampleZeroCrossings = 8

// Resample converts 16-bit PCM between sample rates using windowed-sinc
// interpolation. The low-pass cutoff tracks the lower of the two rates, so
// downsampling does not alias. Output length is round(len(in) * toRate/fromRate).
func Resample(in []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(in) == 0 {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}

	ratio := float64(toRate) / float64(fromRate)
	outLen := int(math.Round(float64(len(in)) * ratio))
	out := make([]int16, outLen)

	// Cutoff as a fraction of the input Nyquist frequency.
	cutoff := 1.0
	if ratio < 1 {
		cutoff = ratio
	}
	halfWidth := float64(resampleZeroCrossings) / cutoff

	for i := range out {
		center := float64(i) / ratio

		lo := int(math.Ceil(center - halfWidth))
		hi := int(math.Floor(center + halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi > len(in)-1 {
			hi = len(in) - 1
		}

		var acc, norm float64
		for j := lo; j <= hi; j++ {
			w := sincWindow(center-float64(j), cutoff, halfWidth)
			acc += float64(in[j]) * w
			norm += w
		}
		if norm != 0 {
			acc /= norm
		}
		out[i] = clampSample(acc)
	}
	return out
}

// sincWindow evaluates the Hann-windowed sinc kernel at offset t.
func sincWindow(t, cutoff, halfWidth float64) float64 {
	if math.Abs(t) >= halfWidth {
		return 0
	}
	// Hann window over [-halfWidth, halfWidth].
	window := 0.5 * (1 + math.Cos(math.Pi*t/halfWidth))
	return cutoff * sinc(cutoff*t) * window
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func clampSample(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}
