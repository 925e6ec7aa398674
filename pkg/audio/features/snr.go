package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SNR returns 10*log10(sum(x^2) / sum((x - mean(x))^2)), the ratio of total
// energy to energy around the mean. A constant window has no energy around
// its mean, so the result is +Inf (non-zero constant) or NaN (silence).
func SNR(window []float64) float64 {
	if len(window) == 0 {
		return math.NaN()
	}
	signal := floats.Dot(window, window)

	// rounding in the mean must not turn a constant window finite
	if floats.Min(window) == floats.Max(window) {
		if signal == 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}

	mean := stat.Mean(window, nil)
	noise := 0.0
	for _, v := range window {
		d := v - mean
		noise += d * d
	}
	return 10 * math.Log10(signal/noise)
}
