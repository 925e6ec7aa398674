package analyzers

import "fmt"

// Delta computes local derivative estimates of each row of data (rows x
// frames) along the time axis with a Savitzky-Golay filter of the given odd
// width. order selects the first or second derivative; the fitted
// polynomial has degree equal to order. Edge frames take the derivative of
// the polynomial fitted to the first or last width frames, which for these
// orders equals the value at the nearest interior frame.
func Delta(data [][]float64, width, order int) ([][]float64, error) {
	if width < 3 || width%2 == 0 {
		return nil, fmt.Errorf("delta width must be an odd integer >= 3, got %d", width)
	}
	if order != 1 && order != 2 {
		return nil, fmt.Errorf("delta order must be 1 or 2, got %d", order)
	}

	coeffs := savgolCoefficients(width, order)
	half := width / 2

	out := make([][]float64, len(data))
	for r, row := range data {
		n := len(row)
		if n < width {
			return nil, fmt.Errorf("delta width=%d cannot exceed %d frames", width, n)
		}

		d := make([]float64, n)
		for t := half; t < n-half; t++ {
			sum := 0.0
			for k := -half; k <= half; k++ {
				sum += coeffs[k+half] * row[t+k]
			}
			d[t] = sum
		}
		for t := range half {
			d[t] = d[half]
			d[n-1-t] = d[n-1-half]
		}
		out[r] = d
	}
	return out, nil
}

// savgolCoefficients returns the correlation taps for a centred least
// squares derivative with unit sample spacing.
func savgolCoefficients(width, order int) []float64 {
	half := width / 2
	coeffs := make([]float64, width)

	switch order {
	case 1:
		// slope of the least squares line: sum(k*x) / sum(k^2)
		var s2 float64
		for k := -half; k <= half; k++ {
			s2 += float64(k * k)
		}
		for k := -half; k <= half; k++ {
			coeffs[k+half] = float64(k) / s2
		}
	case 2:
		// twice the quadratic coefficient of the least squares parabola
		var s2, s4 float64
		for k := -half; k <= half; k++ {
			kk := float64(k * k)
			s2 += kk
			s4 += kk * kk
		}
		m2 := s2 / float64(width)
		denom := s4 - float64(width)*m2*m2
		for k := -half; k <= half; k++ {
			coeffs[k+half] = 2 * (float64(k*k) - m2) / denom
		}
	}
	return coeffs
}
