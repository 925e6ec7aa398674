package analyzers

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// ContrastConfig holds the octave band layout for spectral contrast.
type ContrastConfig struct {
	FMin     float64
	NBands   int
	Quantile float64
	AMin     float64
	TopDB    float64
}

// SpectralContrast returns the peak-to-valley contrast in dB for NBands
// octave bands starting at FMin plus one residual band, as a band-major
// (NBands+1) x frames matrix. magnitude is time-major.
func SpectralContrast(magnitude [][]float64, sampleRate, nFFT int, cfg ContrastConfig) ([][]float64, error) {
	if cfg.NBands < 1 {
		return nil, fmt.Errorf("spectral contrast needs at least one band, got %d", cfg.NBands)
	}
	if cfg.Quantile <= 0 || cfg.Quantile >= 1 {
		return nil, fmt.Errorf("spectral contrast quantile must be in (0, 1), got %v", cfg.Quantile)
	}

	freqs := FFTFrequencies(sampleRate, nFFT)
	nyquist := float64(sampleRate) / 2
	if cfg.FMin*math.Pow(2, float64(cfg.NBands-1)) >= nyquist {
		return nil, fmt.Errorf("spectral contrast: fmin=%v with %d bands exceeds nyquist %v", cfg.FMin, cfg.NBands, nyquist)
	}

	edges := make([]float64, cfg.NBands+2)
	for i := 1; i < len(edges); i++ {
		edges[i] = cfg.FMin * math.Pow(2, float64(i-1))
	}

	frames := len(magnitude)
	peak := mat.NewDense(cfg.NBands+1, frames, nil)
	valley := mat.NewDense(cfg.NBands+1, frames, nil)

	for k := 0; k <= cfg.NBands; k++ {
		lo, hi := edges[k], edges[k+1]
		inBand := make([]bool, len(freqs))
		first, last := -1, -1
		for i, f := range freqs {
			if f >= lo && f <= hi {
				inBand[i] = true
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			return nil, fmt.Errorf("spectral contrast band %d [%v, %v] has no bins", k, lo, hi)
		}
		if k > 0 {
			inBand[first-1] = true
		}
		if k == cfg.NBands {
			for i := last + 1; i < len(inBand); i++ {
				inBand[i] = true
			}
		}

		var bins []int
		for i, ok := range inBand {
			if ok {
				bins = append(bins, i)
			}
		}
		count := len(bins)
		if k < cfg.NBands {
			bins = bins[:len(bins)-1]
		}

		idx := max(int(math.RoundToEven(cfg.Quantile*float64(count))), 1)

		sub := make([]float64, len(bins))
		for t, spectrum := range magnitude {
			for j, b := range bins {
				sub[j] = spectrum[b]
			}
			slices.Sort(sub)

			n := min(idx, len(sub))
			var lowSum, highSum float64
			for j := range n {
				lowSum += sub[j]
				highSum += sub[len(sub)-1-j]
			}
			valley.Set(k, t, lowSum/float64(n))
			peak.Set(k, t, highSum/float64(n))
		}
	}

	PowerToDB(peak, 1.0, cfg.AMin, cfg.TopDB)
	PowerToDB(valley, 1.0, cfg.AMin, cfg.TopDB)

	var contrast mat.Dense
	contrast.Sub(peak, valley)
	return DenseRows(&contrast), nil
}
