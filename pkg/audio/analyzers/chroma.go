package analyzers

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ChromaConfig holds chroma filter bank and tuning estimation parameters.
type ChromaConfig struct {
	NChroma         int
	CenterOctave    float64
	OctaveWidth     float64
	TuningFMin      float64
	TuningFMax      float64
	TuningThreshold float64
	TuningStep      float64 // histogram resolution in bins
}

// HzToOcts converts frequencies to octave numbers relative to A0 for a
// tuning deviation given in fractions of a bin.
func HzToOcts(hz, tuning float64, binsPerOctave int) float64 {
	a440 := 440.0 * math.Pow(2, tuning/float64(binsPerOctave))
	return math.Log2(hz / (a440 / 16))
}

// PeakPitches locates interpolated spectral peaks in a time-major power
// spectrogram. A bin is a peak when it is a local maximum among bins above
// threshold times the frame maximum and lies within [fmin, fmax). The
// returned slices hold one entry per peak.
func PeakPitches(power [][]float64, sampleRate, nFFT int, fmin, fmax, threshold float64) (pitches, mags []float64) {
	freqs := FFTFrequencies(sampleRate, nFFT)
	fmin = math.Max(fmin, 0)
	fmax = math.Min(fmax, float64(sampleRate)/2)

	for _, s := range power {
		n := len(s)
		if n < 3 {
			continue
		}
		ref := threshold * floats.Max(s)

		gated := make([]float64, n)
		for i, v := range s {
			if v > ref {
				gated[i] = v
			}
		}

		for i := range n {
			if freqs[i] < fmin || freqs[i] >= fmax {
				continue
			}
			prev := gated[max(i-1, 0)]
			next := gated[min(i+1, n-1)]
			if !(gated[i] > prev && gated[i] >= next) {
				continue
			}

			var avg, shift float64
			if i > 0 && i < n-1 {
				avg = 0.5 * (s[i+1] - s[i-1])
				a := s[i+1] + s[i-1] - 2*s[i]
				if math.Abs(avg) < math.Abs(a) {
					shift = -avg / a
				}
			} else if i == 0 {
				avg = s[1] - s[0]
			} else {
				avg = s[n-1] - s[n-2]
			}

			pitches = append(pitches, (float64(i)+shift)*float64(sampleRate)/float64(nFFT))
			mags = append(mags, s[i]+0.5*avg*shift)
		}
	}
	return pitches, mags
}

// PitchTuning estimates the tuning deviation, in fractions of a bin, of a
// set of frequencies by histogramming their distance to the nearest bin.
// It returns 0 when there are no positive frequencies.
func PitchTuning(frequencies []float64, resolution float64, binsPerOctave int) float64 {
	var residuals []float64
	for _, f := range frequencies {
		if f <= 0 {
			continue
		}
		r := math.Mod(float64(binsPerOctave)*HzToOcts(f, 0, binsPerOctave), 1.0)
		if r < 0 {
			r += 1.0
		}
		if r >= 0.5 {
			r -= 1.0
		}
		residuals = append(residuals, r)
	}
	if len(residuals) == 0 {
		return 0
	}

	nBins := int(math.Ceil(1.0 / resolution))
	edges := make([]float64, nBins+1)
	step := 1.0 / float64(nBins)
	for i := range nBins {
		edges[i] = -0.5 + float64(i)*step
	}
	edges[nBins] = 0.5

	counts := make([]int, nBins)
	for _, r := range residuals {
		idx := int((r + 0.5) * float64(nBins))
		if idx >= nBins {
			idx = nBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		if r < edges[idx] && idx > 0 {
			idx--
		} else if idx < nBins-1 && r >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}

	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return edges[best]
}

// EstimateTuning estimates the tuning offset of a power spectrogram from
// its strongest interpolated peaks (those at or above the median peak
// magnitude).
func EstimateTuning(power [][]float64, sampleRate, nFFT int, cfg ChromaConfig) float64 {
	pitches, mags := PeakPitches(power, sampleRate, nFFT, cfg.TuningFMin, cfg.TuningFMax, cfg.TuningThreshold)
	if len(pitches) == 0 {
		return 0
	}

	sorted := append([]float64(nil), mags...)
	sort.Float64s(sorted)
	threshold := median(sorted)

	var selected []float64
	for i, p := range pitches {
		if mags[i] >= threshold {
			selected = append(selected, p)
		}
	}
	return PitchTuning(selected, cfg.TuningStep, cfg.NChroma)
}

// ChromaFilterBank builds an nChroma x (nFFT/2+1) filter bank mapping STFT
// bins onto pitch classes starting at C. Each bin contributes a Gaussian
// bump around its fractional chroma position; columns are L2 normalised
// and weighted by a Gaussian over octaves centred at CenterOctave.
func ChromaFilterBank(sampleRate, nFFT int, tuning float64, cfg ChromaConfig) *mat.Dense {
	nChroma := cfg.NChroma
	nc := float64(nChroma)

	frqbins := make([]float64, nFFT)
	for i := 1; i < nFFT; i++ {
		hz := float64(i) * float64(sampleRate) / float64(nFFT)
		frqbins[i] = nc * HzToOcts(hz, tuning, nChroma)
	}
	frqbins[0] = frqbins[1] - 1.5*nc

	binwidth := make([]float64, nFFT)
	for i := 0; i < nFFT-1; i++ {
		binwidth[i] = math.Max(frqbins[i+1]-frqbins[i], 1.0)
	}
	binwidth[nFFT-1] = 1

	half := math.Round(nc / 2)
	keep := nFFT/2 + 1
	wts := mat.NewDense(nChroma, keep, nil)
	col := make([]float64, nChroma)

	for j := range keep {
		for c := range nChroma {
			d := frqbins[j] - float64(c)
			d = math.Mod(d+half+10*nc, nc)
			if d < 0 {
				d += nc
			}
			d -= half
			x := 2 * d / binwidth[j]
			col[c] = math.Exp(-0.5 * x * x)
		}

		if norm := floats.Norm(col, 2); norm > 0 {
			floats.Scale(1/norm, col)
		}

		if cfg.OctaveWidth > 0 {
			o := (frqbins[j]/nc - cfg.CenterOctave) / cfg.OctaveWidth
			floats.Scale(math.Exp(-0.5*o*o), col)
		}

		// roll so row 0 is C rather than A
		shift := 3 * (nChroma / 12)
		for c := range nChroma {
			wts.Set(c, j, col[(c+shift)%nChroma])
		}
	}
	return wts
}

// Chroma projects a time-major power spectrogram onto pitch classes and
// max-normalises every frame. Frames with no energy stay zero. The result
// is chroma-major (nChroma x frames).
func Chroma(power [][]float64, sampleRate, nFFT int, cfg ChromaConfig) [][]float64 {
	tuning := EstimateTuning(power, sampleRate, nFFT, cfg)
	fb := ChromaFilterBank(sampleRate, nFFT, tuning, cfg)
	raw := ApplyFilterBank(fb, power)

	nChroma, frames := raw.Dims()
	colBuf := make([]float64, nChroma)
	for t := range frames {
		mat.Col(colBuf, t, raw)
		peak := 0.0
		for _, v := range colBuf {
			peak = math.Max(peak, math.Abs(v))
		}
		if peak < math.SmallestNonzeroFloat64 {
			continue
		}
		for c := range nChroma {
			raw.Set(c, t, colBuf[c]/peak)
		}
	}
	return DenseRows(raw)
}

// median of an ascending slice; even lengths average the middle pair.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}
