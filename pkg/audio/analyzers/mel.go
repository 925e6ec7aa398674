package analyzers

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale constants: linear below 1 kHz, logarithmic above.
const (
	melFSp      = 200.0 / 3
	melMinLogHz = 1000.0
	melMinLog   = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// HzToMel converts a frequency to the Slaney mel scale.
func HzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLog + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// MelToHz converts a Slaney mel value back to Hz.
func MelToHz(mel float64) float64 {
	if mel >= melMinLog {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLog))
	}
	return melFSp * mel
}

// MelFilterBank builds an nMels x (nFFT/2+1) triangular filter bank on the
// Slaney mel scale with area (slaney) normalisation.
func MelFilterBank(sampleRate, nFFT, nMels int, fmin, fmax float64) *mat.Dense {
	fftFreqs := FFTFrequencies(sampleRate, nFFT)

	melPoints := make([]float64, nMels+2)
	floats.Span(melPoints, HzToMel(fmin), HzToMel(fmax))
	melF := make([]float64, nMels+2)
	for i, m := range melPoints {
		melF[i] = MelToHz(m)
	}

	fdiff := make([]float64, nMels+1)
	for i := range fdiff {
		fdiff[i] = melF[i+1] - melF[i]
	}

	weights := mat.NewDense(nMels, len(fftFreqs), nil)
	for i := range nMels {
		enorm := 2.0 / (melF[i+2] - melF[i])
		for j, f := range fftFreqs {
			lower := -(melF[i] - f) / fdiff[i]
			upper := (melF[i+2] - f) / fdiff[i+1]
			w := math.Max(0, math.Min(lower, upper))
			weights.Set(i, j, w*enorm)
		}
	}
	return weights
}

// ApplyFilterBank projects a time-major power spectrogram through a
// filter bank and returns a band-major matrix (bands x frames).
func ApplyFilterBank(fb *mat.Dense, power [][]float64) *mat.Dense {
	frames := len(power)
	bins := len(power[0])
	spec := mat.NewDense(frames, bins, nil)
	for t, row := range power {
		spec.SetRow(t, row)
	}

	bands, _ := fb.Dims()
	out := mat.NewDense(bands, frames, nil)
	out.Mul(fb, spec.T())
	return out
}

// PowerToDB converts a power matrix to decibels relative to ref, flooring
// at amin and clipping everything more than topDB below the matrix peak.
// A non-positive topDB disables clipping. The matrix is modified in place.
func PowerToDB(m *mat.Dense, ref, amin, topDB float64) *mat.Dense {
	refDB := 10 * math.Log10(math.Max(amin, math.Abs(ref)))
	peak := math.Inf(-1)
	m.Apply(func(_, _ int, v float64) float64 {
		db := 10*math.Log10(math.Max(amin, v)) - refDB
		peak = math.Max(peak, db)
		return db
	}, m)

	if topDB > 0 {
		floor := peak - topDB
		m.Apply(func(_, _ int, v float64) float64 {
			return math.Max(v, floor)
		}, m)
	}
	return m
}

// DCTOrtho computes the first nCoeffs coefficients of the orthonormal
// type-II DCT along the rows of x (rows x frames), returning a
// coefficient-major nCoeffs x frames matrix.
func DCTOrtho(x *mat.Dense, nCoeffs int) *mat.Dense {
	n, frames := x.Dims()
	basis := mat.NewDense(nCoeffs, n, nil)
	for k := range nCoeffs {
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		for i := range n {
			basis.Set(k, i, scale*math.Cos(math.Pi*float64(k)*float64(2*i+1)/float64(2*n)))
		}
	}

	out := mat.NewDense(nCoeffs, frames, nil)
	out.Mul(basis, x)
	return out
}

// MFCCConfig holds the mel cepstrum parameters.
type MFCCConfig struct {
	NMFCC int
	NMels int
	FMin  float64
	FMax  float64 // 0 means Nyquist
	TopDB float64
	AMin  float64
}

// MFCCAnalyzer computes mel-frequency cepstral coefficients from power
// spectrograms. The filter bank is built once.
type MFCCAnalyzer struct {
	config MFCCConfig
	fb     *mat.Dense
}

// NewMFCCAnalyzer builds the mel filter bank for the given STFT geometry.
func NewMFCCAnalyzer(sampleRate, nFFT int, config MFCCConfig) *MFCCAnalyzer {
	fmax := config.FMax
	if fmax <= 0 {
		fmax = float64(sampleRate) / 2
	}
	return &MFCCAnalyzer{
		config: config,
		fb:     MelFilterBank(sampleRate, nFFT, config.NMels, config.FMin, fmax),
	}
}

// Compute returns the MFCC matrix (coefficients x frames) for a
// time-major power spectrogram.
func (ma *MFCCAnalyzer) Compute(power [][]float64) [][]float64 {
	mel := ApplyFilterBank(ma.fb, power)
	PowerToDB(mel, 1.0, ma.config.AMin, ma.config.TopDB)
	return DenseRows(DCTOrtho(mel, ma.config.NMFCC))
}

// DenseRows copies a matrix into a slice of rows.
func DenseRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range r {
		out[i] = make([]float64, c)
		mat.Row(out[i], i, m)
	}
	return out
}
