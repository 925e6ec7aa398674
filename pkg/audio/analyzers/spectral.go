package analyzers

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
)

// SpectralAnalyzer computes centred short-time Fourier transforms and the
// frame-level spectral descriptors derived from them.
type SpectralAnalyzer struct {
	windowGenerator *WindowGenerator
	sampleRate      int
	nFFT            int
	hopSize         int
	logger          logging.Logger
}

// SpectrogramResult holds the result of STFT analysis. Matrices are
// time-major: Magnitude[frame][bin].
type SpectrogramResult struct {
	Magnitude      [][]float64 `json:"magnitude"`
	TimeFrames     int         `json:"time_frames"`
	FreqBins       int         `json:"freq_bins"`
	SampleRate     int         `json:"sample_rate"`
	WindowSize     int         `json:"window_size"`
	HopSize        int         `json:"hop_size"`
	FreqResolution float64     `json:"freq_resolution"` // Hz per bin
	TimeResolution float64     `json:"time_resolution"` // seconds per frame
}

// NewSpectralAnalyzer creates a spectral analyzer for the given sample rate,
// FFT size and hop size. A nil logger selects the default logger.
func NewSpectralAnalyzer(sampleRate, nFFT, hopSize int, logger logging.Logger) *SpectralAnalyzer {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SpectralAnalyzer{
		windowGenerator: NewWindowGenerator(),
		sampleRate:      sampleRate,
		nFFT:            nFFT,
		hopSize:         hopSize,
		logger: logger.WithFields(logging.Fields{
			"component":   "spectral_analyzer",
			"sample_rate": sampleRate,
			"n_fft":       nFFT,
		}),
	}
}

// STFT computes the magnitude STFT of signal. Frames are centred: the
// signal is padded with nFFT/2 zeros on each side before framing, and
// each frame is multiplied by a periodic Hann window.
func (sa *SpectralAnalyzer) STFT(signal []float64) (*SpectrogramResult, error) {
	if len(signal) == 0 {
		return nil, sa.reject(fmt.Errorf("empty signal"), 0)
	}
	if sa.nFFT <= 0 || sa.hopSize <= 0 {
		return nil, sa.reject(fmt.Errorf("invalid STFT parameters: n_fft=%d hop=%d", sa.nFFT, sa.hopSize), len(signal))
	}

	padded := PadConstant(signal, sa.nFFT/2)
	numFrames := FrameCount(len(padded), sa.nFFT, sa.hopSize)
	if numFrames < 1 {
		return nil, sa.reject(fmt.Errorf("signal too short for n_fft=%d: %d samples", sa.nFFT, len(signal)), len(signal))
	}

	window := sa.windowGenerator.Hann(sa.nFFT)
	freqBins := sa.nFFT/2 + 1
	magnitude := make([][]float64, numFrames)
	frame := make([]float64, sa.nFFT)

	for t := range numFrames {
		start := t * sa.hopSize
		for i := range sa.nFFT {
			frame[i] = padded[start+i] * window[i]
		}

		spectrum := sa.FFT(frame)
		row := make([]float64, freqBins)
		for k := range freqBins {
			row[k] = cmplx.Abs(spectrum[k])
		}
		magnitude[t] = row
	}

	return &SpectrogramResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sa.sampleRate,
		WindowSize:     sa.nFFT,
		HopSize:        sa.hopSize,
		FreqResolution: float64(sa.sampleRate) / float64(sa.nFFT),
		TimeResolution: float64(sa.hopSize) / float64(sa.sampleRate),
	}, nil
}

func (sa *SpectralAnalyzer) reject(err error, samples int) error {
	sa.logger.Error(err, "STFT rejected input", logging.Fields{"samples": samples})
	return err
}

// FFT computes the Fast Fourier Transform using mjibson/go-dsp.
func (sa *SpectralAnalyzer) FFT(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputePowerSpectrum squares every magnitude.
func (sa *SpectralAnalyzer) ComputePowerSpectrum(spectrogram *SpectrogramResult) [][]float64 {
	power := make([][]float64, spectrogram.TimeFrames)
	for t := range spectrogram.TimeFrames {
		power[t] = make([]float64, spectrogram.FreqBins)
		for f, mag := range spectrogram.Magnitude[t] {
			power[t][f] = mag * mag
		}
	}
	return power
}

// GetFrequencyBins returns the centre frequency of each of the nFFT/2+1
// FFT bins.
func (sa *SpectralAnalyzer) GetFrequencyBins() []float64 {
	return FFTFrequencies(sa.sampleRate, sa.nFFT)
}

// SpectralCentroid returns the per-frame magnitude-weighted mean frequency.
func (sa *SpectralAnalyzer) SpectralCentroid(magnitude [][]float64) []float64 {
	freqs := sa.GetFrequencyBins()
	out := make([]float64, len(magnitude))
	for t, spectrum := range magnitude {
		out[t] = sa.calculateSpectralCentroid(spectrum, freqs)
	}
	return out
}

// SpectralBandwidth returns the per-frame second-order spread around the
// centroid.
func (sa *SpectralAnalyzer) SpectralBandwidth(magnitude [][]float64) []float64 {
	freqs := sa.GetFrequencyBins()
	out := make([]float64, len(magnitude))
	for t, spectrum := range magnitude {
		centroid := sa.calculateSpectralCentroid(spectrum, freqs)
		out[t] = sa.calculateSpectralBandwidth(spectrum, freqs, centroid)
	}
	return out
}

// SpectralRolloff returns, per frame, the lowest bin frequency at which the
// cumulative magnitude reaches rollPercent of the frame total.
func (sa *SpectralAnalyzer) SpectralRolloff(magnitude [][]float64, rollPercent float64) []float64 {
	freqs := sa.GetFrequencyBins()
	out := make([]float64, len(magnitude))
	for t, spectrum := range magnitude {
		out[t] = sa.calculateSpectralRolloff(spectrum, freqs, rollPercent)
	}
	return out
}

// SpectralFlatness returns, per frame, the ratio of geometric to
// arithmetic mean of the floored power spectrum.
func (sa *SpectralAnalyzer) SpectralFlatness(magnitude [][]float64, amin float64) []float64 {
	out := make([]float64, len(magnitude))
	for t, spectrum := range magnitude {
		out[t] = sa.calculateSpectralFlatness(spectrum, amin)
	}
	return out
}

func (sa *SpectralAnalyzer) calculateSpectralCentroid(spectrum []float64, freqs []float64) float64 {
	denominator := floats.Sum(spectrum)
	if denominator == 0 {
		return 0
	}
	return floats.Dot(freqs, spectrum) / denominator
}

func (sa *SpectralAnalyzer) calculateSpectralBandwidth(spectrum []float64, freqs []float64, centroid float64) float64 {
	denominator := floats.Sum(spectrum)
	if denominator == 0 {
		return 0
	}

	numerator := 0.0
	for i, mag := range spectrum {
		diff := freqs[i] - centroid
		numerator += mag / denominator * diff * diff
	}
	return math.Sqrt(numerator)
}

func (sa *SpectralAnalyzer) calculateSpectralRolloff(spectrum []float64, freqs []float64, threshold float64) float64 {
	target := threshold * floats.Sum(spectrum)

	cumulative := 0.0
	for i, mag := range spectrum {
		cumulative += mag
		if cumulative >= target {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

func (sa *SpectralAnalyzer) calculateSpectralFlatness(spectrum []float64, amin float64) float64 {
	if len(spectrum) == 0 {
		return 0
	}

	logSum := 0.0
	sum := 0.0
	for _, mag := range spectrum {
		p := math.Max(amin, mag*mag)
		logSum += math.Log(p)
		sum += p
	}

	n := float64(len(spectrum))
	return math.Exp(logSum/n) / (sum / n)
}

// FFTFrequencies returns the frequencies of the nFFT/2+1 real FFT bins.
func FFTFrequencies(sampleRate, nFFT int) []float64 {
	bins := nFFT/2 + 1
	freqs := make([]float64, bins)
	for i := range bins {
		freqs[i] = float64(i) * float64(sampleRate) / float64(nFFT)
	}
	return freqs
}

// FrameCount returns how many full frames of frameLength fit in n samples
// at the given hop.
func FrameCount(n, frameLength, hop int) int {
	if n < frameLength {
		return 0
	}
	return 1 + (n-frameLength)/hop
}

// PadConstant returns x with pad zeros on each side.
func PadConstant(x []float64, pad int) []float64 {
	out := make([]float64, len(x)+2*pad)
	copy(out[pad:], x)
	return out
}

// PadEdge returns x with pad copies of its first and last sample on each
// side.
func PadEdge(x []float64, pad int) []float64 {
	out := make([]float64, len(x)+2*pad)
	copy(out[pad:], x)
	if len(x) == 0 {
		return out
	}
	for i := range pad {
		out[i] = x[0]
		out[len(out)-1-i] = x[len(x)-1]
	}
	return out
}
