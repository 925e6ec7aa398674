package features

import (
	"math"
)

// Record is the feature vector of one analysis window. Scalar features are
// nil when their value is not finite. Matrix features are flattened
// coefficient-major, preserving frame order within each coefficient.
type Record struct {
	ChromaSTFT        *float64  `json:"chroma_stft"`
	RMSE              *float64  `json:"rmse"`
	SpectralCentroid  *float64  `json:"spectral_centroid"`
	SpectralBandwidth *float64  `json:"spectral_bandwidth"`
	Rolloff           *float64  `json:"rolloff"`
	ZeroCrossingRate  *float64  `json:"zero_crossing_rate"`
	MFCC              []float64 `json:"mfcc"`
	MFCCDelta         []float64 `json:"mfcc_delta"`
	MFCCDelta2        []float64 `json:"mfcc_delta2"`
	SNR               *float64  `json:"snr"`
	SpectralContrast  []float64 `json:"spectral_contrast"`
	SpectralFlatness  *float64  `json:"spectral_flatness"`
	Label             *string   `json:"label,omitempty"`

	// Window is the zero-based index of the window within its signal.
	Window int `json:"-"`
}

// Scalars returns the scalar features keyed by their column names.
func (r *Record) Scalars() map[string]*float64 {
	return map[string]*float64{
		"chroma_stft":        r.ChromaSTFT,
		"rmse":               r.RMSE,
		"spectral_centroid":  r.SpectralCentroid,
		"spectral_bandwidth": r.SpectralBandwidth,
		"rolloff":            r.Rolloff,
		"zero_crossing_rate": r.ZeroCrossingRate,
		"snr":                r.SNR,
		"spectral_flatness":  r.SpectralFlatness,
	}
}

// ScalarNames lists the scalar feature columns in schema order.
var ScalarNames = []string{
	"chroma_stft",
	"rmse",
	"spectral_centroid",
	"spectral_bandwidth",
	"rolloff",
	"zero_crossing_rate",
	"snr",
	"spectral_flatness",
}

// VectorNames lists the repeated feature columns in schema order.
var VectorNames = []string{
	"mfcc",
	"mfcc_delta",
	"mfcc_delta2",
	"spectral_contrast",
}

// Vectors returns the repeated features keyed by their column names.
func (r *Record) Vectors() map[string][]float64 {
	return map[string][]float64{
		"mfcc":              r.MFCC,
		"mfcc_delta":        r.MFCCDelta,
		"mfcc_delta2":       r.MFCCDelta2,
		"spectral_contrast": r.SpectralContrast,
	}
}

// finite returns a pointer to v, or nil when v is NaN or infinite.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// flatten concatenates rows.
func flatten(rows [][]float64) []float64 {
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	out := make([]float64, 0, n)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
