package features

import (
	"fmt"
	"time"
)

// Config holds the windowing and short-time analysis parameters.
type Config struct {
	SampleRate       int           `json:"sample_rate"`
	WindowDuration   time.Duration `json:"window_duration"`
	NFFT             int           `json:"n_fft"`
	HopLength        int           `json:"hop_length"`
	NMFCC            int           `json:"n_mfcc"`
	NMels            int           `json:"n_mels"`
	DeltaWidth       int           `json:"delta_width"`
	NChroma          int           `json:"n_chroma"`
	RolloffPercent   float64       `json:"rolloff_percent"`
	ContrastFMin     float64       `json:"contrast_fmin"`
	ContrastBands    int           `json:"contrast_bands"`
	ContrastQuantile float64       `json:"contrast_quantile"`
	TopDB            float64       `json:"top_db"`
	AMin             float64       `json:"amin"`
	ZCRThreshold     float64       `json:"zcr_threshold"`
	Workers          int           `json:"workers"`
}

// DefaultConfig returns the parameters the classifier was trained with:
// 2 s windows at 22050 Hz, 2048-point frames with a 512 hop.
func DefaultConfig() Config {
	return Config{
		SampleRate:       22050,
		WindowDuration:   2 * time.Second,
		NFFT:             2048,
		HopLength:        512,
		NMFCC:            13,
		NMels:            128,
		DeltaWidth:       9,
		NChroma:          12,
		RolloffPercent:   0.85,
		ContrastFMin:     200,
		ContrastBands:    6,
		ContrastQuantile: 0.02,
		TopDB:            80,
		AMin:             1e-10,
		ZCRThreshold:     1e-10,
		Workers:          0,
	}
}

// Validate checks the configuration for values the analyzers cannot use.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("window duration must be positive")
	}
	if c.NFFT <= 0 || c.HopLength <= 0 {
		return fmt.Errorf("n_fft and hop_length must be positive")
	}
	if c.NMFCC <= 0 || c.NMels <= 0 || c.NMFCC > c.NMels {
		return fmt.Errorf("n_mfcc must be in [1, n_mels]")
	}
	if c.DeltaWidth < 3 || c.DeltaWidth%2 == 0 {
		return fmt.Errorf("delta width must be an odd integer >= 3")
	}
	if c.NChroma <= 0 {
		return fmt.Errorf("n_chroma must be positive")
	}
	if c.RolloffPercent <= 0 || c.RolloffPercent >= 1 {
		return fmt.Errorf("rolloff percent must be between 0 and 1")
	}
	if c.ContrastQuantile <= 0 || c.ContrastQuantile >= 1 {
		return fmt.Errorf("contrast quantile must be between 0 and 1")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	return nil
}

// WindowLength returns the number of samples per window at sampleRate.
func (c Config) WindowLength(sampleRate int) int {
	return int(c.WindowDuration.Seconds() * float64(sampleRate))
}
