// Package verdict reduces per-window spoof flags to one prediction per file.
package verdict

import (
	"fmt"
)

// Prediction is the file-level outcome.
type Prediction string

const (
	PredictionBonafide Prediction = "bonafide"
	PredictionSpoof    Prediction = "spoof"
	// PredictionUndetermined is reported when no window could be judged.
	PredictionUndetermined Prediction = "undetermined"
)

// Record is the aggregate verdict for one file.
type Record struct {
	SpoofCount   int        `json:"spoof_count" yaml:"spoof_count" msgpack:"spoof_count"`
	TotalWindows int        `json:"total_windows" yaml:"total_windows" msgpack:"total_windows"`
	Prediction   Prediction `json:"prediction" yaml:"prediction" msgpack:"prediction"`
}

// Ratio returns the fraction of spoof windows, or 0 when there are none.
func (r Record) Ratio() float64 {
	if r.TotalWindows == 0 {
		return 0
	}
	return float64(r.SpoofCount) / float64(r.TotalWindows)
}

// Policy holds the decision thresholds. Files with at most SmallSampleMax
// windows use SmallSampleRatio; longer files use LargeSampleRatio. A file
// is spoof when its spoof ratio reaches the applicable cut.
type Policy struct {
	ConfidenceThreshold float64 `json:"confidence_threshold" mapstructure:"confidence_threshold"`
	SmallSampleMax      int     `json:"small_sample_max" mapstructure:"small_sample_max"`
	SmallSampleRatio    float64 `json:"small_sample_ratio" mapstructure:"small_sample_ratio"`
	LargeSampleRatio    float64 `json:"large_sample_ratio" mapstructure:"large_sample_ratio"`
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceThreshold: 0.78,
		SmallSampleMax:      10,
		SmallSampleRatio:    0.5,
		LargeSampleRatio:    0.6,
	}
}

// Validate checks that every threshold is a usable probability.
func (p Policy) Validate() error {
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	if p.SmallSampleMax < 0 {
		return fmt.Errorf("small sample max cannot be negative")
	}
	if p.SmallSampleRatio < 0 || p.SmallSampleRatio > 1 {
		return fmt.Errorf("small sample ratio must be between 0 and 1")
	}
	if p.LargeSampleRatio < 0 || p.LargeSampleRatio > 1 {
		return fmt.Errorf("large sample ratio must be between 0 and 1")
	}
	return nil
}

// Flag reports whether a window's spoof score counts as spoof.
func (p Policy) Flag(spoofScore float64) bool {
	return spoofScore >= p.ConfidenceThreshold
}

// Aggregate counts spoof flags and applies the tiered ratio cut. An empty
// flag set yields PredictionUndetermined.
func Aggregate(flags []bool, policy Policy) Record {
	rec := Record{TotalWindows: len(flags)}
	for _, f := range flags {
		if f {
			rec.SpoofCount++
		}
	}

	if rec.TotalWindows == 0 {
		rec.Prediction = PredictionUndetermined
		return rec
	}

	cut := policy.LargeSampleRatio
	if rec.TotalWindows <= policy.SmallSampleMax {
		cut = policy.SmallSampleRatio
	}

	rec.Prediction = PredictionBonafide
	if rec.Ratio() >= cut {
		rec.Prediction = PredictionSpoof
	}
	return rec
}
