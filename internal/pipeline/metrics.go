package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/decode"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
)

// MetricsCalculator derives run statistics from per-file results.
type MetricsCalculator struct {
	logger logging.Logger
}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator(logger logging.Logger) *MetricsCalculator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &MetricsCalculator{
		logger: logger,
	}
}

// DurationStats summarises per-file processing times in seconds.
type DurationStats struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	P95    float64 `json:"p95" yaml:"p95"`
	P99    float64 `json:"p99" yaml:"p99"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Count  int     `json:"count" yaml:"count"`
}

// Summarize folds file results into summary counters.
func (mc *MetricsCalculator) Summarize(summary *Summary, results []FileResult) {
	summary.LabelCounts = make(map[string]int)
	summary.ErrorsByKind = make(map[string]int)

	var durations []float64
	for _, r := range results {
		switch r.Status {
		case StatusProcessed:
			summary.FilesProcessed++
			summary.RowsWritten += r.Records
			summary.WindowsDropped += r.Windows - r.Records
			summary.LabelCounts[r.Label] += r.Records
			durations = append(durations, r.Duration.Seconds())
		case StatusMissing:
			summary.FilesMissing++
		case StatusFailed:
			summary.FilesFailed++
			summary.ErrorsByKind[r.Category]++
			summary.Failures = append(summary.Failures, Failure{
				Path:     r.Path,
				Category: r.Category,
				Error:    r.Error,
			})
		}
	}

	summary.ProcessingTime = mc.calculateStats(durations)

	mc.logger.Debug("Summarized run", logging.Fields{
		"processed": summary.FilesProcessed,
		"missing":   summary.FilesMissing,
		"failed":    summary.FilesFailed,
		"rows":      summary.RowsWritten,
	})
}

// calculateStats calculates statistical measures for a dataset
func (mc *MetricsCalculator) calculateStats(data []float64) *DurationStats {
	if len(data) == 0 {
		return &DurationStats{Count: 0}
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	stats := &DurationStats{
		Count:  len(data),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
	}
	stats.Mean, stats.StdDev = stat.PopMeanStdDev(data, nil)

	return sanitizeStats(stats)
}

// sanitizeStats zeroes non-finite values so the summary always encodes.
func sanitizeStats(stats *DurationStats) *DurationStats {
	for _, v := range []*float64{&stats.Mean, &stats.Median, &stats.P95, &stats.P99, &stats.Min, &stats.Max, &stats.StdDev} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	return stats
}

// percentile linearly interpolates the p-th percentile of sorted data.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// categorizeError buckets a per-file failure.
func categorizeError(err error) string {
	var decErr *decode.Error
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &decErr):
		return "decode"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, os.ErrNotExist):
		return "missing"
	default:
		return "storage"
	}
}
