package pipeline

import (
	"time"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/manifest"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/warehouse"
)

// FileStatus is the outcome for one manifest entry.
type FileStatus string

const (
	StatusProcessed FileStatus = "processed"
	StatusMissing   FileStatus = "missing"
	StatusFailed    FileStatus = "failed"
)

// Config holds the batch run settings.
type Config struct {
	Sources     []manifest.Source
	Labels      []string
	Workers     int
	Disposition warehouse.WriteDisposition
	// MaxFileBytes caps the size of a fetched audio object; zero disables
	// the cap.
	MaxFileBytes int64
}

// FileResult records what happened to one entry.
type FileResult struct {
	Path     string        `json:"path"`
	Label    string        `json:"label"`
	Status   FileStatus    `json:"status"`
	Windows  int           `json:"windows"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
	Category string        `json:"category,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Failure is a file that could not be processed.
type Failure struct {
	Path     string `json:"path" yaml:"path"`
	Category string `json:"category" yaml:"category"`
	Error    string `json:"error" yaml:"error"`
}

// Summary describes a completed batch run.
type Summary struct {
	RunID          string         `json:"run_id" yaml:"run_id"`
	Disposition    string         `json:"write_disposition" yaml:"write_disposition"`
	StartTime      time.Time      `json:"start_time" yaml:"start_time"`
	EndTime        time.Time      `json:"end_time" yaml:"end_time"`
	TotalDuration  time.Duration  `json:"total_duration" yaml:"total_duration"`
	FilesListed    int            `json:"files_listed" yaml:"files_listed"`
	FilesMissing   int            `json:"files_missing" yaml:"files_missing"`
	FilesFailed    int            `json:"files_failed" yaml:"files_failed"`
	FilesProcessed int            `json:"files_processed" yaml:"files_processed"`
	RowsWritten    int            `json:"rows_written" yaml:"rows_written"`
	WindowsDropped int            `json:"windows_dropped" yaml:"windows_dropped"`
	LabelCounts    map[string]int `json:"label_counts" yaml:"label_counts"`
	ErrorsByKind   map[string]int `json:"errors_by_kind,omitempty" yaml:"errors_by_kind,omitempty"`
	ProcessingTime *DurationStats `json:"processing_time_s" yaml:"processing_time_s"`
	Failures       []Failure      `json:"failures,omitempty" yaml:"failures,omitempty"`
}
