// Package pipeline runs the batch feature extraction: it lists labelled
// audio files from manifests, extracts per-window features and appends
// them to the warehouse.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/manifest"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/storage"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/warehouse"
)

// Orchestrator coordinates one batch run.
type Orchestrator struct {
	config    Config
	store     storage.FileStore
	extractor *features.Extractor
	sink      warehouse.RowSink
	logger    logging.Logger
	metrics   *MetricsCalculator

	appendMu sync.Mutex
}

// NewOrchestrator creates a new batch orchestrator.
func NewOrchestrator(cfg Config, store storage.FileStore, extractor *features.Extractor, sink warehouse.RowSink, logger logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if store == nil || extractor == nil || sink == nil {
		return nil, errors.New("pipeline: store, extractor and sink are required")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("pipeline: at least one manifest source is required")
	}
	if cfg.Disposition == "" {
		cfg.Disposition = warehouse.WriteTruncate
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	logger = logger.WithFields(logging.Fields{"component": "pipeline"})
	return &Orchestrator{
		config:    cfg,
		store:     store,
		extractor: extractor,
		sink:      sink,
		logger:    logger,
		metrics:   NewMetricsCalculator(logger),
	}, nil
}

// Run lists every manifest entry, processes the files with a bounded pool
// and returns the run summary. Per-file failures are counted, not
// returned; errors from the manifest or the sink abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	logger := o.logger.WithFields(logging.Fields{"run_id": runID})

	entries, err := manifest.Load(ctx, o.store, o.config.Sources, o.config.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifests: %w", err)
	}

	logger.Info("Starting batch run", logging.Fields{
		"files":       len(entries),
		"sources":     len(o.config.Sources),
		"workers":     o.config.Workers,
		"disposition": string(o.config.Disposition),
	})

	if err := o.sink.Prepare(ctx, o.config.Disposition); err != nil {
		return nil, fmt.Errorf("failed to prepare warehouse: %w", err)
	}

	results := make([]FileResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, entry := range entries {
		g.Go(func() error {
			res, err := o.processFile(gctx, runID, entry)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	endTime := time.Now()
	summary := &Summary{
		RunID:         runID,
		Disposition:   string(o.config.Disposition),
		StartTime:     startTime,
		EndTime:       endTime,
		TotalDuration: endTime.Sub(startTime),
		FilesListed:   len(entries),
	}
	o.metrics.Summarize(summary, results)

	logger.Info("Batch run completed", logging.Fields{
		"processed":       summary.FilesProcessed,
		"missing":         summary.FilesMissing,
		"failed":          summary.FilesFailed,
		"rows":            summary.RowsWritten,
		"windows_dropped": summary.WindowsDropped,
		"total_time_s":    summary.TotalDuration.Seconds(),
	})
	return summary, nil
}

// processFile handles one entry. The returned error is non-nil only for
// failures that must stop the run.
func (o *Orchestrator) processFile(ctx context.Context, runID string, entry manifest.Entry) (FileResult, error) {
	start := time.Now()
	res := FileResult{Path: entry.Path, Label: entry.Label}
	fields := logging.Fields{"path": entry.Path, "label": entry.Label}

	fail := func(err error) (FileResult, error) {
		res.Status = StatusFailed
		res.Category = categorizeError(err)
		res.Error = err.Error()
		res.Duration = time.Since(start)
		o.logger.Error(err, "Skipping file", fields)
		if res.Category == "canceled" {
			return res, err
		}
		return res, nil
	}

	exists, err := o.store.Exists(ctx, entry.Path)
	if err != nil {
		return fail(err)
	}
	if !exists {
		res.Status = StatusMissing
		o.logger.Debug("File missing from store", fields)
		return res, nil
	}

	data, err := storage.Fetch(ctx, o.store, entry.Path, o.config.MaxFileBytes)
	if err != nil {
		return fail(err)
	}

	signal, err := o.extractor.Decoder().Decode(data, entry.Path)
	if err != nil {
		return fail(err)
	}
	res.Windows = o.extractor.NumWindows(len(signal.Samples), signal.SampleRate)

	label := entry.Label
	records, err := o.extractor.Collect(ctx, signal.Samples, signal.SampleRate, &label)
	if err != nil {
		return fail(err)
	}

	rows := make([]warehouse.Row, len(records))
	for i, rec := range records {
		rows[i] = warehouse.Row{RunID: runID, SourcePath: entry.Path, Record: rec}
	}
	if len(rows) > 0 {
		o.appendMu.Lock()
		err = o.sink.Append(ctx, rows)
		o.appendMu.Unlock()
		if err != nil {
			return res, fmt.Errorf("failed to append rows for %s: %w", entry.Path, err)
		}
	}

	res.Status = StatusProcessed
	res.Records = len(records)
	res.Duration = time.Since(start)

	fields["records"] = res.Records
	fields["windows"] = res.Windows
	o.logger.Debug("File processed", fields)
	return res, nil
}
