package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/antispoof-pipeline/configs"
	"github.com/RyanBlaney/antispoof-pipeline/internal/pipeline"
	"github.com/RyanBlaney/antispoof-pipeline/internal/trigger"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/classifier"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/output"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/storage"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdictstore"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/warehouse"
)

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	OutputFile       string
	OutputFormat     string
	Timeout          time.Duration
	Workers          int
	WriteDisposition string
	Labels           []string
	ListenAddr       string
	Verbose          bool
	Quiet            bool

	// Viper is the configuration source; nil means the global instance.
	Viper *viper.Viper

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
}

// App builds collaborators from configuration on demand and owns their
// lifetimes.
type App struct {
	ctx    *Context
	config *configs.Config
	logger logging.Logger

	mu        sync.Mutex
	router    storage.Router
	extractor *features.Extractor
	closers   []func() error
}

// NewApp loads configuration and sets up logging.
func NewApp(ctx *Context) (*App, error) {
	config, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = config

	logger, err := setupLogging(ctx, config)
	if err != nil {
		return nil, err
	}
	ctx.Logger = logger

	logger.Debug("Application initialized", logging.Fields{
		"storage_backend": config.Storage.Backend,
		"output_format":   config.OutputFormat,
		"sample_rate":     config.Audio.SampleRate,
	})

	return &App{ctx: ctx, config: config, logger: logger}, nil
}

// setupLogging configures the process-wide logger from configuration
func setupLogging(ctx *Context, config *configs.Config) (logging.Logger, error) {
	if ctx.Logger != nil {
		return ctx.Logger, nil
	}
	logger, err := logging.New(logging.Options{Level: config.LogLevel, Format: config.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	logging.SetDefault(logger)
	return logger, nil
}

// Config returns the effective configuration.
func (a *App) Config() *configs.Config { return a.config }

// Close releases every collaborator the app opened, in reverse order.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// Router returns the object store router for the configured backend.
func (a *App) Router() (storage.Router, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.router != nil {
		return a.router, nil
	}

	cfg := a.config.Storage
	switch cfg.Backend {
	case "s3":
		client := storage.NewS3Client(storage.S3Config{
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
		})
		a.router = storage.NewS3Router(client, cfg.Bucket, cfg.Prefix)
	default:
		r, err := storage.NewLocalRouter(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to open local storage: %w", err)
		}
		a.router = r
	}
	return a.router, nil
}

// Extractor returns the shared feature extractor.
func (a *App) Extractor() (*features.Extractor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.extractor != nil {
		return a.extractor, nil
	}
	e, err := features.NewExtractor(a.config.FeatureConfig(), a.logger)
	if err != nil {
		return nil, err
	}
	a.extractor = e
	return e, nil
}

func (a *App) openSink() (*warehouse.SQLite, error) {
	cfg := a.config.Warehouse
	if cfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
			return nil, fmt.Errorf("failed to create warehouse directory: %w", err)
		}
	}
	sink, err := warehouse.OpenSQLite(cfg.DSN, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	a.onClose(sink.Close)
	return sink, nil
}

func (a *App) openVerdicts() (verdictstore.Store, error) {
	cfg := a.config.Verdicts
	var store verdictstore.Store
	switch cfg.Backend {
	case "memory":
		store = verdictstore.NewMemory(a.config.Trigger.Collection)
	default:
		b, err := verdictstore.NewBadger(verdictstore.BadgerOptions{
			Dir:        cfg.Dir,
			Collection: a.config.Trigger.Collection,
			Logger:     a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open verdict store: %w", err)
		}
		store = b
	}
	a.onClose(store.Close)
	return store, nil
}

func (a *App) newClassifier() (classifier.Classifier, error) {
	c, err := classifier.NewHTTPClient(a.config.Classifier, nil, a.logger)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return c, nil
}

// Handler builds the trigger handler with its collaborators.
func (a *App) Handler() (*trigger.Handler, error) {
	router, err := a.Router()
	if err != nil {
		return nil, err
	}
	extractor, err := a.Extractor()
	if err != nil {
		return nil, err
	}
	cls, err := a.newClassifier()
	if err != nil {
		return nil, err
	}
	store, err := a.openVerdicts()
	if err != nil {
		return nil, err
	}

	cfg := trigger.Config{
		Policy:          a.config.Policy(),
		ClassifyWorkers: a.config.Trigger.ClassifyWorkers,
		Timeout:         a.config.Trigger.Timeout,
		MaxFileBytes:    a.config.Storage.MaxFileBytes,
		RetryDelay:      trigger.DefaultConfig().RetryDelay,
	}
	return trigger.NewHandler(cfg, router, extractor, cls, store, a.logger)
}

// RunPipeline runs the batch pipeline and outputs its summary.
func (a *App) RunPipeline(ctx context.Context) error {
	router, err := a.Router()
	if err != nil {
		return err
	}
	store, err := router.Bucket("")
	if err != nil {
		return err
	}
	extractor, err := a.Extractor()
	if err != nil {
		return err
	}
	sink, err := a.openSink()
	if err != nil {
		return err
	}

	disposition, err := warehouse.ParseWriteDisposition(a.config.Pipeline.WriteDisposition)
	if err != nil {
		return err
	}
	orchestrator, err := pipeline.NewOrchestrator(pipeline.Config{
		Sources:      a.config.Pipeline.Sources,
		Labels:       a.config.Pipeline.LabelFilter,
		Workers:      a.config.Pipeline.Workers,
		Disposition:  disposition,
		MaxFileBytes: a.config.Storage.MaxFileBytes,
	}, store, extractor, sink, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline orchestrator: %w", err)
	}

	summary, err := orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	if err := a.outputResults(summary); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}

	if summary.FilesProcessed == 0 && summary.FilesFailed > 0 {
		return fmt.Errorf("all %d readable files failed", summary.FilesFailed)
	}
	return nil
}

// RunTrigger handles one object and outputs the result.
func (a *App) RunTrigger(ctx context.Context, ref trigger.ObjectRef) error {
	h, err := a.Handler()
	if err != nil {
		return err
	}
	res, err := h.Handle(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to handle %s: %w", ref, err)
	}
	return a.outputResults(res)
}

// Serve runs the HTTP trigger server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	h, err := a.Handler()
	if err != nil {
		return err
	}
	return trigger.NewServer(a.config.Trigger.ListenAddr, h, a.logger).ListenAndServe(ctx)
}

// ExtractFile extracts records from a local audio file and outputs them.
func (a *App) ExtractFile(ctx context.Context, path string, label *string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}
	extractor, err := a.Extractor()
	if err != nil {
		return err
	}
	records, err := extractor.ExtractBytes(ctx, data, filepath.Base(path), label)
	if err != nil {
		return err
	}

	a.logger.Debug("Extracted records", logging.Fields{
		"path":    path,
		"records": len(records),
	})
	return a.outputResults(recordTable{records: records, precision: a.config.Output.Precision})
}

// GetVerdict outputs the stored verdict for key, deleting it afterwards
// when consume is set.
func (a *App) GetVerdict(ctx context.Context, key string, consume bool) error {
	store, err := a.openVerdicts()
	if err != nil {
		return err
	}
	doc, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("verdict %q: %w", key, err)
	}
	if err := a.outputResults(doc); err != nil {
		return err
	}
	if consume {
		return store.Delete(ctx, key)
	}
	return nil
}

// DeleteVerdict removes the stored verdict for key.
func (a *App) DeleteVerdict(ctx context.Context, key string) error {
	store, err := a.openVerdicts()
	if err != nil {
		return err
	}
	return store.Delete(ctx, key)
}

// ListVerdicts outputs every stored verdict.
func (a *App) ListVerdicts(ctx context.Context) error {
	store, err := a.openVerdicts()
	if err != nil {
		return err
	}
	docs := []verdictstore.Document{}
	for doc, err := range store.List(ctx) {
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	return a.outputResults(verdictTable(docs))
}

// outputResults formats data and writes it to the output file or stdout
func (a *App) outputResults(data any) error {
	formatter := output.NewFormatter(a.config.OutputFormat, a.config.Output.Precision)
	formatted, err := formatter.Format(data, a.config.Output.Pretty)
	if err != nil {
		return fmt.Errorf("failed to format output data: %w", err)
	}

	if a.ctx.OutputFile != "" {
		return a.writeToFile(formatted)
	}
	_, err = os.Stdout.Write(formatted)
	return err
}

// writeToFile writes data to the specified output file
func (a *App) writeToFile(data []byte) error {
	if err := writeFile(a.ctx.OutputFile, data); err != nil {
		return err
	}
	a.logger.Debug("Results written to file", logging.Fields{
		"output_file": a.ctx.OutputFile,
		"size_bytes":  len(data),
	})
	return nil
}
