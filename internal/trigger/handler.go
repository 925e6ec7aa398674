// Package trigger turns a single stored audio object into a persisted
// file-level verdict, and serves that flow over HTTP.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/classifier"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/storage"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdictstore"
)

// ObjectRef names a stored object.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func (r ObjectRef) String() string {
	if r.Bucket == "" {
		return r.Name
	}
	return r.Bucket + "/" + r.Name
}

// Config holds handler settings.
type Config struct {
	Policy verdict.Policy
	// ClassifyWorkers bounds concurrent classifier calls per file.
	ClassifyWorkers int
	// Timeout bounds one invocation; zero means no bound beyond the
	// caller's context.
	Timeout      time.Duration
	MaxFileBytes int64
	// RetryDelay is the pause before the single retry of a window whose
	// classification failed with a temporary status.
	RetryDelay time.Duration
}

// DefaultConfig returns the production handler settings.
func DefaultConfig() Config {
	return Config{
		Policy:          verdict.DefaultPolicy(),
		ClassifyWorkers: 8,
		Timeout:         300 * time.Second,
		RetryDelay:      250 * time.Millisecond,
	}
}

// Result describes one handled object.
type Result struct {
	Object     ObjectRef      `json:"object"`
	Key        string         `json:"key"`
	Verdict    verdict.Record `json:"verdict"`
	Records    int            `json:"records"`
	Unscored   int            `json:"unscored"`
	DurationMS int64          `json:"duration_ms"`
}

// Handler runs fetch, extract, classify, aggregate and persist for one
// object.
type Handler struct {
	config     Config
	router     storage.Router
	extractor  *features.Extractor
	classifier classifier.Classifier
	store      verdictstore.Store
	logger     logging.Logger
}

// NewHandler creates a handler. All collaborators are required.
func NewHandler(cfg Config, router storage.Router, extractor *features.Extractor, cls classifier.Classifier, store verdictstore.Store, logger logging.Logger) (*Handler, error) {
	if router == nil || extractor == nil || cls == nil || store == nil {
		return nil, errors.New("trigger: router, extractor, classifier and store are required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	if cfg.ClassifyWorkers <= 0 {
		cfg.ClassifyWorkers = 1
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Handler{
		config:     cfg,
		router:     router,
		extractor:  extractor,
		classifier: cls,
		store:      store,
		logger:     logger.WithFields(logging.Fields{"component": "trigger"}),
	}, nil
}

// Handle processes ref and upserts its verdict under ref.Name. Decode
// failures are returned as *decode.Error; missing objects wrap
// os.ErrNotExist. Windows whose classification fails are left out of the
// verdict.
func (h *Handler) Handle(ctx context.Context, ref ObjectRef) (*Result, error) {
	if ref.Name == "" {
		return nil, errors.New("trigger: object name is required")
	}
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	logger := h.logger.WithFields(logging.Fields{"bucket": ref.Bucket, "object": ref.Name})

	store, err := h.router.Bucket(ref.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bucket %q: %w", ref.Bucket, err)
	}
	data, err := storage.Fetch(ctx, store, ref.Name, h.config.MaxFileBytes)
	if err != nil {
		return nil, err
	}

	records, err := h.extractor.ExtractBytes(ctx, data, ref.Name, nil)
	if err != nil {
		return nil, err
	}

	flags, err := h.classify(ctx, logger, records)
	if err != nil {
		return nil, err
	}

	rec := verdict.Aggregate(flags, h.config.Policy)
	if err := h.store.Upsert(ctx, ref.Name, rec); err != nil {
		return nil, fmt.Errorf("failed to store verdict: %w", err)
	}

	res := &Result{
		Object:     ref,
		Key:        ref.Name,
		Verdict:    rec,
		Records:    len(records),
		Unscored:   len(records) - len(flags),
		DurationMS: time.Since(start).Milliseconds(),
	}

	logger.Info("Verdict stored", logging.Fields{
		"prediction":    string(rec.Prediction),
		"spoof_count":   rec.SpoofCount,
		"total_windows": rec.TotalWindows,
		"unscored":      res.Unscored,
		"duration_ms":   res.DurationMS,
	})
	return res, nil
}

// classify scores every record concurrently and returns flags, in window
// order, for the records that were scored. Aggregation only starts once
// every call has returned.
func (h *Handler) classify(ctx context.Context, logger logging.Logger, records []features.Record) ([]bool, error) {
	scored := make([]*bool, len(records))
	var mu sync.Mutex
	failed := 0

	var g errgroup.Group
	g.SetLimit(h.config.ClassifyWorkers)
	for i, rec := range records {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			scores, err := h.classifyWindow(ctx, logger, rec)
			if err != nil {
				logger.Error(err, "Window classification failed", logging.Fields{"window": rec.Window})
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			flag := h.config.Policy.Flag(scores.Spoof)
			scored[i] = &flag
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("classification interrupted: %w", err)
	}

	flags := make([]bool, 0, len(records))
	for _, f := range scored {
		if f != nil {
			flags = append(flags, *f)
		}
	}
	if failed > 0 {
		logger.Warn("Some windows were not classified", logging.Fields{
			"failed": failed,
			"scored": len(flags),
		})
	}
	return flags, nil
}

// classifyWindow scores one record, retrying once when the endpoint
// reports a temporary failure.
func (h *Handler) classifyWindow(ctx context.Context, logger logging.Logger, rec features.Record) (classifier.Scores, error) {
	scores, err := h.classifier.Classify(ctx, rec)
	var status *classifier.StatusError
	if err == nil || !errors.As(err, &status) || !status.Temporary() {
		return scores, err
	}

	logger.Debug("Retrying window classification", logging.Fields{
		"window": rec.Window,
		"status": status.StatusCode,
	})
	select {
	case <-ctx.Done():
		return classifier.Scores{}, err
	case <-time.After(h.config.RetryDelay):
	}
	return h.classifier.Classify(ctx, rec)
}

// Verdict returns the stored verdict for key.
func (h *Handler) Verdict(ctx context.Context, key string) (verdictstore.Document, error) {
	return h.store.Get(ctx, key)
}

// Forget removes the verdict for ref.Name and, when purgeObject is set,
// the stored object itself.
func (h *Handler) Forget(ctx context.Context, ref ObjectRef, purgeObject bool) error {
	if err := h.store.Delete(ctx, ref.Name); err != nil {
		return fmt.Errorf("failed to delete verdict: %w", err)
	}
	if !purgeObject {
		return nil
	}
	store, err := h.router.Bucket(ref.Bucket)
	if err != nil {
		return fmt.Errorf("failed to resolve bucket %q: %w", ref.Bucket, err)
	}
	return store.Delete(ctx, ref.Name)
}

// Upload stores data under a fresh object name in the default bucket and
// handles it.
func (h *Handler) Upload(ctx context.Context, name string, data []byte) (*Result, error) {
	store, err := h.router.Bucket("")
	if err != nil {
		return nil, err
	}
	if err := storage.Put(ctx, store, name, data); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	return h.Handle(ctx, ObjectRef{Name: name})
}
