// Package features computes per-window acoustic feature records from a
// mono signal.
package features

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sync"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/analyzers"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/decode"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Extractor slices a signal into fixed-length, non-overlapping windows and
// computes one Record per window. It holds no per-call state and is safe
// for concurrent use.
type Extractor struct {
	config  Config
	decoder *decode.Decoder
	logger  logging.Logger

	mu    sync.Mutex
	banks map[int]*analysisBank
}

// analysisBank holds the analyzers built for one sample rate.
type analysisBank struct {
	sampleRate int
	spectral   *analyzers.SpectralAnalyzer
	mfcc       *analyzers.MFCCAnalyzer
	chroma     analyzers.ChromaConfig
	contrast   analyzers.ContrastConfig
}

// NewExtractor creates an extractor. A nil logger selects the default.
func NewExtractor(config Config, logger logging.Logger) (*Extractor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature configuration: %w", err)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Extractor{
		config:  config,
		decoder: decode.NewDecoder(config.SampleRate, logger),
		logger: logger.WithFields(logging.Fields{
			"component":       "feature_extractor",
			"window_duration": config.WindowDuration.Seconds(),
		}),
		banks: make(map[int]*analysisBank),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.config }

// NumWindows returns how many full windows a signal of n samples yields.
// Trailing samples that do not fill a window are discarded.
func (e *Extractor) NumWindows(n, sampleRate int) int {
	wl := e.config.WindowLength(sampleRate)
	if wl <= 0 {
		return 0
	}
	return n / wl
}

// Extract returns a lazy sequence of records for samples, in window order.
// Windows whose SNR is not finite are skipped. Ranging over the sequence
// again recomputes it from the same input. The sequence stops after the
// first error.
func (e *Extractor) Extract(samples []float64, sampleRate int, label *string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		bank, err := e.bank(sampleRate)
		if err != nil {
			yield(Record{}, err)
			return
		}

		wl := e.config.WindowLength(sampleRate)
		for i := range e.NumWindows(len(samples), sampleRate) {
			rec, ok, err := e.computeWindow(bank, samples[i*wl:(i+1)*wl], i, label)
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Collect evaluates every window with a bounded worker pool and returns
// the records in window order.
func (e *Extractor) Collect(ctx context.Context, samples []float64, sampleRate int, label *string) ([]Record, error) {
	bank, err := e.bank(sampleRate)
	if err != nil {
		return nil, err
	}

	n := e.NumWindows(len(samples), sampleRate)
	wl := e.config.WindowLength(sampleRate)
	results := make([]*Record, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, ok, err := e.computeWindow(bank, samples[i*wl:(i+1)*wl], i, label)
			if err != nil {
				return err
			}
			if ok {
				results[i] = &rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, n)
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}

	e.logger.Debug("Extracted window features", logging.Fields{
		"windows": n,
		"records": len(records),
		"dropped": n - len(records),
	})
	return records, nil
}

// ExtractBytes decodes audio bytes to a mono signal at the configured rate
// and collects its records. name is a format hint used in errors. Decode
// failures are returned as *decode.Error.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte, name string, label *string) ([]Record, error) {
	signal, err := e.decoder.Decode(data, name)
	if err != nil {
		return nil, err
	}
	return e.Collect(ctx, signal.Samples, signal.SampleRate, label)
}

// Decoder exposes the extractor's decoder.
func (e *Extractor) Decoder() *decode.Decoder { return e.decoder }

func (e *Extractor) workers() int {
	if e.config.Workers > 0 {
		return e.config.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *Extractor) bank(sampleRate int) (*analysisBank, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.banks[sampleRate]; ok {
		return b, nil
	}

	c := e.config
	b := &analysisBank{
		sampleRate: sampleRate,
		spectral:   analyzers.NewSpectralAnalyzer(sampleRate, c.NFFT, c.HopLength, e.logger),
		mfcc: analyzers.NewMFCCAnalyzer(sampleRate, c.NFFT, analyzers.MFCCConfig{
			NMFCC: c.NMFCC,
			NMels: c.NMels,
			TopDB: c.TopDB,
			AMin:  c.AMin,
		}),
		chroma: analyzers.ChromaConfig{
			NChroma:         c.NChroma,
			CenterOctave:    5,
			OctaveWidth:     2,
			TuningFMin:      150,
			TuningFMax:      4000,
			TuningThreshold: 0.1,
			TuningStep:      0.01,
		},
		contrast: analyzers.ContrastConfig{
			FMin:     c.ContrastFMin,
			NBands:   c.ContrastBands,
			Quantile: c.ContrastQuantile,
			AMin:     c.AMin,
			TopDB:    c.TopDB,
		},
	}
	e.banks[sampleRate] = b
	return b, nil
}

// computeWindow returns the record for one window, or ok=false when the
// window has a non-finite SNR.
func (e *Extractor) computeWindow(b *analysisBank, window []float64, index int, label *string) (Record, bool, error) {
	snr := finite(SNR(window))
	if snr == nil {
		e.logger.Debug("Dropping window with non-finite SNR", logging.Fields{"window": index})
		return Record{}, false, nil
	}

	c := e.config
	spec, err := b.spectral.STFT(window)
	if err != nil {
		return Record{}, false, fmt.Errorf("window %d: stft: %w", index, err)
	}
	power := b.spectral.ComputePowerSpectrum(spec)

	mfcc := b.mfcc.Compute(power)
	delta1, err := analyzers.Delta(mfcc, c.DeltaWidth, 1)
	if err != nil {
		return Record{}, false, fmt.Errorf("window %d: mfcc delta: %w", index, err)
	}
	delta2, err := analyzers.Delta(mfcc, c.DeltaWidth, 2)
	if err != nil {
		return Record{}, false, fmt.Errorf("window %d: mfcc delta2: %w", index, err)
	}

	contrast, err := analyzers.SpectralContrast(spec.Magnitude, b.sampleRate, c.NFFT, b.contrast)
	if err != nil {
		return Record{}, false, fmt.Errorf("window %d: spectral contrast: %w", index, err)
	}
	contrastMeans := make([]float64, len(contrast))
	for k, band := range contrast {
		contrastMeans[k] = stat.Mean(band, nil)
	}

	chroma := analyzers.Chroma(power, b.sampleRate, c.NFFT, b.chroma)

	rec := Record{
		ChromaSTFT:        finite(stat.Mean(flatten(chroma), nil)),
		RMSE:              finite(stat.Mean(analyzers.RMS(window, c.NFFT, c.HopLength), nil)),
		SpectralCentroid:  finite(stat.Mean(b.spectral.SpectralCentroid(spec.Magnitude), nil)),
		SpectralBandwidth: finite(stat.Mean(b.spectral.SpectralBandwidth(spec.Magnitude), nil)),
		Rolloff:           finite(stat.Mean(b.spectral.SpectralRolloff(spec.Magnitude, c.RolloffPercent), nil)),
		ZeroCrossingRate:  finite(stat.Mean(analyzers.ZeroCrossingRate(window, c.NFFT, c.HopLength, c.ZCRThreshold), nil)),
		MFCC:              flatten(mfcc),
		MFCCDelta:         flatten(delta1),
		MFCCDelta2:        flatten(delta2),
		SNR:               snr,
		SpectralContrast:  contrastMeans,
		SpectralFlatness:  finite(stat.Mean(b.spectral.SpectralFlatness(spec.Magnitude, c.AMin), nil)),
		Label:             label,
		Window:            index,
	}
	return rec, true, nil
}

// Extract computes records for samples with the default configuration.
func Extract(samples []float64, sampleRate int) iter.Seq2[Record, error] {
	e, err := NewExtractor(DefaultConfig(), nil)
	if err != nil {
		return func(yield func(Record, error) bool) { yield(Record{}, err) }
	}
	return e.Extract(samples, sampleRate, nil)
}
