package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/classifier"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/warehouse"
)

// SetDefaults sets default configuration values for all components.
// Values already present in v are kept.
func SetDefaults(v *viper.Viper) {
	d := GetDefaultConfig()

	setIfUnset(v, "verbose", d.Verbose)
	setIfUnset(v, "log_level", d.LogLevel)
	setIfUnset(v, "log_format", d.LogFormat)
	setIfUnset(v, "output_format", d.OutputFormat)

	// Audio defaults
	setIfUnset(v, "audio.sample_rate", d.Audio.SampleRate)
	setIfUnset(v, "audio.window_duration", d.Audio.WindowDuration)
	setIfUnset(v, "audio.n_fft", d.Audio.NFFT)
	setIfUnset(v, "audio.hop_length", d.Audio.HopLength)
	setIfUnset(v, "audio.n_mfcc", d.Audio.NMFCC)
	setIfUnset(v, "audio.n_mels", d.Audio.NMels)
	setIfUnset(v, "audio.n_chroma", d.Audio.NChroma)
	setIfUnset(v, "audio.contrast_bands", d.Audio.ContrastBands)
	setIfUnset(v, "audio.contrast_fmin", d.Audio.ContrastFMin)
	setIfUnset(v, "audio.contrast_quantile", d.Audio.ContrastQuantile)
	setIfUnset(v, "audio.rolloff_percent", d.Audio.RolloffPercent)
	setIfUnset(v, "audio.workers", d.Audio.Workers)

	// Storage defaults
	setIfUnset(v, "storage.backend", d.Storage.Backend)
	setIfUnset(v, "storage.root", d.Storage.Root)
	setIfUnset(v, "storage.region", d.Storage.Region)
	setIfUnset(v, "storage.max_file_bytes", d.Storage.MaxFileBytes)

	// Pipeline defaults
	setIfUnset(v, "pipeline.workers", d.Pipeline.Workers)
	setIfUnset(v, "pipeline.write_disposition", d.Pipeline.WriteDisposition)

	// Warehouse defaults
	setIfUnset(v, "warehouse.backend", d.Warehouse.Backend)
	setIfUnset(v, "warehouse.dsn", d.Warehouse.DSN)
	setIfUnset(v, "warehouse.table", d.Warehouse.Table)

	// Trigger defaults
	setIfUnset(v, "trigger.confidence_threshold", d.Trigger.ConfidenceThreshold)
	setIfUnset(v, "trigger.collection", d.Trigger.Collection)
	setIfUnset(v, "trigger.timeout", d.Trigger.Timeout)
	setIfUnset(v, "trigger.classify_workers", d.Trigger.ClassifyWorkers)
	setIfUnset(v, "trigger.listen_addr", d.Trigger.ListenAddr)

	// Classifier defaults
	setIfUnset(v, "classifier.region", d.Classifier.Region)
	setIfUnset(v, "classifier.timeout", d.Classifier.Timeout)

	// Verdict store defaults
	setIfUnset(v, "verdicts.backend", d.Verdicts.Backend)
	setIfUnset(v, "verdicts.dir", d.Verdicts.Dir)

	// Aggregation defaults
	setIfUnset(v, "aggregation.small_sample_max", d.Aggregation.SmallSampleMax)
	setIfUnset(v, "aggregation.small_sample_ratio", d.Aggregation.SmallSampleRatio)
	setIfUnset(v, "aggregation.large_sample_ratio", d.Aggregation.LargeSampleRatio)

	// Output defaults
	setIfUnset(v, "output.precision", d.Output.Precision)
	setIfUnset(v, "output.pretty", d.Output.Pretty)
}

func setIfUnset(v *viper.Viper, key string, value any) {
	if !v.IsSet(key) {
		v.SetDefault(key, value)
	}
}

// GetDefaultConfig returns a complete default configuration
func GetDefaultConfig() *Config {
	policy := verdict.DefaultPolicy()
	return &Config{
		Verbose:      false,
		LogLevel:     "info",
		LogFormat:    "console",
		OutputFormat: "json",
		Audio:        GetDefaultAudioConfig(),
		Storage:      GetDefaultStorageConfig(),
		Pipeline:     GetDefaultPipelineConfig(),
		Warehouse:    GetDefaultWarehouseConfig(),
		Trigger:      GetDefaultTriggerConfig(),
		Classifier:   GetDefaultClassifierConfig(),
		Verdicts:     GetDefaultVerdictsConfig(),
		Aggregation: AggregationConfig{
			SmallSampleMax:   policy.SmallSampleMax,
			SmallSampleRatio: policy.SmallSampleRatio,
			LargeSampleRatio: policy.LargeSampleRatio,
		},
		Output: GetDefaultOutputConfig(),
	}
}

// GetDefaultAudioConfig returns the extraction parameters the classifier
// was trained with
func GetDefaultAudioConfig() AudioConfig {
	fc := features.DefaultConfig()
	return AudioConfig{
		SampleRate:       fc.SampleRate,
		WindowDuration:   fc.WindowDuration,
		NFFT:             fc.NFFT,
		HopLength:        fc.HopLength,
		NMFCC:            fc.NMFCC,
		NMels:            fc.NMels,
		NChroma:          fc.NChroma,
		ContrastBands:    fc.ContrastBands,
		ContrastFMin:     fc.ContrastFMin,
		ContrastQuantile: fc.ContrastQuantile,
		RolloffPercent:   fc.RolloffPercent,
		Workers:          fc.Workers,
	}
}

// GetDefaultStorageConfig returns local storage under the data directory
func GetDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:      "local",
		Root:         filepath.Join(dataDir(), "objects"),
		Region:       "us-east-1",
		MaxFileBytes: 256 << 20,
	}
}

// GetDefaultPipelineConfig returns batch defaults
func GetDefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:          4,
		WriteDisposition: string(warehouse.WriteTruncate),
	}
}

// GetDefaultWarehouseConfig returns a SQLite warehouse in the data directory
func GetDefaultWarehouseConfig() WarehouseConfig {
	return WarehouseConfig{
		Backend: "sqlite",
		DSN:     filepath.Join(dataDir(), "warehouse.db"),
		Table:   "audio_features",
	}
}

// GetDefaultTriggerConfig returns trigger handler defaults
func GetDefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		ConfidenceThreshold: verdict.DefaultPolicy().ConfidenceThreshold,
		Collection:          "audio_predictions",
		Timeout:             300 * time.Second,
		ClassifyWorkers:     8,
		ListenAddr:          ":8080",
	}
}

// GetDefaultClassifierConfig returns classifier defaults; the endpoint
// itself has no default
func GetDefaultClassifierConfig() classifier.Config {
	return classifier.Config{
		Region:  "us-central1",
		Timeout: 30 * time.Second,
	}
}

// GetDefaultVerdictsConfig returns a Badger store in the data directory
func GetDefaultVerdictsConfig() VerdictsConfig {
	return VerdictsConfig{
		Backend: "badger",
		Dir:     filepath.Join(dataDir(), "verdicts"),
	}
}

// GetDefaultOutputConfig returns default output formatting settings
func GetDefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Precision: 6,
		Pretty:    true,
	}
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "antispoof")
	}
	return filepath.Join(home, ".local", "share", "antispoof")
}
