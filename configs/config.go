package configs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/classifier"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/manifest"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/warehouse"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	OutputFormat string `mapstructure:"output_format"`

	Audio       AudioConfig       `mapstructure:"audio"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Warehouse   WarehouseConfig   `mapstructure:"warehouse"`
	Trigger     TriggerConfig     `mapstructure:"trigger"`
	Classifier  classifier.Config `mapstructure:"classifier"`
	Verdicts    VerdictsConfig    `mapstructure:"verdicts"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Output      OutputConfig      `mapstructure:"output"`
}

// AudioConfig contains feature extraction settings
type AudioConfig struct {
	SampleRate       int           `mapstructure:"sample_rate"`
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	NFFT             int           `mapstructure:"n_fft"`
	HopLength        int           `mapstructure:"hop_length"`
	NMFCC            int           `mapstructure:"n_mfcc"`
	NMels            int           `mapstructure:"n_mels"`
	NChroma          int           `mapstructure:"n_chroma"`
	ContrastBands    int           `mapstructure:"contrast_bands"`
	ContrastFMin     float64       `mapstructure:"contrast_fmin"`
	ContrastQuantile float64       `mapstructure:"contrast_quantile"`
	RolloffPercent   float64       `mapstructure:"rolloff_percent"`
	Workers          int           `mapstructure:"workers"`
}

// StorageConfig selects the object store holding audio and manifests
type StorageConfig struct {
	Backend         string `mapstructure:"backend"` // local or s3
	Root            string `mapstructure:"root"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	MaxFileBytes    int64  `mapstructure:"max_file_bytes"`
}

// PipelineConfig contains batch run settings
type PipelineConfig struct {
	Sources          []manifest.Source `mapstructure:"sources"`
	SourcesFile      string            `mapstructure:"sources_file"`
	Workers          int               `mapstructure:"workers"`
	WriteDisposition string            `mapstructure:"write_disposition"`
	LabelFilter      []string          `mapstructure:"label_filter"`
}

// WarehouseConfig selects the row sink
type WarehouseConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// TriggerConfig contains single-object handler settings
type TriggerConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	Collection          string        `mapstructure:"collection"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ClassifyWorkers     int           `mapstructure:"classify_workers"`
	ListenAddr          string        `mapstructure:"listen_addr"`
}

// VerdictsConfig selects the verdict store
type VerdictsConfig struct {
	Backend string `mapstructure:"backend"` // badger or memory
	Dir     string `mapstructure:"dir"`
}

// AggregationConfig contains the tiered spoof-ratio cuts
type AggregationConfig struct {
	SmallSampleMax   int     `mapstructure:"small_sample_max"`
	SmallSampleRatio float64 `mapstructure:"small_sample_ratio"`
	LargeSampleRatio float64 `mapstructure:"large_sample_ratio"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Precision int  `mapstructure:"precision"`
	Pretty    bool `mapstructure:"pretty"`
}

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(viper.GetViper())
}

// LoadConfigFrom loads configuration from v, filling unset keys with
// defaults.
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if config.Pipeline.SourcesFile != "" {
		sources, err := manifest.LoadSourcesFile(config.Pipeline.SourcesFile)
		if err != nil {
			return nil, err
		}
		config.Pipeline.Sources = append(config.Pipeline.Sources, sources...)
	}

	return config, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if err := config.FeatureConfig().Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	switch config.Storage.Backend {
	case "local":
		if config.Storage.Root == "" {
			return fmt.Errorf("storage root is required for the local backend")
		}
	case "s3":
		if config.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}

	if _, err := warehouse.ParseWriteDisposition(config.Pipeline.WriteDisposition); err != nil {
		return err
	}
	if config.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline workers cannot be negative")
	}
	for _, src := range config.Pipeline.Sources {
		if err := src.Validate(); err != nil {
			return err
		}
	}

	if config.Warehouse.Backend != "sqlite" {
		return fmt.Errorf("unknown warehouse backend %q", config.Warehouse.Backend)
	}

	if err := config.Policy().Validate(); err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	if config.Trigger.Timeout < 0 {
		return fmt.Errorf("trigger timeout cannot be negative")
	}
	if config.Trigger.Collection == "" {
		return fmt.Errorf("trigger collection is required")
	}

	switch config.Verdicts.Backend {
	case "memory":
	case "badger":
		if config.Verdicts.Dir == "" {
			return fmt.Errorf("verdicts dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("unknown verdicts backend %q", config.Verdicts.Backend)
	}

	return nil
}

// FeatureConfig converts the audio section to extractor settings.
func (c *Config) FeatureConfig() features.Config {
	fc := features.DefaultConfig()
	fc.SampleRate = c.Audio.SampleRate
	fc.WindowDuration = c.Audio.WindowDuration
	fc.NFFT = c.Audio.NFFT
	fc.HopLength = c.Audio.HopLength
	fc.NMFCC = c.Audio.NMFCC
	fc.NMels = c.Audio.NMels
	fc.NChroma = c.Audio.NChroma
	fc.ContrastBands = c.Audio.ContrastBands
	fc.ContrastFMin = c.Audio.ContrastFMin
	fc.ContrastQuantile = c.Audio.ContrastQuantile
	fc.RolloffPercent = c.Audio.RolloffPercent
	fc.Workers = c.Audio.Workers
	return fc
}

// Policy converts the trigger and aggregation sections to a verdict
// policy.
func (c *Config) Policy() verdict.Policy {
	return verdict.Policy{
		ConfidenceThreshold: c.Trigger.ConfidenceThreshold,
		SmallSampleMax:      c.Aggregation.SmallSampleMax,
		SmallSampleRatio:    c.Aggregation.SmallSampleRatio,
		LargeSampleRatio:    c.Aggregation.LargeSampleRatio,
	}
}
