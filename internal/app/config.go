package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/antispoof-pipeline/configs"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/manifest"
)

// loadAndMergeConfig loads configuration from viper and applies CLI
// overrides from ctx.
func loadAndMergeConfig(ctx *Context) (*configs.Config, error) {
	v := ctx.Viper
	if v == nil {
		v = viper.GetViper()
	}
	config, err := configs.LoadConfigFrom(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load base configuration: %w", err)
	}

	mergeConfig(config, ctx)

	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// mergeConfig overrides configuration with CLI flags that were set.
func mergeConfig(config *configs.Config, ctx *Context) {
	if ctx.OutputFormat != "" {
		config.OutputFormat = ctx.OutputFormat
	}
	if ctx.Timeout > 0 {
		config.Trigger.Timeout = ctx.Timeout
	}
	if ctx.Workers > 0 {
		config.Pipeline.Workers = ctx.Workers
	}
	if ctx.WriteDisposition != "" {
		config.Pipeline.WriteDisposition = ctx.WriteDisposition
	}
	if len(ctx.Labels) > 0 {
		config.Pipeline.LabelFilter = ctx.Labels
	}
	if ctx.ListenAddr != "" {
		config.Trigger.ListenAddr = ctx.ListenAddr
	}
	if ctx.Verbose {
		config.Verbose = true
		config.LogLevel = "debug"
	}
	if ctx.Quiet {
		config.LogLevel = "error"
	}
}

// GenerateExampleConfig writes a complete configuration file with every
// default spelled out.
func GenerateExampleConfig(outputFile string) error {
	v := viper.New()
	configs.SetDefaults(v)
	v.Set("pipeline.sources", exampleSources())

	data, err := yaml.Marshal(durationsAsStrings(v.AllSettings()))
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	return writeFile(outputFile, data)
}

// GenerateExampleSourcesFile writes a sources file for the ASVspoof 2019
// physical-access and deepfake trial lists.
func GenerateExampleSourcesFile(outputFile string) error {
	data, err := yaml.Marshal(map[string]any{"sources": exampleSources()})
	if err != nil {
		return fmt.Errorf("failed to marshal example sources: %w", err)
	}
	return writeFile(outputFile, data)
}

func exampleSources() []map[string]any {
	toMap := func(s manifest.Source) map[string]any {
		return map[string]any{
			"name":          s.Name,
			"manifest":      s.Manifest,
			"id_column":     s.IDColumn,
			"label_column":  s.LabelColumn,
			"path_template": s.PathTemplate,
		}
	}
	return []map[string]any{
		toMap(manifest.Source{
			Name:         "pa",
			Manifest:     "datalake/avspoof2019/metadata/PA-keys-full/keys/PA/CM/trial_metadata.txt",
			IDColumn:     1,
			LabelColumn:  9,
			PathTemplate: "datalake/avspoof2019/audios/{id}.flac",
		}),
		toMap(manifest.Source{
			Name:         "df",
			Manifest:     "datalake/avspoof2019/metadata/DF-keys-full/keys/DF/CM/trial_metadata.txt",
			IDColumn:     1,
			LabelColumn:  5,
			PathTemplate: "datalake/avspoof2019/audios/{id}.flac",
		}),
	}
}

// durationsAsStrings rewrites time.Duration values as "300s"-style
// strings so the written file reads naturally.
func durationsAsStrings(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case time.Duration:
			out[k] = val.String()
		case map[string]any:
			out[k] = durationsAsStrings(val)
		default:
			out[k] = val
		}
	}
	return out
}

// ValidateConfigFile loads and validates a configuration file in
// isolation.
func ValidateConfigFile(configFile string) (*configs.Config, error) {
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", configFile)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	config, err := configs.LoadConfigFrom(v)
	if err != nil {
		return nil, err
	}
	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func writeFile(outputFile string, data []byte) error {
	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
