package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
)

func TestDefaultsValidate(t *testing.T) {
	cfg, err := LoadConfigFrom(viper.New())
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, features.DefaultConfig(), cfg.FeatureConfig())
	assert.Equal(t, verdict.DefaultPolicy(), cfg.Policy())
	assert.Equal(t, "audio_predictions", cfg.Trigger.Collection)
	assert.Equal(t, 300*time.Second, cfg.Trigger.Timeout)
	assert.Equal(t, "truncate", cfg.Pipeline.WriteDisposition)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	sourcesFile := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(sourcesFile, []byte(`
sources:
  - name: df
    manifest: protocols/df.txt
    id_column: 1
    label_column: 5
    path_template: "datalake/df/{id}.flac"
`), 0o644))

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
log_level: debug
trigger:
  confidence_threshold: 0.9
  timeout: 45s
pipeline:
  write_disposition: append
  sources_file: `+sourcesFile+`
  sources:
    - name: pa
      manifest: protocols/pa.txt
      id_column: 1
      label_column: 9
      path_template: "datalake/pa/{id}.flac"
verdicts:
  backend: memory
`)))

	cfg, err := LoadConfigFrom(v)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.9, cfg.Policy().ConfidenceThreshold)
	assert.Equal(t, 45*time.Second, cfg.Trigger.Timeout)
	require.Len(t, cfg.Pipeline.Sources, 2)
	assert.Equal(t, "pa", cfg.Pipeline.Sources[0].Name)
	assert.Equal(t, 9, cfg.Pipeline.Sources[0].LabelColumn)
	assert.Equal(t, "df", cfg.Pipeline.Sources[1].Name)
	assert.Equal(t, 22050, cfg.Audio.SampleRate, "unset keys keep defaults")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }},
		{"bad disposition", func(c *Config) { c.Pipeline.WriteDisposition = "merge" }},
		{"bad warehouse", func(c *Config) { c.Warehouse.Backend = "bigquery" }},
		{"threshold out of range", func(c *Config) { c.Trigger.ConfidenceThreshold = 1.5 }},
		{"bad verdict backend", func(c *Config) { c.Verdicts.Backend = "firestore" }},
		{"no collection", func(c *Config) { c.Trigger.Collection = "" }},
		{"bad audio", func(c *Config) { c.Audio.NFFT = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}
