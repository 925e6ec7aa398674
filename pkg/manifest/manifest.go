// Package manifest reads labelled trial lists and turns them into the
// (audio path, label) pairs the batch pipeline processes.
package manifest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/storage"
	"gopkg.in/yaml.v3"
)

// IDPlaceholder is replaced by the file id in a path template.
const IDPlaceholder = "{id}"

// Source describes one whitespace-separated metadata file. Columns are
// zero-based.
type Source struct {
	Name         string `yaml:"name" mapstructure:"name" json:"name"`
	Manifest     string `yaml:"manifest" mapstructure:"manifest" json:"manifest"`
	IDColumn     int    `yaml:"id_column" mapstructure:"id_column" json:"id_column"`
	LabelColumn  int    `yaml:"label_column" mapstructure:"label_column" json:"label_column"`
	PathTemplate string `yaml:"path_template" mapstructure:"path_template" json:"path_template"`
}

// Validate checks that the source can be parsed.
func (s Source) Validate() error {
	if s.Manifest == "" {
		return fmt.Errorf("source %q: manifest path is required", s.Name)
	}
	if s.IDColumn < 0 || s.LabelColumn < 0 {
		return fmt.Errorf("source %q: columns cannot be negative", s.Name)
	}
	if !strings.Contains(s.PathTemplate, IDPlaceholder) {
		return fmt.Errorf("source %q: path template must contain %s", s.Name, IDPlaceholder)
	}
	return nil
}

// Entry is one audio file to process.
type Entry struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Source string `json:"source"`
}

// Parse reads a metadata file. Blank lines and lines starting with '#' are
// skipped; lines with too few columns are an error.
func Parse(r io.Reader, src Source) ([]Entry, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	need := max(src.IDColumn, src.LabelColumn) + 1

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < need {
			return nil, fmt.Errorf("%s:%d: expected at least %d columns, got %d", src.Manifest, lineNo, need, len(fields))
		}

		id := fields[src.IDColumn]
		entries = append(entries, Entry{
			ID:     id,
			Path:   strings.ReplaceAll(src.PathTemplate, IDPlaceholder, id),
			Label:  fields[src.LabelColumn],
			Source: src.Name,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", src.Manifest, err)
	}
	return entries, nil
}

// Load reads every source from store and merges the entries in source
// order. When labels is non-empty only entries with one of those labels
// are kept.
func Load(ctx context.Context, store storage.FileStore, sources []Source, labels []string) ([]Entry, error) {
	var all []Entry
	for _, src := range sources {
		rc, err := store.Read(ctx, src.Manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest %s: %w", src.Manifest, err)
		}
		entries, err := Parse(rc, src)
		rc.Close()
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	if len(labels) == 0 {
		return all, nil
	}
	return slices.DeleteFunc(all, func(e Entry) bool {
		return !slices.Contains(labels, e.Label)
	}), nil
}

// sourcesFile is the on-disk layout of a sources file.
type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSourcesFile reads a YAML file listing sources.
func LoadSourcesFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	for _, s := range f.Sources {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Sources, nil
}
