// Package classifier calls a hosted binary spoof classifier with one
// feature record per request.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
)

// Scores is the probability pair returned for one window.
type Scores struct {
	Bonafide float64 `json:"bonafide"`
	Spoof    float64 `json:"spoof"`
}

// Classifier scores a single feature record.
type Classifier interface {
	Classify(ctx context.Context, rec features.Record) (Scores, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, rec features.Record) (Scores, error)

func (f Func) Classify(ctx context.Context, rec features.Record) (Scores, error) {
	return f(ctx, rec)
}

// Config describes a prediction endpoint in the
// {endpoint}/v1/projects/{project}/locations/{region}/endpoints/{id}:predict
// layout.
type Config struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Project    string        `mapstructure:"project"`
	Region     string        `mapstructure:"region"`
	EndpointID string        `mapstructure:"endpoint_id"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// Validate checks that the endpoint can be addressed.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("classifier endpoint is required")
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return fmt.Errorf("invalid classifier endpoint: %w", err)
	}
	if c.Project == "" || c.Region == "" || c.EndpointID == "" {
		return errors.New("classifier project, region and endpoint_id are required")
	}
	if c.Timeout < 0 {
		return errors.New("classifier timeout cannot be negative")
	}
	return nil
}

// PredictURL returns the full predict URL.
func (c Config) PredictURL() string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/endpoints/%s:predict",
		strings.TrimRight(c.Endpoint, "/"),
		url.PathEscape(c.Project), url.PathEscape(c.Region), url.PathEscape(c.EndpointID))
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classifier returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPClient posts records to a prediction endpoint.
type HTTPClient struct {
	config Config
	url    string
	client *http.Client
	logger logging.Logger
}

// NewHTTPClient creates a client for cfg. A nil httpClient gets one with
// cfg.Timeout.
func NewHTTPClient(cfg Config, httpClient *http.Client, logger logging.Logger) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "antispoof-pipeline/1.0"
	}

	return &HTTPClient{
		config: cfg,
		url:    cfg.PredictURL(),
		client: httpClient,
		logger: logger.WithFields(logging.Fields{
			"component": "classifier",
			"endpoint":  cfg.EndpointID,
		}),
	}, nil
}

type predictRequest struct {
	Instances []features.Record `json:"instances"`
}

type predictResponse struct {
	Predictions []struct {
		Scores  []float64 `json:"scores"`
		Classes []string  `json:"classes,omitempty"`
	} `json:"predictions"`
}

// Classify sends rec as the only instance and reads scores [bonafide, spoof]
// from the first prediction.
func (c *HTTPClient) Classify(ctx context.Context, rec features.Record) (Scores, error) {
	body, err := json.Marshal(predictRequest{Instances: []features.Record{rec}})
	if err != nil {
		return Scores{}, fmt.Errorf("failed to encode instance: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Scores{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Scores{}, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Scores{}, fmt.Errorf("failed to read classifier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Scores{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out predictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Scores{}, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if len(out.Predictions) == 0 {
		return Scores{}, errors.New("classifier returned no predictions")
	}
	scores := out.Predictions[0].Scores
	if len(scores) < 2 {
		return Scores{}, fmt.Errorf("classifier returned %d scores, want 2", len(scores))
	}

	c.logger.Debug("window classified", logging.Fields{
		"window":   rec.Window,
		"bonafide": scores[0],
		"spoof":    scores[1],
	})
	return Scores{Bonafide: scores[0], Spoof: scores[1]}, nil
}

var _ Classifier = (*HTTPClient)(nil)
