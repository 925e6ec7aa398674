package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:   endpoint,
		Project:    "proj",
		Region:     "us-central1",
		EndpointID: "123",
		Token:      "secret",
		Timeout:    5 * time.Second,
	}
}

func TestPredictURL(t *testing.T) {
	cfg := testConfig("https://us-central1-aiplatform.googleapis.com/")
	assert.Equal(t,
		"https://us-central1-aiplatform.googleapis.com/v1/projects/proj/locations/us-central1/endpoints/123:predict",
		cfg.PredictURL())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, true},
		{"no project", func(c *Config) { c.Project = "" }, true},
		{"no endpoint id", func(c *Config) { c.EndpointID = "" }, true},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://localhost")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPClientClassify(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string][]map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[{"classes":["0","1"],"scores":[0.1,0.9]}]}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(testConfig(srv.URL), nil, logging.NewNop())
	require.NoError(t, err)

	rms := 0.25
	scores, err := c.Classify(context.Background(), features.Record{RMSE: &rms, MFCC: []float64{1, 2}})
	require.NoError(t, err)

	assert.Equal(t, Scores{Bonafide: 0.1, Spoof: 0.9}, scores)
	assert.Equal(t, "/v1/projects/proj/locations/us-central1/endpoints/123:predict", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, gotBody["instances"], 1)
	inst := gotBody["instances"][0]
	assert.Equal(t, 0.25, inst["rmse"])
	assert.Contains(t, inst, "snr", "null features are still sent")
	assert.Nil(t, inst["snr"])
}

func TestHTTPClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusServiceUnavailable, `unavailable`},
		{"no predictions", http.StatusOK, `{"predictions":[]}`},
		{"one score", http.StatusOK, `{"predictions":[{"scores":[0.4]}]}`},
		{"bad json", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewHTTPClient(testConfig(srv.URL), nil, logging.NewNop())
			require.NoError(t, err)
			_, err = c.Classify(context.Background(), features.Record{})
			assert.Error(t, err)
		})
	}
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 503}).Temporary())
	assert.True(t, (&StatusError{StatusCode: 429}).Temporary())
	assert.False(t, (&StatusError{StatusCode: 400}).Temporary())
}
