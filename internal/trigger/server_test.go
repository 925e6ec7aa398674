package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/antispoof-pipeline/internal/testutil"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/decode"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/storage"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdictstore"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	router, err := storage.NewLocalRouter(root)
	require.NoError(t, err)
	ext, err := features.NewExtractor(features.DefaultConfig(), logging.NewNop())
	require.NoError(t, err)

	h, err := NewHandler(DefaultConfig(), router, ext, scoreByWindow([]float64{0.9, 0.9, 0.9}), verdictstore.NewMemory("audio_predictions"), logging.NewNop())
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer("", h, logging.NewNop()))
	t.Cleanup(srv.Close)
	return srv, root
}

func writeObject(t *testing.T, root, bucket, name string, data []byte) {
	t.Helper()
	dir := filepath.Join(root, bucket)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestServerObjectFinalized(t *testing.T) {
	srv, root := newTestServer(t)
	writeObject(t, root, "uploads", "a.wav", testutil.WAV(22050, 1, testutil.Noise(1, 2*windowLen)))

	bodies := []string{
		`{"bucket":"uploads","name":"a.wav"}`,
		`{"specversion":"1.0","type":"google.cloud.storage.object.v1.finalized","data":{"bucket":"uploads","name":"a.wav"}}`,
	}
	for _, body := range bodies {
		resp, err := http.Post(srv.URL+"/events/object-finalized", "application/json", strings.NewReader(body))
		require.NoError(t, err)

		var res Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, verdict.Record{SpoofCount: 2, TotalWindows: 2, Prediction: verdict.PredictionSpoof}, res.Verdict)
	}
}

func TestServerVerdictGetAndDelete(t *testing.T) {
	srv, root := newTestServer(t)
	writeObject(t, root, "uploads", "b.wav", testutil.WAV(22050, 1, testutil.Noise(2, windowLen)))

	resp, err := http.Post(srv.URL+"/events/object-finalized", "application/json",
		strings.NewReader(`{"bucket":"uploads","name":"b.wav"}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/verdicts/b.wav")
	require.NoError(t, err)
	var doc verdictstore.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, verdict.PredictionSpoof, doc.Verdict.Prediction)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/verdicts/b.wav?bucket=uploads&purge=true", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/verdicts/b.wav")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NoFileExists(t, filepath.Join(root, "uploads", "b.wav"))
}

func TestServerUpload(t *testing.T) {
	srv, root := newTestServer(t)

	wav := testutil.WAV(22050, 1, testutil.Noise(3, windowLen))
	resp, err := http.Post(srv.URL+"/uploads?filename=voice.WAV", "audio/wav", bytes.NewReader(wav))
	require.NoError(t, err)
	defer resp.Body.Close()

	var res Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, strings.HasSuffix(res.Key, ".wav"))
	assert.FileExists(t, filepath.Join(root, res.Key))
	assert.Equal(t, 1, res.Verdict.TotalWindows)
}

func TestServerErrors(t *testing.T) {
	srv, root := newTestServer(t)
	writeObject(t, root, "uploads", "junk.wav", []byte("nope"))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"no name", `{"bucket":"uploads"}`, http.StatusBadRequest},
		{"missing object", `{"bucket":"uploads","name":"gone.wav"}`, http.StatusNotFound},
		{"undecodable", `{"bucket":"uploads","name":"junk.wav"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/events/object-finalized", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestServerHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(fmt.Errorf("wrap: %w", decode.NewError(decode.FormatWAV, "x", decode.ErrCodeDecoding, "bad", nil))))
	assert.Equal(t, http.StatusNotFound, statusFor(verdictstore.ErrNotFound))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
