package warehouse

import (
	"context"
	"testing"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func sampleRecord(window int, label *string) features.Record {
	return features.Record{
		ChromaSTFT:        ptr(0.4),
		RMSE:              ptr(0.02),
		SpectralCentroid:  ptr(1500.0),
		SpectralBandwidth: nil,
		Rolloff:           ptr(3000.0),
		ZeroCrossingRate:  ptr(0.1),
		MFCC:              []float64{1, 2, 3},
		MFCCDelta:         []float64{0.1, 0.2, 0.3},
		MFCCDelta2:        []float64{-0.1, 0, 0.1},
		SNR:               ptr(0.5),
		SpectralContrast:  []float64{10, 11, 12, 13, 14, 15, 16},
		SpectralFlatness:  ptr(0.01),
		Label:             label,
		Window:            window,
	}
}

func openMemory(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:", "audio_features")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Prepare(context.Background(), WriteTruncate))
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	label := "spoof"
	rows := []Row{
		{RunID: "run-1", SourcePath: "a.flac", Record: sampleRecord(0, &label)},
		{RunID: "run-1", SourcePath: "a.flac", Record: sampleRecord(1, nil)},
	}
	require.NoError(t, s.Append(ctx, rows))

	got, err := s.Rows(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[0].Record, got[0].Record)
	assert.Nil(t, got[1].Record.Label)
	assert.Nil(t, got[1].Record.SpectralBandwidth)
	assert.Equal(t, 1, got[1].Record.Window)
}

func TestSQLiteDispositions(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	require.NoError(t, s.Append(ctx, []Row{{RunID: "old", SourcePath: "x", Record: sampleRecord(0, nil)}}))

	require.NoError(t, s.Prepare(ctx, WriteAppend))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Prepare(ctx, WriteTruncate))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteRejectsBadTable(t *testing.T) {
	_, err := OpenSQLite(":memory:", "features; DROP TABLE x")
	assert.Error(t, err)
}

func TestAppendEmptyIsNoop(t *testing.T) {
	assert.NoError(t, openMemory(t).Append(context.Background(), nil))
}

func TestParseWriteDisposition(t *testing.T) {
	d, err := ParseWriteDisposition("")
	require.NoError(t, err)
	assert.Equal(t, WriteTruncate, d)

	d, err = ParseWriteDisposition("append")
	require.NoError(t, err)
	assert.Equal(t, WriteAppend, d)

	_, err = ParseWriteDisposition("merge")
	assert.Error(t, err)
}
