package verdictstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
)

type StoreTestSuite struct {
	suite.Suite
	newStore func(collection string) Store
	store    Store
}

func (s *StoreTestSuite) SetupTest() {
	s.store = s.newStore("audio_predictions")
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "nope.wav")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestUpsertOverwrites() {
	ctx := context.Background()
	first := verdict.Record{SpoofCount: 1, TotalWindows: 4, Prediction: verdict.PredictionBonafide}
	second := verdict.Record{SpoofCount: 3, TotalWindows: 4, Prediction: verdict.PredictionSpoof}

	s.Require().NoError(s.store.Upsert(ctx, "upload.wav", first))
	s.Require().NoError(s.store.Upsert(ctx, "upload.wav", second))

	doc, err := s.store.Get(ctx, "upload.wav")
	s.Require().NoError(err)
	s.Equal("upload.wav", doc.Key)
	s.Equal(second, doc.Verdict)
	s.False(doc.UpdatedAt.IsZero())
}

func (s *StoreTestSuite) TestUndeterminedPersisted() {
	ctx := context.Background()
	rec := verdict.Aggregate(nil, verdict.DefaultPolicy())
	s.Require().NoError(s.store.Upsert(ctx, "silence.wav", rec))

	doc, err := s.store.Get(ctx, "silence.wav")
	s.Require().NoError(err)
	s.Equal(verdict.PredictionUndetermined, doc.Verdict.Prediction)
	s.Zero(doc.Verdict.TotalWindows)
}

func (s *StoreTestSuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, "a.wav", verdict.Record{Prediction: verdict.PredictionSpoof}))
	s.Require().NoError(s.store.Delete(ctx, "a.wav"))

	_, err := s.store.Get(ctx, "a.wav")
	s.ErrorIs(err, ErrNotFound)

	s.NoError(s.store.Delete(ctx, "a.wav"), "deleting a missing key")
}

func (s *StoreTestSuite) TestEmptyKey() {
	s.Error(s.store.Upsert(context.Background(), "", verdict.Record{}))
}

func (s *StoreTestSuite) TestListInKeyOrder() {
	ctx := context.Background()
	for _, k := range []string{"c.wav", "a.wav", "dir/b.wav"} {
		s.Require().NoError(s.store.Upsert(ctx, k, verdict.Record{TotalWindows: 1, Prediction: verdict.PredictionBonafide}))
	}

	var keys []string
	for doc, err := range s.store.List(ctx) {
		s.Require().NoError(err)
		keys = append(keys, doc.Key)
	}
	s.Equal([]string{"a.wav", "c.wav", "dir/b.wav"}, keys)
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(c string) Store { return NewMemory(c) }})
}

func TestBadgerStore(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(c string) Store {
		st, err := NewBadger(BadgerOptions{InMemory: true, Collection: c, Logger: logging.NewNop()})
		require.NoError(t, err)
		return st
	}})
}

func TestCollectionsAreIsolated(t *testing.T) {
	st, err := NewBadger(BadgerOptions{InMemory: true, Collection: "audio_predictions", Logger: logging.NewNop()})
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, "x.wav", verdict.Record{Prediction: verdict.PredictionSpoof}))

	other := &Badger{db: st.db, collection: "other"}
	_, err = other.Get(ctx, "x.wav")
	assert.ErrorIs(t, err, ErrNotFound)

	n := 0
	for range other.List(ctx) {
		n++
	}
	assert.Zero(t, n)
}

func TestNewBadgerRequiresDir(t *testing.T) {
	_, err := NewBadger(BadgerOptions{})
	assert.Error(t, err)
}

type recordingLogger struct {
	logging.Logger
	entries []logging.Fields
}

func (l *recordingLogger) Warn(_ string, fields ...logging.Fields) {
	l.entries = append(l.entries, fields...)
}

func (l *recordingLogger) Error(_ error, _ string, fields ...logging.Fields) {
	l.entries = append(l.entries, fields...)
}

func TestBadgerLoggerFormatsDetail(t *testing.T) {
	rec := &recordingLogger{Logger: logging.NewNop()}
	l := badgerLogger{rec}

	l.Errorf("value log %d: %s", 3, "truncated")
	l.Warningf("gc skipped")
	l.Infof("ignored %d", 1)
	l.Debugf("ignored")

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "value log 3: truncated", rec.entries[0]["detail"])
	assert.Equal(t, "gc skipped", rec.entries[1]["detail"])
}
