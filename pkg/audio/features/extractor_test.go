package features

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/RyanBlaney/antispoof-pipeline/internal/testutil"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/decode"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const windowLen = 44100

func noise(seed uint64, n int) []float64 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.1*math.Sin(2*math.Pi*300*float64(i)/22050) + 0.05*(r.Float64()*2-1)
	}
	return out
}

func collectSeq(t *testing.T, e *Extractor, samples []float64, label *string) []Record {
	t.Helper()
	var out []Record
	for rec, err := range e.Extract(samples, 22050, label) {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

type ExtractorTestSuite struct {
	suite.Suite
	extractor *Extractor
}

func (s *ExtractorTestSuite) SetupSuite() {
	e, err := NewExtractor(DefaultConfig(), logging.NewNop())
	s.Require().NoError(err)
	s.extractor = e
}

func (s *ExtractorTestSuite) TestExactMultipleYieldsOneRecordPerWindow() {
	for k := 1; k <= 3; k++ {
		recs := collectSeq(s.T(), s.extractor, noise(7, k*windowLen), nil)
		s.Len(recs, k)
		for i, r := range recs {
			s.Equal(i, r.Window)
		}
	}
}

func (s *ExtractorTestSuite) TestRemainderIsDiscarded() {
	recs := collectSeq(s.T(), s.extractor, noise(7, 2*windowLen+windowLen-1), nil)
	s.Len(recs, 2)
}

func (s *ExtractorTestSuite) TestShortInputYieldsNothing() {
	s.Empty(collectSeq(s.T(), s.extractor, noise(7, windowLen-1), nil))
	s.Empty(collectSeq(s.T(), s.extractor, nil, nil))

	recs, err := s.extractor.Collect(context.Background(), noise(7, 100), 22050, nil)
	s.NoError(err)
	s.Empty(recs)
}

func (s *ExtractorTestSuite) TestConstantWindowsAreDropped() {
	samples := noise(3, 3*windowLen)
	for i := windowLen; i < 2*windowLen; i++ {
		samples[i] = 0.3
	}
	for i := 2 * windowLen; i < 3*windowLen; i++ {
		samples[i] = 0
	}

	recs := collectSeq(s.T(), s.extractor, samples, nil)
	s.Require().Len(recs, 1)
	s.Equal(0, recs[0].Window)
}

func (s *ExtractorTestSuite) TestRecordShape() {
	recs := collectSeq(s.T(), s.extractor, noise(11, windowLen), nil)
	s.Require().Len(recs, 1)
	r := recs[0]

	s.Len(r.MFCC, 13*87)
	s.Len(r.MFCCDelta, 13*87)
	s.Len(r.MFCCDelta2, 13*87)
	s.Len(r.SpectralContrast, 7)
	for name, v := range r.Scalars() {
		s.NotNil(v, name)
	}
	s.Greater(*r.RMSE, 0.0)
	s.GreaterOrEqual(*r.ChromaSTFT, 0.0)
	s.LessOrEqual(*r.ChromaSTFT, 1.0)
	s.Greater(*r.ZeroCrossingRate, 0.0)
	s.Nil(r.Label)
}

func (s *ExtractorTestSuite) TestLabelPropagatesAndOmitsWhenAbsent() {
	label := "bonafide"
	recs := collectSeq(s.T(), s.extractor, noise(5, windowLen), &label)
	s.Require().Len(recs, 1)
	s.Equal("bonafide", *recs[0].Label)

	unlabeled := collectSeq(s.T(), s.extractor, noise(5, windowLen), nil)
	raw, err := json.Marshal(unlabeled[0])
	s.Require().NoError(err)
	var fields map[string]any
	s.Require().NoError(json.Unmarshal(raw, &fields))
	s.NotContains(fields, "label")
	s.Contains(fields, "snr")
	s.Contains(fields, "mfcc_delta2")
}

func (s *ExtractorTestSuite) TestDeterministicAndRestartable() {
	samples := noise(42, 2*windowLen)
	seq := s.extractor.Extract(samples, 22050, nil)

	var first, second []Record
	for r, err := range seq {
		s.Require().NoError(err)
		first = append(first, r)
	}
	for r, err := range seq {
		s.Require().NoError(err)
		second = append(second, r)
	}

	a, err := json.Marshal(first)
	s.Require().NoError(err)
	b, err := json.Marshal(second)
	s.Require().NoError(err)
	s.Equal(a, b)

	parallel, err := s.extractor.Collect(context.Background(), samples, 22050, nil)
	s.Require().NoError(err)
	c, err := json.Marshal(parallel)
	s.Require().NoError(err)
	s.Equal(a, c)
}

func (s *ExtractorTestSuite) TestEarlyBreak() {
	count := 0
	for _, err := range s.extractor.Extract(noise(1, 3*windowLen), 22050, nil) {
		s.Require().NoError(err)
		count++
		break
	}
	s.Equal(1, count)
}

func (s *ExtractorTestSuite) TestCollectHonoursCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.extractor.Collect(ctx, noise(1, 3*windowLen), 22050, nil)
	s.ErrorIs(err, context.Canceled)
}

func (s *ExtractorTestSuite) TestExtractBytes() {
	samples := noise(9, windowLen+windowLen/2)
	var body bytes.Buffer
	for _, v := range samples {
		s.Require().NoError(binary.Write(&body, binary.LittleEndian, int16(math.Round(v*32767))))
	}
	var wav bytes.Buffer
	w := func(v any) { s.Require().NoError(binary.Write(&wav, binary.LittleEndian, v)) }
	wav.WriteString("RIFF")
	w(uint32(36 + body.Len()))
	wav.WriteString("WAVEfmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(1))
	w(uint32(22050))
	w(uint32(22050 * 2))
	w(uint16(2))
	w(uint16(16))
	wav.WriteString("data")
	w(uint32(body.Len()))
	wav.Write(body.Bytes())

	recs, err := s.extractor.ExtractBytes(context.Background(), wav.Bytes(), "clip.wav", nil)
	s.Require().NoError(err)
	s.Len(recs, 1)

	_, err = s.extractor.ExtractBytes(context.Background(), []byte("nope"), "clip.bin", nil)
	var derr *decode.Error
	s.Require().True(errors.As(err, &derr))
	s.Equal(decode.ErrCodeUnsupported, derr.Code)
}

func (s *ExtractorTestSuite) TestWAVBytesMatchDirectSamples() {
	samples := noise(13, windowLen)

	direct, err := s.extractor.Collect(context.Background(), samples, 22050, nil)
	s.Require().NoError(err)
	viaWAV, err := s.extractor.ExtractBytes(context.Background(), testutil.WAV(22050, 1, samples), "clip.wav", nil)
	s.Require().NoError(err)
	s.Require().Len(direct, 1)
	s.Require().Len(viaWAV, 1)

	s.InEpsilon(*direct[0].RMSE, *viaWAV[0].RMSE, 1e-3)
	s.InDelta(direct[0].MFCC[0], viaWAV[0].MFCC[0], 0.5)
	s.InDelta(*direct[0].SNR, *viaWAV[0].SNR, 1e-2)
}

// A sine this loud keeps the time-domain sums finite while its power
// spectrum peak overflows, so spectral scalars become non-finite.
func (s *ExtractorTestSuite) TestNonFiniteScalarIsNilAndRecordKept() {
	const amplitude = 5e151
	freq := 100 * 22050.0 / 2048
	samples := make([]float64, windowLen)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/22050)
	}

	recs := collectSeq(s.T(), s.extractor, samples, nil)
	s.Require().Len(recs, 1)
	r := recs[0]

	s.Require().NotNil(r.SNR)
	s.NotNil(r.RMSE)
	s.NotNil(r.ZeroCrossingRate)
	s.Nil(r.SpectralFlatness)
	s.Nil(r.ChromaSTFT)

	scalars := r.Scalars()
	s.Contains(scalars, "spectral_flatness")
	s.Nil(scalars["spectral_flatness"])
}

func TestExtractorTestSuite(t *testing.T) {
	suite.Run(t, new(ExtractorTestSuite))
}

func TestSNR(t *testing.T) {
	assert.InDelta(t, 0.0, SNR([]float64{1, -1}), 1e-12)
	assert.InDelta(t, 10*math.Log10(7), SNR([]float64{1, 2, 3}), 1e-12)
	assert.True(t, math.IsInf(SNR([]float64{0.3, 0.3, 0.3}), 1))
	assert.True(t, math.IsNaN(SNR([]float64{0, 0})))
	assert.True(t, math.IsNaN(SNR(nil)))
}

func TestFinite(t *testing.T) {
	assert.Nil(t, finite(math.NaN()))
	assert.Nil(t, finite(math.Inf(1)))
	assert.Nil(t, finite(math.Inf(-1)))
	require.NotNil(t, finite(1.5))
	assert.Equal(t, 1.5, *finite(1.5))
}

func TestNewExtractorValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeltaWidth = 4
	_, err := NewExtractor(cfg, logging.NewNop())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.NMFCC = 200
	_, err = NewExtractor(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestPackageExtract(t *testing.T) {
	n := 0
	for _, err := range Extract(noise(2, windowLen), 22050) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)

	for _, err := range Extract(noise(2, windowLen), 0) {
		assert.Error(t, err)
	}
}
