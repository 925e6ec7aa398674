package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmWAV encodes interleaved samples in [-1, 1] as 16-bit PCM WAV bytes.
func pcmWAV(t *testing.T, rate, channels int, interleaved []float64) []byte {
	t.Helper()
	var body bytes.Buffer
	for _, v := range interleaved {
		require.NoError(t, binary.Write(&body, binary.LittleEndian, int16(math.Round(v*32767))))
	}

	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	buf.WriteString("RIFF")
	w(uint32(36 + body.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(channels))
	w(uint32(rate))
	w(uint32(rate * channels * 2))
	w(uint16(channels * 2))
	w(uint16(16))
	buf.WriteString("data")
	w(uint32(body.Len()))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func tone(rate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.25 * math.Sin(2*math.Pi*220*float64(i)/float64(rate))
	}
	return out
}

func TestDecodeMonoAtTargetRate(t *testing.T) {
	in := tone(22050, 22050)
	d := NewDecoder(22050, logging.NewNop())

	sig, err := d.Decode(pcmWAV(t, 22050, 1, in), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, sig.Format)
	assert.Equal(t, 22050, sig.SampleRate)
	assert.Equal(t, 1, sig.SourceChannels)
	require.Len(t, sig.Samples, len(in))
	assert.InDelta(t, 1.0, sig.Duration(), 1e-9)
	for i := 0; i < len(in); i += 997 {
		assert.InDelta(t, in[i], sig.Samples[i], 1e-3)
	}
}

func TestDecodeDownmixesStereo(t *testing.T) {
	frames := 4410
	interleaved := make([]float64, 2*frames)
	for i := range frames {
		interleaved[2*i] = 0.5
		interleaved[2*i+1] = -0.25
	}

	sig, err := NewDecoder(22050, logging.NewNop()).Decode(pcmWAV(t, 22050, 2, interleaved), "")
	require.NoError(t, err)
	require.Len(t, sig.Samples, frames)
	assert.Equal(t, 2, sig.SourceChannels)
	assert.InDelta(t, 0.125, sig.Samples[100], 1e-3)
}

func TestDecodeResamplesToTarget(t *testing.T) {
	in := tone(44100, 44100)
	sig, err := NewDecoder(22050, logging.NewNop()).Decode(pcmWAV(t, 44100, 1, in), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, 44100, sig.SourceSampleRate)
	assert.Len(t, sig.Samples, 22050)
}

func TestDecodeErrors(t *testing.T) {
	d := NewDecoder(0, logging.NewNop())
	assert.Equal(t, DefaultSampleRate, d.TargetRate())

	tests := []struct {
		name string
		data []byte
		code string
	}{
		{"empty.wav", nil, ErrCodeEmpty},
		{"notes.txt", []byte("definitely not audio"), ErrCodeUnsupported},
		{"broken.flac", []byte("fLaC\x00\x00"), ErrCodeDecoding},
	}
	for _, tt := range tests {
		_, err := d.Decode(tt.data, tt.name)
		var derr *Error
		if !errors.As(err, &derr) {
			t.Errorf("Decode(%s): want *Error, got %v", tt.name, err)
			continue
		}
		assert.Equal(t, tt.code, derr.Code, tt.name)
		assert.Equal(t, tt.name, derr.Path)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		data []byte
		name string
		want Format
	}{
		{[]byte("RIFF\x00\x00\x00\x00WAVEfmt "), "", FormatWAV},
		{[]byte("fLaC\x00"), "", FormatFLAC},
		{[]byte("ID3\x04"), "", FormatMP3},
		{[]byte{0xFF, 0xFB, 0x90}, "", FormatMP3},
		{[]byte("????"), "LA_T_1000137.FLAC", FormatFLAC},
		{[]byte("????"), "a.wav", FormatWAV},
		{[]byte("????"), "a.ogg", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.data, tt.name); got != tt.want {
			t.Errorf("DetectFormat(%q): want %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestResampleIdentityCopies(t *testing.T) {
	in := []float64{1, 2, 3}
	out, err := Resample(in, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	out[0] = 9
	assert.Equal(t, 1.0, in[0])

	_, err = Resample(in, 0, 16000)
	assert.Error(t, err)
}

func TestDecodeWAVFullScale(t *testing.T) {
	in := []float64{0.5, -0.5, 0.25, -1}
	sig, err := NewDecoder(22050, logging.NewNop()).Decode(pcmWAV(t, 22050, 1, in), "clip.wav")
	require.NoError(t, err)
	require.Len(t, sig.Samples, len(in))
	for i, want := range in {
		assert.InDelta(t, want, sig.Samples[i], 1e-4, "sample %d", i)
	}
}

func TestResampleIsPhaseAligned(t *testing.T) {
	for _, from := range []int{16000, 44100} {
		in := make([]float64, from)
		for i := range in {
			in[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/float64(from))
		}

		out, err := Resample(in, from, 22050)
		require.NoError(t, err)
		require.Len(t, out, 22050)

		// edges carry the filter's start and stop transients
		for i := 1000; i < len(out)-1000; i += 37 {
			want := 0.5 * math.Sin(2*math.Pi*220*float64(i)/22050)
			if !assert.InDelta(t, want, out[i], 0.03, "%d Hz -> 22050 Hz sample %d", from, i) {
				break
			}
		}
	}
}

func TestResampleLengthRoundsUp(t *testing.T) {
	tests := []struct {
		n, from, want int
	}{
		{1000, 16000, 1379}, // 1378.125
		{1001, 16000, 1380}, // 1379.503
		{32000, 16000, 44100},
		{3, 44100, 2},
	}
	for _, tt := range tests {
		out, err := Resample(make([]float64, tt.n), tt.from, 22050)
		require.NoError(t, err)
		assert.Len(t, out, tt.want, "%d samples at %d Hz", tt.n, tt.from)
	}
}
