// Package decode turns encoded audio bytes into a mono float64 signal at a
// target sample rate.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Format identifies an audio container.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatWAV     Format = "wav"
	FormatFLAC    Format = "flac"
	FormatMP3     Format = "mp3"
)

// DefaultSampleRate is the rate every signal is converted to unless
// configured otherwise.
const DefaultSampleRate = 22050

const streamChunk = 4096

// Signal is a decoded mono signal.
type Signal struct {
	Samples          []float64 `json:"-"`
	SampleRate       int       `json:"sample_rate"`
	SourceSampleRate int       `json:"source_sample_rate"`
	SourceChannels   int       `json:"source_channels"`
	Format           Format    `json:"format"`
}

// Duration returns the signal length in seconds.
func (s *Signal) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Decoder decodes WAV, FLAC and MP3 byte streams.
type Decoder struct {
	targetRate int
	logger     logging.Logger
}

// NewDecoder creates a decoder producing signals at targetRate. A
// non-positive rate selects DefaultSampleRate.
func NewDecoder(targetRate int, logger logging.Logger) *Decoder {
	if targetRate <= 0 {
		targetRate = DefaultSampleRate
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Decoder{
		targetRate: targetRate,
		logger: logger.WithFields(logging.Fields{
			"component":   "audio_decoder",
			"target_rate": targetRate,
		}),
	}
}

// TargetRate returns the output sample rate.
func (d *Decoder) TargetRate() int { return d.targetRate }

// Decode converts encoded bytes to a mono signal at the target rate. name
// is used only as a format hint and for error reporting.
func (d *Decoder) Decode(data []byte, name string) (*Signal, error) {
	format := DetectFormat(data, name)
	if len(data) == 0 {
		return nil, NewError(format, name, ErrCodeEmpty, "no audio data", nil)
	}

	stream, bf, err := openStream(format, data)
	if err != nil {
		if format == FormatUnknown {
			return nil, NewError(format, name, ErrCodeUnsupported, "unrecognised audio format", err)
		}
		return nil, NewError(format, name, ErrCodeDecoding, fmt.Sprintf("failed to open %s stream", format), err)
	}
	defer stream.Close()

	mono, err := downmix(stream)
	if err != nil {
		return nil, NewError(format, name, ErrCodeDecoding, "failed to read samples", err)
	}
	if len(mono) == 0 {
		return nil, NewError(format, name, ErrCodeEmpty, "stream contains no samples", nil)
	}

	sourceRate := int(bf.SampleRate)
	samples, err := Resample(mono, sourceRate, d.targetRate)
	if err != nil {
		return nil, NewError(format, name, ErrCodeResample,
			fmt.Sprintf("failed to resample %d Hz to %d Hz", sourceRate, d.targetRate), err)
	}

	d.logger.Debug("Decoded audio", logging.Fields{
		"name":            name,
		"format":          format,
		"source_rate":     sourceRate,
		"source_channels": bf.NumChannels,
		"samples":         len(samples),
	})

	return &Signal{
		Samples:          samples,
		SampleRate:       d.targetRate,
		SourceSampleRate: sourceRate,
		SourceChannels:   bf.NumChannels,
		Format:           format,
	}, nil
}

// DetectFormat identifies the container from magic bytes, falling back to
// the file extension of name.
func DetectFormat(data []byte, name string) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return FormatFLAC
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}

	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "wav", "wave":
		return FormatWAV
	case "flac":
		return FormatFLAC
	case "mp3":
		return FormatMP3
	}
	return FormatUnknown
}

func openStream(format Format, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	switch format {
	case FormatWAV:
		return wav.Decode(bytes.NewReader(data))
	case FormatFLAC:
		return flac.Decode(bytes.NewReader(data))
	case FormatMP3:
		return mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return nil, beep.Format{}, errors.New("no decoder for format")
	}
}

// downmix drains a stereo beep stream into a mono slice by averaging the
// channels. Mono sources arrive duplicated on both channels.
func downmix(s beep.Streamer) ([]float64, error) {
	buf := make([][2]float64, streamChunk)
	var out []float64
	for {
		n, ok := s.Stream(buf)
		for i := range n {
			out = append(out, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Resample converts a mono signal between sample rates. The output is
// aligned so that out[i] tracks in[i*from/to], and its length is
// ceil(len(in) * to / from), zero-padded when the filter releases fewer
// samples.
func Resample(in []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if from == to || len(in) == 0 {
		return append([]float64(nil), in...), nil
	}

	delay, err := resampleDelay(from, to)
	if err != nil {
		return nil, err
	}
	out, err := resampleRaw(in, from, to)
	if err != nil {
		return nil, err
	}

	want := int((int64(len(in))*int64(to) + int64(from) - 1) / int64(from))
	out = out[min(delay, len(out)):]
	if len(out) > want {
		out = out[:want]
	}
	for len(out) < want {
		out = append(out, 0)
	}
	return out, nil
}

// resampleRaw runs the filter over in and drains it.
func resampleRaw(in []float64, from, to int) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := r.Process(in)
	if err != nil {
		return nil, err
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("failed to flush resampler: %w", err)
	}
	return append(out, tail...), nil
}

var delays sync.Map // [2]int -> int

// resampleDelay measures the filter's group delay in output samples for a
// rate pair by locating the response to a single impulse. GetLatency
// reports buffering latency, which does not match the delay in the output.
func resampleDelay(from, to int) (int, error) {
	key := [2]int{from, to}
	if d, ok := delays.Load(key); ok {
		return d.(int), nil
	}

	// place the impulse where it maps onto an exact output index
	step := from / gcd(from, to)
	pos := step * max(1, 1024/step)
	impulse := make([]float64, 2*pos+from/4)
	impulse[pos] = 1

	out, err := resampleRaw(impulse, from, to)
	if err != nil {
		return 0, err
	}
	peak := 0
	for i, v := range out {
		if math.Abs(v) > math.Abs(out[peak]) {
			peak = i
		}
	}

	delay := max(0, peak-pos*to/from)
	delays.Store(key, delay)
	return delay, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
