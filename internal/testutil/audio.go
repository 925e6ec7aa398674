// Package testutil builds synthetic audio for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand/v2"
)

// Noise returns n samples of a 300 Hz tone with seeded white noise on top,
// at 22050 Hz.
func Noise(seed uint64, n int) []float64 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.1*math.Sin(2*math.Pi*300*float64(i)/22050) + 0.05*(r.Float64()*2-1)
	}
	return out
}

// WAV encodes interleaved samples in [-1, 1] as 16-bit PCM.
func WAV(rate, channels int, interleaved []float64) []byte {
	var body bytes.Buffer
	for _, v := range interleaved {
		_ = binary.Write(&body, binary.LittleEndian, int16(math.Round(max(-1, min(1, v))*32767)))
	}

	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
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
