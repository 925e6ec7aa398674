package analyzers

import (
	"math"
	"sync"
)

// WindowGenerator builds and caches analysis windows by length.
type WindowGenerator struct {
	mu    sync.RWMutex
	cache map[int][]float64
}

// NewWindowGenerator creates a window generator with an empty cache.
func NewWindowGenerator() *WindowGenerator {
	return &WindowGenerator{cache: make(map[int][]float64)}
}

// Hann returns a periodic Hann window of the given length, the form used
// for FFT analysis (w[n] = 0.5 - 0.5cos(2πn/N)). The returned slice is
// shared and must not be modified.
func (wg *WindowGenerator) Hann(size int) []float64 {
	wg.mu.RLock()
	w, ok := wg.cache[size]
	wg.mu.RUnlock()
	if ok {
		return w
	}

	w = make([]float64, size)
	for n := range size {
		w[n] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(size))
	}

	wg.mu.Lock()
	wg.cache[size] = w
	wg.mu.Unlock()
	return w
}
