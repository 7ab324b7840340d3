package capture

import (
	"math"
	"sync"
	"sync/atomic"
)

// Meter maintains a sliding window over the most recent samples and exposes
// their RMS amplitude. Writes come from the capture goroutine; reads come
// from the polling tick, so the published level is stored atomically.
type Meter struct {
	window []float32
	pos    int
	filled bool

	level atomic.Uint64 // math.Float64bits of the current RMS

	mu sync.Mutex
}

// NewMeter creates a meter with the given analysis window size in samples.
func NewMeter(windowSize int) *Meter {
	if windowSize <= 0 {
		windowSize = 2048
	}
	return &Meter{window: make([]float32, windowSize)}
}

// Write feeds captured samples into the analysis window and republishes
// the RMS level.
func (m *Meter) Write(samples []float32) {
	m.mu.Lock()

	for _, s := range samples {
		m.window[m.pos] = s
		m.pos++
		if m.pos == len(m.window) {
			m.pos = 0
			m.filled = true
		}
	}

	n := len(m.window)
	if !m.filled {
		n = m.pos
	}

	var sum float64
	for i := 0; i < n; i++ {
		v := float64(m.window[i])
		sum += v * v
	}
	m.mu.Unlock()

	rms := float64(0)
	if n > 0 {
		rms = math.Sqrt(sum / float64(n))
	}
	m.level.Store(math.Float64bits(rms))
}

// Level returns the most recently published RMS amplitude in [0, 1].
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Reset clears the window and the published level.
func (m *Meter) Reset() {
	m.mu.Lock()
	for i := range m.window {
		m.window[i] = 0
	}
	m.pos = 0
	m.filled = false
	m.mu.Unlock()

	m.level.Store(0)
}
