package benchmark

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultFPSWindow is the number of recent frames averaged by an FPSMeter.
const DefaultFPSWindow = 30

// FPSMeter reports frames per second averaged over the most recent frames.
type FPSMeter struct {
	mu     sync.Mutex
	window int
	rates  []float64
}

// NewFPSMeter creates a meter that averages over window frames. A non-positive window selects
// DefaultFPSWindow.
func NewFPSMeter(window int) *FPSMeter {
	if window <= 0 {
		window = DefaultFPSWindow
	}
	return &FPSMeter{window: window, rates: make([]float64, 0, window)}
}

// Observe records the processing time of one frame and returns the updated average.
// Non-positive durations are ignored.
func (m *FPSMeter) Observe(elapsed time.Duration) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elapsed > 0 {
		if len(m.rates) == m.window {
			m.rates = append(m.rates[:0], m.rates[1:]...)
		}
		m.rates = append(m.rates, 1/elapsed.Seconds())
	}

	return m.fps()
}

// FPS returns the current average, or 0 before any frame was observed.
func (m *FPSMeter) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps()
}

func (m *FPSMeter) fps() float64 {
	if len(m.rates) == 0 {
		return 0
	}
	return stat.Mean(m.rates, nil)
}
