// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling

import "sync"

// Accumulator tracks the running maximum of every channel of a source. All
// maxima start at zero and only move up; a sample equal to the current
// maximum leaves it unchanged. It is safe for concurrent use, since sensor
// frames are typically observed from a transport goroutine.
type Accumulator struct {
	mu      sync.Mutex
	maxima  []float64
	samples uint64
}

// NewAccumulator creates an accumulator for the given number of channels.
func NewAccumulator(channels int) *Accumulator {
	return &Accumulator{maxima: make([]float64, max(channels, 0))}
}

// Channels returns the number of channels tracked.
func (a *Accumulator) Channels() int {
	return len(a.maxima)
}

// Observe folds a single sample for the given channel into the maxima. It
// reports false if the channel is not tracked.
func (a *Accumulator) Observe(channel int, value float64) bool {
	if channel < 0 || channel >= len(a.maxima) {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.samples++
	if value > a.maxima[channel] {
		a.maxima[channel] = value
	}
	return true
}

// ObserveFrame folds a frame of per-channel sample runs into the maxima, where
// frame[c] holds the samples received for channel c. Runs for channels beyond
// the tracked count are ignored.
func (a *Accumulator) ObserveFrame(frame [][]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for c, run := range frame {
		if c >= len(a.maxima) {
			break
		}
		for _, v := range run {
			a.samples++
			if v > a.maxima[c] {
				a.maxima[c] = v
			}
		}
	}
}

// Maxima returns a copy of the current per-channel maxima.
func (a *Accumulator) Maxima() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]float64, len(a.maxima))
	copy(out, a.maxima)
	return out
}

// Samples returns the number of samples observed on tracked channels.
func (a *Accumulator) Samples() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.samples
}
