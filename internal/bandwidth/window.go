// Package bandwidth computes a moving-average throughput over a fixed number of sampling intervals.
package bandwidth

import (
	"fmt"
	"time"
)

// DefaultSize is the number of intervals averaged when no size is configured.
const DefaultSize = 20

// Window is a ring of per-interval byte deltas.
//
// Every Sample overwrites the oldest slot, and the throughput is always the sum
// of all slots divided by size*interval. Slots that were never written stay zero
// and still count in the denominator, so the estimate ramps up over the first
// size intervals instead of jumping to the instantaneous rate.
//
// A Window is not safe for concurrent use; the sink mutates it only from its
// sampling event.
type Window struct {
	samples   []uint64
	round     int
	lastTotal uint64
	interval  time.Duration
	taken     uint64
}

// NewWindow returns a window of size slots for samples taken every interval.
func NewWindow(size int, interval time.Duration) (*Window, error) {
	if size < 1 {
		return nil, fmt.Errorf("window size must be >= 1, got %d", size)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("window interval must be > 0, got %s", interval)
	}
	return &Window{
		samples:  make([]uint64, size),
		interval: interval,
	}, nil
}

// Sample records the bytes received since the previous sample, given the running total,
// and returns the updated throughput in bits per second.
// A total lower than the previous one (counter reset) records a zero delta.
func (w *Window) Sample(total uint64) float64 {
	var delta uint64
	if total > w.lastTotal {
		delta = total - w.lastTotal
	}
	w.samples[w.round] = delta
	w.round = (w.round + 1) % len(w.samples)
	w.lastTotal = total
	w.taken++
	return w.Throughput()
}

// Throughput returns sum(samples)*8 / (size*interval) in bits per second.
func (w *Window) Throughput() float64 {
	var sum uint64
	for _, s := range w.samples {
		sum += s
	}
	return float64(sum*8) / (w.interval.Seconds() * float64(len(w.samples)))
}

// Size returns the number of slots.
func (w *Window) Size() int {
	return len(w.samples)
}

// Interval returns the sampling interval.
func (w *Window) Interval() time.Duration {
	return w.interval
}

// Round returns the slot the next sample will be written to.
func (w *Window) Round() int {
	return w.round
}

// LastTotal returns the running total seen by the most recent sample.
func (w *Window) LastTotal() uint64 {
	return w.lastTotal
}

// Taken returns how many samples were recorded.
func (w *Window) Taken() uint64 {
	return w.taken
}

// Samples returns a copy of the slots in storage order.
func (w *Window) Samples() []uint64 {
	out := make([]uint64, len(w.samples))
	copy(out, w.samples)
	return out
}
