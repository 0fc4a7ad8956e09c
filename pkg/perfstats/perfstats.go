// Package perfstats records how long the stages of frame analysis take, so that
// it's easy to compare models and hardware.
package perfstats

import (
	"sync/atomic"
	"time"
)

// MovingAverage is an exponential moving average of a duration, which may be
// written by one thread and read by many.
type MovingAverage struct {
	ns atomic.Uint64
}

// Update the average with a new sample.
// The first sample seeds the average. After that, each sample has a weight of 1/64.
func (m *MovingAverage) Update(d time.Duration) {
	if d < 0 {
		d = 0
	}
	v := uint64(d.Nanoseconds())
	// We don't bother about strict correctness here, with CompareAndSwap,
	// because there is a single writer, and it's OK to miss one or two samples.
	if old := m.ns.Load(); old == 0 {
		m.ns.Store(v)
	} else {
		m.ns.Store((old*63 + v) >> 6)
	}
}

// Time a function and add the elapsed time to the average
func (m *MovingAverage) Measure(f func()) {
	start := time.Now()
	f()
	m.Update(time.Since(start))
}

func (m *MovingAverage) Get() time.Duration {
	return time.Duration(m.ns.Load())
}

func (m *MovingAverage) Milliseconds() float64 {
	return float64(m.ns.Load()) / 1e6
}
