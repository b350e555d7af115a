// Package history keeps the bounded in-memory series of samples shown by
// the live view, with running min/peak/avg statistics.
package history

import (
	"math"
	"sync"

	"github.com/luki/scm10/internal/sensor"
)

// Stats summarises the samples appended since the last Reset.
type Stats struct {
	Count int
	Min   float64
	Peak  float64
	Avg   float64
	Last  float64
}

// Ring is a FIFO of samples holding at most Max entries (0 = unbounded).
// It is safe for one writer and any number of readers.
type Ring struct {
	mu     sync.RWMutex
	points []sensor.Sample
	max    int
	min    float64
	peak   float64
}

// New creates an empty ring with the given capacity.
func New(maxPoints int) *Ring {
	r := &Ring{max: maxPoints}
	r.resetLocked()
	return r
}

func (r *Ring) resetLocked() {
	capHint := r.max
	if capHint <= 0 || capHint > 4096 {
		capHint = 256
	}
	r.points = make([]sensor.Sample, 0, capHint)
	r.min = math.MaxFloat64
	r.peak = -math.MaxFloat64
}

// Reset drops all samples and statistics.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// Max returns the capacity, 0 meaning unbounded.
func (r *Ring) Max() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.max
}

// SetMax changes the capacity, trimming the oldest samples if needed.
func (r *Ring) SetMax(maxPoints int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.max = maxPoints
	r.trimLocked()
}

func (r *Ring) trimLocked() {
	if r.max <= 0 || len(r.points) <= r.max {
		return
	}
	over := len(r.points) - r.max
	n := copy(r.points, r.points[over:])
	r.points = r.points[:n]
}

// Append adds s, evicting the oldest sample once the capacity is exceeded.
func (r *Ring) Append(s sensor.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, s)
	r.trimLocked()

	if s.Kelvin < r.min {
		r.min = s.Kelvin
	}
	if s.Kelvin > r.peak {
		r.peak = s.Kelvin
	}
}

// Len returns the number of samples held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points)
}

// Snapshot returns a copy of all samples, oldest first.
func (r *Ring) Snapshot() []sensor.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sensor.Sample, len(r.points))
	copy(out, r.points)
	return out
}

// LastN returns a copy of the newest n samples.
func (r *Ring) LastN(n int) []sensor.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || len(r.points) == 0 {
		return nil
	}
	start := len(r.points) - n
	if start < 0 {
		start = 0
	}
	out := make([]sensor.Sample, len(r.points[start:]))
	copy(out, r.points[start:])
	return out
}

// Latest returns the newest sample.
func (r *Ring) Latest() (sensor.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 {
		return sensor.Sample{}, false
	}
	return r.points[len(r.points)-1], true
}

// Stats returns min and peak since Reset; Avg is over the held samples.
func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Stats{Count: len(r.points)}
	if st.Count == 0 {
		return st
	}
	sum := 0.0
	for _, p := range r.points {
		sum += p.Kelvin
	}
	st.Avg = sum / float64(st.Count)
	st.Min = r.min
	st.Peak = r.peak
	st.Last = r.points[st.Count-1].Kelvin
	return st
}
