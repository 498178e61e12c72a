package l2frames

import "fmt"

// Ring is a fixed-capacity circular store of samples.
//
// Cursor always names the next slot to overwrite. Once the ring has wrapped
// the slots hold the most recent Cap() samples in circular order: slot 0 is
// not necessarily the oldest or the newest. Ring is not safe for concurrent
// use.
type Ring struct {
	angles    []float64
	distances []float64
	cursor    int
	written   uint64
}

// NewRing allocates a ring with n slots. n must be positive.
func NewRing(n int) (*Ring, error) {
	if n <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", n)
	}
	return &Ring{
		angles:    make([]float64, n),
		distances: make([]float64, n),
	}, nil
}

// Write stores s at the cursor and advances it.
func (r *Ring) Write(s Sample) {
	r.angles[r.cursor] = s.AngleRad
	r.distances[r.cursor] = s.DistanceM
	r.cursor = (r.cursor + 1) % len(r.angles)
	r.written++
}

// WriteBatch writes samples in order.
func (r *Ring) WriteBatch(samples []Sample) {
	for _, s := range samples {
		r.Write(s)
	}
}

// Snapshot returns copies of the angle and distance slots in slot order.
func (r *Ring) Snapshot() (angles, distances []float64) {
	angles = make([]float64, len(r.angles))
	distances = make([]float64, len(r.distances))
	copy(angles, r.angles)
	copy(distances, r.distances)
	return angles, distances
}

// Ordered returns copies of the stored samples oldest first. Before the
// ring has filled only the written slots are returned.
func (r *Ring) Ordered() (angles, distances []float64) {
	n := len(r.angles)
	if r.written < uint64(n) {
		angles = append([]float64(nil), r.angles[:r.cursor]...)
		distances = append([]float64(nil), r.distances[:r.cursor]...)
		return angles, distances
	}
	angles = make([]float64, 0, n)
	distances = make([]float64, 0, n)
	angles = append(append(angles, r.angles[r.cursor:]...), r.angles[:r.cursor]...)
	distances = append(append(distances, r.distances[r.cursor:]...), r.distances[:r.cursor]...)
	return angles, distances
}

// Cursor returns the index of the next slot to be written.
func (r *Ring) Cursor() int { return r.cursor }

// Cap returns the number of slots.
func (r *Ring) Cap() int { return len(r.angles) }

// Written returns the total number of samples written since construction.
func (r *Ring) Written() uint64 { return r.written }
