package counter

// RangeTracker keeps the most recent values in a fixed-capacity ring buffer
// and reports their running min and max.
type RangeTracker struct {
	values []float64
	pos    int
	n      int
}

// NewRangeTracker creates a tracker holding at most capacity values.
// A capacity below 1 is treated as 1.
func NewRangeTracker(capacity int) *RangeTracker {
	if capacity < 1 {
		capacity = 1
	}
	return &RangeTracker{values: make([]float64, capacity)}
}

// Update pushes v, evicting the oldest value when full, and returns the
// min and max of the retained window.
func (r *RangeTracker) Update(v float64) (min, max float64) {
	r.values[r.pos] = v
	r.pos = (r.pos + 1) % len(r.values)
	if r.n < len(r.values) {
		r.n++
	}
	return r.bounds()
}

func (r *RangeTracker) bounds() (min, max float64) {
	min, max = r.values[0], r.values[0]
	for _, v := range r.values[1:r.n] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Len returns the number of retained values.
func (r *RangeTracker) Len() int { return r.n }

// Values returns the retained values, oldest first.
func (r *RangeTracker) Values() []float64 {
	out := make([]float64, 0, r.n)
	start := r.pos - r.n
	if start < 0 {
		start += len(r.values)
	}
	for i := 0; i < r.n; i++ {
		out = append(out, r.values[(start+i)%len(r.values)])
	}
	return out
}

// Reset empties the window.
func (r *RangeTracker) Reset() {
	r.pos = 0
	r.n = 0
}
