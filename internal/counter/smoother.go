package counter

// Smoother is an exponential smoother over a scalar signal.
//
// The previous value is weighted by alpha and the new sample by 1-alpha, so
// with the default alpha of 0.35 the incoming sample dominates.
type Smoother struct {
	alpha float64
	value float64
	ready bool
}

// NewSmoother creates a Smoother with the given weighting coefficient.
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Update feeds x and returns the smoothed value. The first sample is
// returned unchanged.
func (s *Smoother) Update(x float64) float64 {
	if !s.ready {
		s.value = x
		s.ready = true
		return x
	}
	s.value = s.alpha*s.value + (1-s.alpha)*x
	return s.value
}

// Value returns the current smoothed value and whether any sample has been seen.
func (s *Smoother) Value() (float64, bool) {
	return s.value, s.ready
}

// Reset returns the smoother to its uninitialized state.
func (s *Smoother) Reset() {
	s.value = 0
	s.ready = false
}
