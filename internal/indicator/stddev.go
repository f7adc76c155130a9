package indicator

import "math"

// StdDev calculates the population standard deviation of the trailing period
// samples. The variance is recomputed from the window, shifted by its first
// sample, so a constant window yields exactly zero.
type StdDev struct {
	period int
	buf    []float64
	idx    int
	count  int
}

// NewStdDev creates a rolling standard deviation with the given window.
func NewStdDev(period int) *StdDev {
	if period < 1 {
		period = 1
	}
	return &StdDev{
		period: period,
		buf:    make([]float64, period),
	}
}

// Update feeds one sample and returns the deviation, NaN until the window fills.
func (s *StdDev) Update(value float64) float64 {
	s.buf[s.idx] = value
	s.idx = (s.idx + 1) % s.period
	s.count++
	return s.Value()
}

// Value returns the current deviation, NaN until the window fills.
func (s *StdDev) Value() float64 {
	if !s.Ready() {
		return nan
	}
	n := float64(s.period)
	shift := s.buf[0]
	var sum, ss float64
	for _, v := range s.buf {
		d := v - shift
		sum += d
		ss += d * d
	}
	variance := (ss - sum*sum/n) / n
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (s *StdDev) Ready() bool { return s.count >= s.period }
func (s *StdDev) Period() int { return s.period }

// Reset clears the window.
func (s *StdDev) Reset() {
	s.idx = 0
	s.count = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
