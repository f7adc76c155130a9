package indicator

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period int
	buf    []float64 // preallocated circular buffer
	idx    int       // current write position
	count  int       // total values received
	sum    float64
}

// NewSMA creates a new SMA with the given period.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Update(value float64) float64 {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = value
	s.sum += value
	s.idx = (s.idx + 1) % s.period
	s.count++

	return s.Value()
}

// Peek computes what Update would return without mutating state.
func (s *SMA) Peek(value float64) float64 {
	if s.count+1 < s.period {
		return nan
	}
	if s.count < s.period {
		return (s.sum + value) / float64(s.period)
	}
	// Preview: replace the oldest value (at idx) with the new one
	return (s.sum - s.buf[s.idx] + value) / float64(s.period)
}

func (s *SMA) Value() float64 {
	if !s.Ready() {
		return nan
	}
	return s.sum / float64(s.period)
}

func (s *SMA) Ready() bool { return s.count >= s.period }
func (s *SMA) Period() int { return s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// Snapshot serializes the SMA state for checkpoint persistence.
func (s *SMA) Snapshot() MASnapshot {
	bufCopy := make([]float64, len(s.buf))
	copy(bufCopy, s.buf)
	return MASnapshot{
		Type:   MASimple,
		Period: s.period,
		Buf:    bufCopy,
		Idx:    s.idx,
		Count:  s.count,
		Sum:    s.sum,
	}
}

// RestoreFromSnapshot restores SMA state from a checkpoint.
func (s *SMA) RestoreFromSnapshot(snap MASnapshot) error {
	if err := checkSnapshot(snap, MASimple, s.period); err != nil {
		return err
	}
	buf, err := restoreBuf(snap, s.period)
	if err != nil {
		return err
	}
	s.buf = buf
	s.idx = snap.Idx % s.period
	s.count = snap.Count
	s.sum = snap.Sum
	return nil
}
