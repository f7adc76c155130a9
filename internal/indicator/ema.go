package indicator

// EMA calculates Exponential Moving Average, seeded by the first sample.
// O(1) per update with no window storage.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA with the given period (alpha = 2/(period+1)).
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Update(value float64) float64 {
	e.current = e.next(value)
	e.count++
	return e.current
}

// Peek computes what Update would return without mutating state.
func (e *EMA) Peek(value float64) float64 {
	return e.next(value)
}

func (e *EMA) next(value float64) float64 {
	if e.count == 0 {
		return value
	}
	// EMA = (value * multiplier) + (EMA_prev * (1 - multiplier))
	return (value * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return nan
	}
	return e.current
}

func (e *EMA) Ready() bool { return e.count > 0 }
func (e *EMA) Period() int { return e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *EMA) Snapshot() MASnapshot {
	return MASnapshot{
		Type:    MAExponential,
		Period:  e.period,
		Count:   e.count,
		Current: e.current,
	}
}

// RestoreFromSnapshot restores EMA state from a checkpoint.
func (e *EMA) RestoreFromSnapshot(snap MASnapshot) error {
	if err := checkSnapshot(snap, MAExponential, e.period); err != nil {
		return err
	}
	e.count = snap.Count
	e.current = snap.Current
	return nil
}
