package indicator

// WMA calculates a linearly Weighted Moving Average: the oldest sample in the
// window has weight 1 and the newest has weight period.
type WMA struct {
	period  int
	buf     []float64
	idx     int // next write position == oldest sample once full
	count   int
	divisor float64
}

// NewWMA creates a new WMA with the given period.
func NewWMA(period int) *WMA {
	if period < 1 {
		period = 1
	}
	return &WMA{
		period:  period,
		buf:     make([]float64, period),
		divisor: float64(period*(period+1)) / 2.0,
	}
}

func (w *WMA) Update(value float64) float64 {
	w.buf[w.idx] = value
	w.idx = (w.idx + 1) % w.period
	w.count++
	return w.Value()
}

// Peek computes what Update would return without mutating state.
func (w *WMA) Peek(value float64) float64 {
	if w.count+1 < w.period {
		return nan
	}
	// Oldest surviving sample sits just after the slot value would overwrite.
	var num float64
	for k := 1; k < w.period; k++ {
		num += float64(k) * w.buf[(w.idx+k)%w.period]
	}
	num += float64(w.period) * value
	return num / w.divisor
}

func (w *WMA) Value() float64 {
	if !w.Ready() {
		return nan
	}
	var num float64
	for k := 0; k < w.period; k++ {
		num += float64(k+1) * w.buf[(w.idx+k)%w.period]
	}
	return num / w.divisor
}

func (w *WMA) Ready() bool { return w.count >= w.period }
func (w *WMA) Period() int { return w.period }

// Reset clears the WMA state for reuse.
func (w *WMA) Reset() {
	w.idx = 0
	w.count = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}

// Snapshot serializes the WMA state for checkpoint persistence.
func (w *WMA) Snapshot() MASnapshot {
	bufCopy := make([]float64, len(w.buf))
	copy(bufCopy, w.buf)
	return MASnapshot{
		Type:   MAWeighted,
		Period: w.period,
		Buf:    bufCopy,
		Idx:    w.idx,
		Count:  w.count,
	}
}

// RestoreFromSnapshot restores WMA state from a checkpoint.
func (w *WMA) RestoreFromSnapshot(snap MASnapshot) error {
	if err := checkSnapshot(snap, MAWeighted, w.period); err != nil {
		return err
	}
	buf, err := restoreBuf(snap, w.period)
	if err != nil {
		return err
	}
	w.buf = buf
	w.idx = snap.Idx % w.period
	w.count = snap.Count
	return nil
}
