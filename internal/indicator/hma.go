package indicator

import (
	"fmt"
	"math"
)

// HMA calculates the Hull Moving Average:
//
//	WMA(⌈√n⌉) of (2·WMA(n/2) − WMA(n))
//
// Both inner averages see the raw stream; the outer one only starts receiving
// the difference series once WMA(n) is ready, so the first value appears after
// n + ⌈√n⌉ − 1 samples.
type HMA struct {
	period int
	long   *WMA
	short  *WMA
	final  *WMA
}

// NewHMA creates a new HMA with the given period.
func NewHMA(period int) *HMA {
	if period < 1 {
		period = 1
	}
	half := period / 2
	if half < 1 {
		half = 1
	}
	root := int(math.Ceil(math.Sqrt(float64(period))))
	return &HMA{
		period: period,
		long:   NewWMA(period),
		short:  NewWMA(half),
		final:  NewWMA(root),
	}
}

func (h *HMA) Update(value float64) float64 {
	l := h.long.Update(value)
	s := h.short.Update(value)
	if !h.long.Ready() {
		return nan
	}
	return h.final.Update(2*s - l)
}

// Peek computes what Update would return without mutating state.
func (h *HMA) Peek(value float64) float64 {
	l := h.long.Peek(value)
	s := h.short.Peek(value)
	if math.IsNaN(l) {
		return nan
	}
	return h.final.Peek(2*s - l)
}

func (h *HMA) Value() float64 { return h.final.Value() }
func (h *HMA) Ready() bool    { return h.final.Ready() }
func (h *HMA) Period() int    { return h.period }

// Reset clears all three sub-averages.
func (h *HMA) Reset() {
	h.long.Reset()
	h.short.Reset()
	h.final.Reset()
}

// Snapshot serializes the three sub-averages.
func (h *HMA) Snapshot() MASnapshot {
	return MASnapshot{
		Type:   MAHull,
		Period: h.period,
		Count:  h.long.count,
		Parts:  []MASnapshot{h.long.Snapshot(), h.short.Snapshot(), h.final.Snapshot()},
	}
}

// RestoreFromSnapshot restores the sub-averages from a checkpoint.
func (h *HMA) RestoreFromSnapshot(snap MASnapshot) error {
	if err := checkSnapshot(snap, MAHull, h.period); err != nil {
		return err
	}
	if len(snap.Parts) != 3 {
		return fmt.Errorf("hull snapshot has %d parts, want 3", len(snap.Parts))
	}
	for i, part := range []*WMA{h.long, h.short, h.final} {
		if err := part.RestoreFromSnapshot(snap.Parts[i]); err != nil {
			return fmt.Errorf("hull part %d: %w", i, err)
		}
	}
	return nil
}
