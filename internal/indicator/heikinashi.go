package indicator

import (
	"fmt"
	"math"
)

// Smoothing selects how the Heikin-Ashi close is blended.
type Smoothing string

const (
	SmoothingValcu    Smoothing = "valcu"
	SmoothingVervoort Smoothing = "vervoort"
)

// ParseSmoothing validates a candle smoothing mode.
func ParseSmoothing(s string) (Smoothing, error) {
	switch m := Smoothing(s); m {
	case SmoothingValcu, SmoothingVervoort:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown candle smoothing %q", ErrInvalidConfig, s)
}

// OHLC is one set of open/high/low/close values.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Avg returns (open+high+low+close)/4.
func (o OHLC) Avg() float64 {
	return (o.Open + o.High + o.Low + o.Close) / 4.0
}

func (o OHLC) finite() bool {
	for _, v := range [4]float64{o.Open, o.High, o.Low, o.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// HACandle is a synthetic smoothed candle.
type HACandle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Rising reports whether the candle closed at or above its open.
func (c HACandle) Rising() bool { return c.Close >= c.Open }

// HAState is the one-step history a Heikin-Ashi step depends on: the
// previous smoothed OHLC and the previous synthetic open.
type HAState struct {
	Valid      bool    `json:"valid"`
	Prev       OHLC    `json:"prev"`
	PrevHaOpen float64 `json:"prev_ha_open"`
}

// CloseBlend computes the synthetic close from the current smoothed OHLC and
// the synthetic open.
type CloseBlend func(cur OHLC, haOpen float64) float64

// BlendFor returns the close formula of a smoothing mode. Unknown modes use
// Valcu.
func BlendFor(mode Smoothing) CloseBlend {
	if mode == SmoothingVervoort {
		return vervoortClose
	}
	return valcuClose
}

func valcuClose(cur OHLC, _ float64) float64 {
	return cur.Avg()
}

func vervoortClose(cur OHLC, haOpen float64) float64 {
	return (cur.Avg() + haOpen + math.Max(cur.High, haOpen) + math.Min(cur.Low, haOpen)) / 4.0
}

// StepHeikinAshi advances the smoother by one bar of smoothed OHLC values.
// An invalid state seeds itself from cur. When cur is not finite (moving
// averages still warming up) the returned state is invalid and ok is false.
func StepHeikinAshi(state HAState, cur OHLC, blend CloseBlend) (candle HACandle, next HAState, ok bool) {
	if !cur.finite() {
		return HACandle{}, HAState{}, false
	}

	prev, prevHaOpen := state.Prev, state.PrevHaOpen
	if !state.Valid {
		prev = cur
		prevHaOpen = cur.Avg()
	}

	haOpen := (prevHaOpen + prev.Avg()) / 2.0
	candle = HACandle{
		Open:  haOpen,
		High:  math.Max(cur.High, haOpen),
		Low:   math.Min(cur.Low, haOpen),
		Close: blend(cur, haOpen),
	}
	return candle, HAState{Valid: true, Prev: cur, PrevHaOpen: haOpen}, true
}

// HeikinAshiSmoother smooths each OHLC channel with its own moving average and
// blends the result into Heikin-Ashi candles.
type HeikinAshiSmoother struct {
	open, high, low, close MovingAverage

	blend CloseBlend
	state HAState
}

// NewHeikinAshiSmoother creates a smoother whose four channels all use the
// same moving-average variant and period.
func NewHeikinAshiSmoother(maType MAType, period int, mode Smoothing) *HeikinAshiSmoother {
	return &HeikinAshiSmoother{
		open:  NewMovingAverage(maType, period),
		high:  NewMovingAverage(maType, period),
		low:   NewMovingAverage(maType, period),
		close: NewMovingAverage(maType, period),
		blend: BlendFor(mode),
	}
}

// Update feeds one raw bar. ok is false while the averages are warming up.
func (h *HeikinAshiSmoother) Update(raw OHLC) (HACandle, bool) {
	cur := OHLC{
		Open:  h.open.Update(raw.Open),
		High:  h.high.Update(raw.High),
		Low:   h.low.Update(raw.Low),
		Close: h.close.Update(raw.Close),
	}
	candle, next, ok := StepHeikinAshi(h.state, cur, h.blend)
	h.state = next
	return candle, ok
}

// Peek returns the candle Update would produce without mutating state.
func (h *HeikinAshiSmoother) Peek(raw OHLC) (HACandle, bool) {
	cur := OHLC{
		Open:  h.open.Peek(raw.Open),
		High:  h.high.Peek(raw.High),
		Low:   h.low.Peek(raw.Low),
		Close: h.close.Peek(raw.Close),
	}
	candle, _, ok := StepHeikinAshi(h.state, cur, h.blend)
	return candle, ok
}

// State returns the current one-step history.
func (h *HeikinAshiSmoother) State() HAState { return h.state }

// Reset clears the averages and the history.
func (h *HeikinAshiSmoother) Reset() {
	for _, ma := range h.channels() {
		ma.Reset()
	}
	h.state = HAState{}
}

func (h *HeikinAshiSmoother) channels() [4]MovingAverage {
	return [4]MovingAverage{h.open, h.high, h.low, h.close}
}

// Snapshot captures the four averages and the history.
func (h *HeikinAshiSmoother) Snapshot() ([]MASnapshot, HAState) {
	mas := make([]MASnapshot, 0, 4)
	for _, ma := range h.channels() {
		mas = append(mas, ma.Snapshot())
	}
	return mas, h.state
}

// Restore loads state captured by Snapshot.
func (h *HeikinAshiSmoother) Restore(mas []MASnapshot, state HAState) error {
	if len(mas) != 4 {
		return fmt.Errorf("heikin-ashi snapshot has %d averages, want 4", len(mas))
	}
	for i, ma := range h.channels() {
		if err := ma.RestoreFromSnapshot(mas[i]); err != nil {
			return fmt.Errorf("heikin-ashi channel %d: %w", i, err)
		}
	}
	h.state = state
	return nil
}
