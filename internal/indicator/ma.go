// Package indicator provides incremental technical indicators over bar data.
//
// The numeric core (moving averages, rolling standard deviation, least-squares
// channels, Heikin-Ashi smoothing and VWAP) is fed one sample at a time and
// keeps bounded state. Values that are not ready yet are reported as NaN.
// Plugins wrap the core behind a small capability interface and the Engine
// drives them per instrument and timeframe.
package indicator

import (
	"fmt"
	"math"
)

// MAType selects a moving-average variant.
type MAType string

const (
	MASimple      MAType = "simple"
	MAExponential MAType = "exponential"
	MAWeighted    MAType = "weighted"
	MAHull        MAType = "hull"
)

// ParseMAType validates a moving-average variant name.
func ParseMAType(s string) (MAType, error) {
	switch t := MAType(s); t {
	case MASimple, MAExponential, MAWeighted, MAHull:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown moving average type %q", ErrInvalidConfig, s)
}

// MovingAverage is a rolling average fed once per bar in time order.
type MovingAverage interface {
	// Update feeds one sample and returns the current average, NaN until ready.
	Update(value float64) float64

	// Peek returns what Update would return for value, without mutating state.
	Peek(value float64) float64

	// Value returns the current average, NaN until ready.
	Value() float64

	// Ready returns true once enough samples have been seen.
	Ready() bool

	// Period returns the configured window length.
	Period() int

	// Reset clears all accumulated state.
	Reset()

	// Snapshot captures the state for checkpoint persistence.
	Snapshot() MASnapshot

	// RestoreFromSnapshot loads state captured by Snapshot.
	RestoreFromSnapshot(snap MASnapshot) error
}

// NewMovingAverage builds the variant selected by t. Unknown types fall back
// to weighted, which is the default smoothing of the Heikin-Ashi indicator.
func NewMovingAverage(t MAType, period int) MovingAverage {
	switch t {
	case MASimple:
		return NewSMA(period)
	case MAExponential:
		return NewEMA(period)
	case MAHull:
		return NewHMA(period)
	default:
		return NewWMA(period)
	}
}

// MASnapshot holds the serialized state of one moving average.
type MASnapshot struct {
	Type    MAType       `json:"type"`
	Period  int          `json:"period"`
	Buf     []float64    `json:"buf,omitempty"`
	Idx     int          `json:"idx,omitempty"`
	Count   int          `json:"count"`
	Sum     float64      `json:"sum,omitempty"`
	Current float64      `json:"current,omitempty"`
	Parts   []MASnapshot `json:"parts,omitempty"` // hull: long, short, final
}

func checkSnapshot(snap MASnapshot, want MAType, period int) error {
	if snap.Type != want {
		return fmt.Errorf("snapshot type %q does not match %q", snap.Type, want)
	}
	if snap.Period != period {
		return fmt.Errorf("snapshot period %d does not match %d", snap.Period, period)
	}
	return nil
}

func restoreBuf(snap MASnapshot, period int) ([]float64, error) {
	buf := make([]float64, period)
	if len(snap.Buf) == 0 {
		return buf, nil
	}
	if len(snap.Buf) != period {
		return nil, fmt.Errorf("snapshot buffer len %d does not match period %d", len(snap.Buf), period)
	}
	copy(buf, snap.Buf)
	return buf, nil
}

var nan = math.NaN()
