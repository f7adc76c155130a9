package indicator

import (
	"fmt"
	"math"
	"time"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

// Timeframe is the period a VWAP accumulates over before resetting.
type Timeframe string

const (
	TimeframeDaily    Timeframe = "daily"
	TimeframeWeekly   Timeframe = "weekly"
	TimeframeTwoWeeks Timeframe = "twoWeeks"
	TimeframeMonthly  Timeframe = "monthly"
)

// ParseTimeframe validates a VWAP timeframe name.
func ParseTimeframe(s string) (Timeframe, error) {
	switch t := Timeframe(s); t {
	case TimeframeDaily, TimeframeWeekly, TimeframeTwoWeeks, TimeframeMonthly:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown vwap timeframe %q", ErrInvalidConfig, s)
}

// VWAPState is the accumulator of one VWAP period plus the boundary markers
// of the previous bar. Unset markers are -1.
type VWAPState struct {
	TotalVolume float64 `json:"total_volume"`
	TotalPV     float64 `json:"total_pv"`
	TotalPV2    float64 `json:"total_pv2"`

	PrevTradeDate   int `json:"prev_trade_date"`
	PrevWeekday     int `json:"prev_weekday"`
	PrevMonth       int `json:"prev_month"`
	PrevLdomWeekday int `json:"prev_ldom_weekday"`

	PeriodStart int64 `json:"period_start"` // unix seconds of the bar that opened the period
}

// NewVWAPState returns an empty accumulator with unset markers.
func NewVWAPState() VWAPState {
	return VWAPState{
		PrevTradeDate:   -1,
		PrevWeekday:     -1,
		PrevMonth:       -1,
		PrevLdomWeekday: -1,
	}
}

// resetPolicy decides whether the bar at local time t opens a new period.
// It updates the markers it owns.
type resetPolicy func(st *VWAPState, t time.Time) bool

func dailyReset(_ *VWAPState, _ time.Time) bool { return true }

func weeklyReset(st *VWAPState, t time.Time) bool {
	wd := int(t.Weekday())
	reset := st.PrevWeekday > wd
	st.PrevWeekday = wd
	return reset
}

func twoWeeksReset(st *VWAPState, t time.Time) bool {
	if !weeklyReset(st, t) {
		return false
	}
	_, week := t.ISOWeek()
	return week%2 == 0
}

// monthlyReset resets on the last calendar day of the month, unless the
// previous bar's month ended on a weekend, in which case the first bar of
// the new month resets instead.
func monthlyReset(st *VWAPState, t time.Time) bool {
	month := int(t.Month())
	ldom := markethours.LastDayOfMonth(t)
	ldomWeekday := ldom.Weekday()

	var reset bool
	if st.PrevLdomWeekday == int(time.Saturday) || st.PrevLdomWeekday == int(time.Sunday) {
		reset = month != st.PrevMonth
	} else {
		reset = t.Day() == ldom.Day()
	}
	st.PrevMonth = month
	st.PrevLdomWeekday = int(ldomWeekday)
	return reset
}

func policyFor(tf Timeframe) resetPolicy {
	switch tf {
	case TimeframeWeekly:
		return weeklyReset
	case TimeframeTwoWeeks:
		return twoWeeksReset
	case TimeframeMonthly:
		return monthlyReset
	default:
		return dailyReset
	}
}

// VWAPOutput is one VWAP reading.
type VWAPOutput struct {
	VWAP   float64
	StdDev float64
	Reset  bool // the bar opened a new period
}

// VWAP is a volume-weighted average price that resets on period boundaries.
// Calendar fields are read in the session's location.
type VWAP struct {
	timeframe Timeframe
	policy    resetPolicy
	session   markethours.Session
	state     VWAPState
}

// NewVWAP creates a VWAP for the given timeframe.
func NewVWAP(tf Timeframe, session markethours.Session) *VWAP {
	return &VWAP{
		timeframe: tf,
		policy:    policyFor(tf),
		session:   session,
		state:     NewVWAPState(),
	}
}

// Update accumulates one bar. ok is false while the period has no volume.
func (v *VWAP) Update(bar *model.Bar) (VWAPOutput, bool) {
	return v.step(&v.state, bar)
}

// Peek returns what Update would return for bar without mutating state.
func (v *VWAP) Peek(bar *model.Bar) (VWAPOutput, bool) {
	st := v.state
	return v.step(&st, bar)
}

func (v *VWAP) step(st *VWAPState, bar *model.Bar) (VWAPOutput, bool) {
	tradeDate := bar.TradeDate
	if tradeDate == 0 {
		tradeDate = v.session.TradeDate(bar.TS)
	}

	// The policy always runs so its markers track every bar.
	boundary := v.policy(st, v.session.Local(bar.TS))
	reset := st.PrevTradeDate == -1 || (st.PrevTradeDate != tradeDate && boundary)
	if reset {
		st.TotalVolume = 0
		st.TotalPV = 0
		st.TotalPV2 = 0
		st.PeriodStart = bar.TS.Unix()
	}

	tp := bar.TypicalPrice()
	st.TotalVolume += bar.Volume
	st.TotalPV += tp * bar.Volume
	st.TotalPV2 += tp * tp * bar.Volume
	st.PrevTradeDate = tradeDate

	if st.TotalVolume == 0 {
		return VWAPOutput{Reset: reset}, false
	}
	vwap := st.TotalPV / st.TotalVolume
	variance := st.TotalPV2/st.TotalVolume - vwap*vwap
	return VWAPOutput{
		VWAP:   vwap,
		StdDev: math.Sqrt(math.Max(variance, 0)),
		Reset:  reset,
	}, true
}

// State returns a copy of the accumulator.
func (v *VWAP) State() VWAPState { return v.state }

// SetState replaces the accumulator.
func (v *VWAP) SetState(st VWAPState) { v.state = st }

// Reset clears the accumulator and markers.
func (v *VWAP) Reset() { v.state = NewVWAPState() }

// Timeframe returns the configured reset period.
func (v *VWAP) Timeframe() Timeframe { return v.timeframe }
