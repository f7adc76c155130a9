package indicator

import (
	"math"
	"testing"
	"time"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// series returns a deterministic, non-trivial price path.
func series(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 100 + 5*math.Sin(x/3) + 0.25*x + 2*math.Cos(x/7)
	}
	return out
}

var testStart = time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC) // Monday

func makeBar(token string, tf int, ts time.Time, o, h, l, c, v float64) model.Bar {
	return model.Bar{
		Token:    token,
		Exchange: "CME",
		TF:       tf,
		TS:       ts,
		Open:     o,
		High:     h,
		Low:      l,
		Close:    c,
		Volume:   v,
	}
}

func utc() markethours.Session { return markethours.UTCSession() }
