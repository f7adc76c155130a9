package indicator

import (
	"fmt"
	"math"
	"testing"

	"github.com/markcheno/go-talib"
)

func TestSMA_Correctness_Period3(t *testing.T) {
	// SMA after sample 3: (100+102+104)/3 = 102
	// SMA after sample 4: (102+104+103)/3 = 103
	// SMA after sample 5: (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102, 103, 104}

	for i, p := range prices {
		got := sma.Update(p)
		if i < 2 {
			if !math.IsNaN(got) || sma.Ready() {
				t.Errorf("sample %d: got %v ready=%v, want NaN not ready", i, got, sma.Ready())
			}
			continue
		}
		assertClose(t, fmt.Sprintf("SMA(3) sample %d", i), got, expected[i], 1e-9)
	}
}

func TestWindowedMovingAverages_WarmUp(t *testing.T) {
	for _, typ := range []MAType{MASimple, MAWeighted} {
		for _, period := range []int{1, 2, 5, 14} {
			ma := NewMovingAverage(typ, period)
			for i, v := range series(3 * period) {
				got := ma.Update(v)
				if i < period-1 && !math.IsNaN(got) {
					t.Errorf("%s(%d) sample %d: got %v, want NaN", typ, period, i, got)
				}
				if i >= period-1 && (math.IsNaN(got) || math.IsInf(got, 0)) {
					t.Errorf("%s(%d) sample %d: got %v, want finite", typ, period, i, got)
				}
			}
		}
	}
}

func TestMovingAverages_Constant(t *testing.T) {
	for _, typ := range []MAType{MASimple, MAExponential, MAWeighted, MAHull} {
		for _, period := range []int{1, 3, 9, 35} {
			ma := NewMovingAverage(typ, period)
			var got float64
			for i := 0; i < 3*period+10; i++ {
				got = ma.Update(5)
			}
			if !ma.Ready() {
				t.Fatalf("%s(%d): not ready after %d samples", typ, period, 3*period+10)
			}
			assertClose(t, fmt.Sprintf("%s(%d) of constant", typ, period), got, 5, 1e-9)
		}
	}
}

func TestEMA_Period1MirrorsInput(t *testing.T) {
	ema := NewEMA(1)
	for i, v := range series(50) {
		if got := ema.Update(v); got != v {
			t.Fatalf("sample %d: got %v, want %v", i, got, v)
		}
	}
}

func TestEMA_SeededByFirstValue(t *testing.T) {
	ema := NewEMA(3) // α = 0.5
	assertClose(t, "first", ema.Update(10), 10, 1e-12)
	assertClose(t, "second", ema.Update(20), 15, 1e-12)
	assertClose(t, "third", ema.Update(20), 17.5, 1e-12)
}

func TestSMA_MatchesTalib(t *testing.T) {
	in := series(200)
	for _, period := range []int{2, 9, 20, 50} {
		want := talib.Sma(in, period)
		sma := NewSMA(period)
		for i, v := range in {
			got := sma.Update(v)
			if i >= period-1 {
				assertClose(t, fmt.Sprintf("SMA(%d)[%d]", period, i), got, want[i], 1e-9)
			}
		}
	}
}

func TestWMA_MatchesTalib(t *testing.T) {
	in := series(200)
	for _, period := range []int{2, 9, 20, 35} {
		want := talib.Wma(in, period)
		wma := NewWMA(period)
		for i, v := range in {
			got := wma.Update(v)
			if i >= period-1 {
				assertClose(t, fmt.Sprintf("WMA(%d)[%d]", period, i), got, want[i], 1e-9)
			}
		}
	}
}

func TestWMA_HandCalculated(t *testing.T) {
	// (1·1 + 2·2 + 3·4) / 6 = 17/6
	wma := NewWMA(3)
	wma.Update(1)
	wma.Update(2)
	assertClose(t, "WMA(3)", wma.Update(4), 17.0/6.0, 1e-12)
	// (1·2 + 2·4 + 3·8) / 6 = 34/6
	assertClose(t, "WMA(3) next", wma.Update(8), 34.0/6.0, 1e-12)
}

func TestHMA_MatchesComposition(t *testing.T) {
	const period = 16
	in := series(120)

	long, short, final := NewWMA(period), NewWMA(period/2), NewWMA(4)
	hma := NewHMA(period)
	for i, v := range in {
		l := long.Update(v)
		s := short.Update(v)
		want := nan
		if !math.IsNaN(l) {
			want = final.Update(2*s - l)
		}
		got := hma.Update(v)
		if math.IsNaN(want) != math.IsNaN(got) {
			t.Fatalf("sample %d: got %v, want %v", i, got, want)
		}
		if !math.IsNaN(want) {
			assertClose(t, fmt.Sprintf("HMA(%d)[%d]", period, i), got, want, 1e-9)
		}
	}
}

func TestHMA_WarmUp(t *testing.T) {
	// WMA(9) ready after 9 samples, then WMA(3) after 3 more differences.
	hma := NewHMA(9)
	for i, v := range series(20) {
		got := hma.Update(v)
		if ready := i >= 10; ready == math.IsNaN(got) {
			t.Errorf("sample %d: got %v, ready want %v", i, got, ready)
		}
	}
}

func TestMovingAverage_PeekDoesNotMutate(t *testing.T) {
	for _, typ := range []MAType{MASimple, MAExponential, MAWeighted, MAHull} {
		a := NewMovingAverage(typ, 10)
		b := NewMovingAverage(typ, 10)
		for i, v := range series(40) {
			peeked := a.Peek(v + 1)
			peeked2 := a.Peek(v + 1)
			if !(math.IsNaN(peeked) && math.IsNaN(peeked2)) && peeked != peeked2 {
				t.Fatalf("%s sample %d: peek not repeatable: %v vs %v", typ, i, peeked, peeked2)
			}
			want := b.Update(v + 1)
			if !(math.IsNaN(peeked) && math.IsNaN(want)) && math.Abs(peeked-want) > 1e-9 {
				t.Fatalf("%s sample %d: peek=%v update=%v", typ, i, peeked, want)
			}
			a.Update(v + 1)
		}
	}
}

func TestMovingAverage_Reset(t *testing.T) {
	for _, typ := range []MAType{MASimple, MAExponential, MAWeighted, MAHull} {
		ma := NewMovingAverage(typ, 5)
		for _, v := range series(30) {
			ma.Update(v)
		}
		ma.Reset()
		if ma.Ready() || !math.IsNaN(ma.Value()) {
			t.Errorf("%s: expected cold state after Reset", typ)
		}
	}
}

func TestMovingAverage_SnapshotRoundTrip(t *testing.T) {
	in := series(80)
	for _, typ := range []MAType{MASimple, MAExponential, MAWeighted, MAHull} {
		orig := NewMovingAverage(typ, 12)
		for _, v := range in[:50] {
			orig.Update(v)
		}

		restored := NewMovingAverage(typ, 12)
		if err := restored.RestoreFromSnapshot(orig.Snapshot()); err != nil {
			t.Fatalf("%s: restore: %v", typ, err)
		}
		for i, v := range in[50:] {
			want := orig.Update(v)
			got := restored.Update(v)
			assertClose(t, fmt.Sprintf("%s after restore [%d]", typ, i), got, want, 1e-12)
		}
	}
}

func TestMovingAverage_SnapshotMismatch(t *testing.T) {
	snap := NewSMA(10).Snapshot()
	if err := NewSMA(11).RestoreFromSnapshot(snap); err == nil {
		t.Error("expected error for period mismatch")
	}
	if err := NewEMA(10).RestoreFromSnapshot(snap); err == nil {
		t.Error("expected error for type mismatch")
	}
}

func TestParseMAType(t *testing.T) {
	for _, s := range []string{"simple", "exponential", "weighted", "hull"} {
		if _, err := ParseMAType(s); err != nil {
			t.Errorf("ParseMAType(%q): %v", s, err)
		}
	}
	if _, err := ParseMAType("triangular"); err == nil {
		t.Error("expected error for unknown type")
	}
}
