package indicator

import (
	"fmt"
	"testing"
)

func TestStepHeikinAshi_SelfSeeds(t *testing.T) {
	cur := OHLC{Open: 10, High: 12, Low: 8, Close: 11}
	c, st, ok := StepHeikinAshi(HAState{}, cur, BlendFor(SmoothingValcu))
	if !ok || !st.Valid {
		t.Fatal("expected a candle from the first finite input")
	}
	// prevHaOpen = avg(cur) and prevOHLC = cur, so haOpen = avg(cur)
	assertClose(t, "haOpen", c.Open, cur.Avg(), 1e-12)
	assertClose(t, "haClose", c.Close, cur.Avg(), 1e-12)
	assertClose(t, "haHigh", c.High, 12, 1e-12)
	assertClose(t, "haLow", c.Low, 8, 1e-12)
	if st.Prev != cur || st.PrevHaOpen != c.Open {
		t.Errorf("state = %+v, want prev=cur and prevHaOpen=%v", st, c.Open)
	}
}

func TestStepHeikinAshi_Valcu(t *testing.T) {
	prev := OHLC{Open: 10, High: 12, Low: 8, Close: 10} // avg 10
	st := HAState{Valid: true, Prev: prev, PrevHaOpen: 9}
	cur := OHLC{Open: 11, High: 14, Low: 10, Close: 13} // avg 12

	c, next, ok := StepHeikinAshi(st, cur, BlendFor(SmoothingValcu))
	if !ok {
		t.Fatal("step failed")
	}
	assertClose(t, "haOpen", c.Open, 9.5, 1e-12) // (9+10)/2
	assertClose(t, "haClose", c.Close, 12, 1e-12)
	assertClose(t, "haHigh", c.High, 14, 1e-12)
	assertClose(t, "haLow", c.Low, 9.5, 1e-12) // min(10, 9.5)
	if !c.Rising() {
		t.Error("expected rising candle")
	}
	if next.Prev != cur || next.PrevHaOpen != 9.5 {
		t.Errorf("next state = %+v", next)
	}
}

func TestStepHeikinAshi_Vervoort(t *testing.T) {
	prev := OHLC{Open: 10, High: 12, Low: 8, Close: 10}
	st := HAState{Valid: true, Prev: prev, PrevHaOpen: 9}
	cur := OHLC{Open: 11, High: 14, Low: 10, Close: 13}

	c, _, ok := StepHeikinAshi(st, cur, BlendFor(SmoothingVervoort))
	if !ok {
		t.Fatal("step failed")
	}
	// (12 + 9.5 + max(14,9.5) + min(10,9.5)) / 4 = 45/4
	assertClose(t, "haClose", c.Close, 11.25, 1e-12)
	assertClose(t, "haOpen", c.Open, 9.5, 1e-12)
}

func TestStepHeikinAshi_NotFiniteInvalidates(t *testing.T) {
	st := HAState{Valid: true, Prev: OHLC{Open: 1, High: 1, Low: 1, Close: 1}, PrevHaOpen: 1}
	_, next, ok := StepHeikinAshi(st, OHLC{Open: nan, High: 1, Low: 1, Close: 1}, BlendFor(SmoothingValcu))
	if ok || next.Valid {
		t.Fatal("expected no candle and an invalid state for NaN input")
	}
}

func TestStepHeikinAshi_Ordering(t *testing.T) {
	candles := []OHLC{
		{Open: 10, High: 12, Low: 8, Close: 10},
		{Open: 100, High: 101, Low: 95, Close: 96},
		{Open: 5, High: 9, Low: 5, Close: 9},
		{Open: 3, High: 3, Low: 3, Close: 3},
	}
	for _, mode := range []Smoothing{SmoothingValcu, SmoothingVervoort} {
		blend := BlendFor(mode)
		for i, cur := range candles {
			_, st, _ := StepHeikinAshi(HAState{}, cur, blend)
			c, _, ok := StepHeikinAshi(st, cur, blend)
			if !ok {
				t.Fatalf("%s candle %d: step failed", mode, i)
			}
			label := fmt.Sprintf("%s candle %d: %+v", mode, i, c)
			if !(c.High >= c.Open && c.Open >= c.Low) {
				t.Errorf("%s: open outside high/low", label)
			}
			if !(c.High >= c.Close && c.Close >= c.Low) {
				t.Errorf("%s: close outside high/low", label)
			}
		}
	}
}

func TestHeikinAshiSmoother_WarmUp(t *testing.T) {
	h := NewHeikinAshiSmoother(MASimple, 3, SmoothingValcu)
	for i, v := range series(10) {
		_, ok := h.Update(OHLC{Open: v, High: v + 1, Low: v - 1, Close: v})
		if want := i >= 2; ok != want {
			t.Errorf("bar %d: ok=%v, want %v", i, ok, want)
		}
	}
}

func TestHeikinAshiSmoother_PeekMatchesUpdate(t *testing.T) {
	for _, typ := range []MAType{MASimple, MAExponential, MAWeighted, MAHull} {
		a := NewHeikinAshiSmoother(typ, 9, SmoothingVervoort)
		b := NewHeikinAshiSmoother(typ, 9, SmoothingVervoort)
		for i, v := range series(40) {
			bar := OHLC{Open: v, High: v + 2, Low: v - 1.5, Close: v + 0.5}
			peeked, pok := a.Peek(bar)
			got, gok := b.Update(bar)
			a.Update(bar)
			if pok != gok || (pok && peeked != got) {
				t.Fatalf("%s bar %d: peek=%+v/%v update=%+v/%v", typ, i, peeked, pok, got, gok)
			}
		}
	}
}

func TestHeikinAshiSmoother_SnapshotRoundTrip(t *testing.T) {
	in := series(60)
	orig := NewHeikinAshiSmoother(MAHull, 16, SmoothingValcu)
	for _, v := range in[:40] {
		orig.Update(OHLC{Open: v, High: v + 1, Low: v - 1, Close: v})
	}
	restored := NewHeikinAshiSmoother(MAHull, 16, SmoothingValcu)
	mas, st := orig.Snapshot()
	if err := restored.Restore(mas, st); err != nil {
		t.Fatalf("restore: %v", err)
	}
	for i, v := range in[40:] {
		bar := OHLC{Open: v, High: v + 1, Low: v - 1, Close: v}
		want, _ := orig.Update(bar)
		got, _ := restored.Update(bar)
		if got != want {
			t.Fatalf("bar %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestParseSmoothing(t *testing.T) {
	if _, err := ParseSmoothing("valcu"); err != nil {
		t.Error(err)
	}
	if _, err := ParseSmoothing("vervoort"); err != nil {
		t.Error(err)
	}
	if _, err := ParseSmoothing("heiken"); err == nil {
		t.Error("expected error for unknown smoothing")
	}
}
