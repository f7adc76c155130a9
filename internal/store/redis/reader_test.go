package redis

import (
	"testing"
	"time"

	"chart-indicators/internal/model"
)

func TestDecodeBar(t *testing.T) {
	bar := model.Bar{
		Token: "ES", Exchange: "CME", TF: 60,
		TS:   time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC),
		Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
	}
	got, err := decodeBar(map[string]interface{}{"data": string(bar.JSON())})
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != "CME:ES" || got.TF != 60 || !got.TS.Equal(bar.TS) || got.Close != 1.5 {
		t.Errorf("decoded %+v", got)
	}

	bad := []map[string]interface{}{
		{},
		{"data": 42},
		{"data": "{not json"},
		{"data": `{"token":"ES","tf":0}`},
	}
	for _, v := range bad {
		if _, err := decodeBar(v); err == nil {
			t.Errorf("decodeBar(%v) should fail", v)
		}
	}
}

func baseBar(sec int64, o, h, l, c, v float64) model.Bar {
	return model.Bar{
		Token: "ES", Exchange: "CME", TF: 60,
		TS:   time.Unix(sec, 0).UTC(),
		Open: o, High: h, Low: l, Close: c, Volume: v,
	}
}

func TestFormingAggregator_RollsUp(t *testing.T) {
	agg := newFormingAggregator(60, []int{60, 300, 900, 90})

	start := int64(1741014000) // 15:00 UTC, aligned to 300 and 900
	out := agg.Add(baseBar(start, 10, 12, 9, 11, 100))
	if len(out) != 2 {
		t.Fatalf("got %d forming bars, want 2 (300 and 900; 90 is not a multiple)", len(out))
	}
	out = agg.Add(baseBar(start+60, 11, 15, 10, 14, 50))
	fb := out[0]
	if fb.TF != 300 || !fb.Forming {
		t.Fatalf("unexpected bar %+v", fb)
	}
	if fb.Open != 10 || fb.High != 15 || fb.Low != 9 || fb.Close != 14 || fb.Volume != 150 {
		t.Errorf("merged OHLCV = %v/%v/%v/%v/%v", fb.Open, fb.High, fb.Low, fb.Close, fb.Volume)
	}
	if fb.TS.Unix() != start {
		t.Errorf("forming TS = %d, want bucket start %d", fb.TS.Unix(), start)
	}

	// Next 300s bucket starts fresh; 900s keeps merging.
	out = agg.Add(baseBar(start+300, 20, 21, 19, 20, 5))
	if out[0].Open != 20 || out[0].Volume != 5 {
		t.Errorf("new bucket should reset, got %+v", out[0])
	}
	if out[1].Open != 10 || out[1].High != 21 || out[1].Volume != 155 {
		t.Errorf("900s bucket should keep merging, got %+v", out[1])
	}

	// A late bar for an old bucket is ignored for 300s.
	out = agg.Add(baseBar(start+120, 1, 1, 1, 1, 1))
	if len(out) != 1 || out[0].TF != 900 {
		t.Errorf("late bar should only touch the 900s bucket, got %d bars", len(out))
	}
}

func TestFormingAggregator_IgnoresOtherTFs(t *testing.T) {
	agg := newFormingAggregator(60, []int{300})
	b := baseBar(1741014000, 1, 1, 1, 1, 1)
	b.TF = 300
	if out := agg.Add(b); out != nil {
		t.Errorf("non-base bar produced %d forming bars", len(out))
	}

	if out := newFormingAggregator(0, []int{300}).Add(baseBar(1741014000, 1, 1, 1, 1, 1)); out != nil {
		t.Error("disabled aggregator should produce nothing")
	}
}
