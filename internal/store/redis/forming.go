package redis

import (
	"strconv"
	"time"

	"chart-indicators/internal/model"
)

type formingState struct {
	bucket int64
	bar    model.Bar
}

// formingAggregator rolls base-TF bars up into forming bars of larger TFs.
// Each Add returns the current in-progress bar of every target TF, so live
// previews move with every base bar.
type formingAggregator struct {
	baseTF int
	tfs    []int
	state  map[string]*formingState // "tf:exchange:token"
}

func newFormingAggregator(baseTF int, tfs []int) *formingAggregator {
	var targets []int
	for _, tf := range tfs {
		if baseTF > 0 && tf > baseTF && tf%baseTF == 0 {
			targets = append(targets, tf)
		}
	}
	return &formingAggregator{
		baseTF: baseTF,
		tfs:    targets,
		state:  make(map[string]*formingState),
	}
}

// Add merges one base-TF bar and returns the forming snapshots it produced.
func (a *formingAggregator) Add(b model.Bar) []model.Bar {
	if len(a.tfs) == 0 || b.TF != a.baseTF {
		return nil
	}
	ts := b.TS.Unix()
	out := make([]model.Bar, 0, len(a.tfs))
	for _, tf := range a.tfs {
		tf64 := int64(tf)
		bucket := ts - ts%tf64
		key := strconv.Itoa(tf) + ":" + b.Key()

		st, ok := a.state[key]
		if ok && bucket < st.bucket {
			continue // late base bar for a bucket already left behind
		}
		if !ok || bucket > st.bucket {
			st = &formingState{
				bucket: bucket,
				bar: model.Bar{
					Token: b.Token, Exchange: b.Exchange,
					TF: tf, TS: time.Unix(bucket, 0).UTC(),
					TradeDate: b.TradeDate,
					Open:      b.Open, High: b.High, Low: b.Low, Close: b.Close,
					Volume:  b.Volume,
					Forming: true,
				},
			}
			a.state[key] = st
		} else {
			fb := &st.bar
			if b.High > fb.High {
				fb.High = b.High
			}
			if b.Low < fb.Low {
				fb.Low = b.Low
			}
			fb.Close = b.Close
			fb.Volume += b.Volume
		}
		out = append(out, st.bar)
	}
	return out
}
