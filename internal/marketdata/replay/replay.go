// Package replay reads stored bars and emits them in time order at a
// configurable speed, for backtests and demo feeds.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"chart-indicators/internal/model"
)

// maxGap caps the simulated wait between two bars.
const maxGap = 5 * time.Second

// Replayer reads bars for a set of TFs from a BarReader and replays them
// at a configurable speed multiplier.
type Replayer struct {
	reader model.BarReader
}

// New creates a Replayer backed by any bar store (SQLite, CSV in memory).
func New(reader model.BarReader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all bars of the given TFs after fromTS (unix seconds, 0 = all)
// into outCh, oldest first. speed 1.0 is real time, 10.0 is ten times
// faster, 0 is as fast as possible. Returns the number of bars emitted.
func (r *Replayer) Run(ctx context.Context, tfs []int, fromTS int64, speed float64, outCh chan<- model.Bar) (int, error) {
	var all []model.Bar
	for _, tf := range tfs {
		bars, err := r.reader.ReadAllBars(tf, fromTS)
		if err != nil {
			return 0, err
		}
		all = append(all, bars...)
	}

	if len(all) == 0 {
		log.Println("[replay] no bars found")
		return 0, nil
	}

	// Bars of different TFs interleave; bars sharing a timestamp keep their
	// store order.
	sort.SliceStable(all, func(i, j int) bool { return all[i].TS.Before(all[j].TS) })

	log.Printf("[replay] loaded %d bars across %d TFs, speed=%.1fx", len(all), len(tfs), speed)

	var prevTS time.Time
	emitted := 0

	for _, b := range all {
		if speed > 0 && !prevTS.IsZero() {
			if gap := b.TS.Sub(prevTS); gap > 0 {
				wait := time.Duration(float64(gap) / speed)
				if wait > maxGap {
					wait = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		prevTS = b.TS

		b.Forming = false
		select {
		case outCh <- b:
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return emitted, ctx.Err()
		}
		emitted++
	}

	log.Printf("[replay] completed: %d bars replayed", emitted)
	return emitted, nil
}

// MemoryStore is an in-memory BarReader, used for CSV-driven backtests.
type MemoryStore struct {
	bars []model.Bar
}

// NewMemoryStore wraps bars; they are sorted by time on the way in.
func NewMemoryStore(bars []model.Bar) *MemoryStore {
	cp := append([]model.Bar(nil), bars...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].TS.Before(cp[j].TS) })
	return &MemoryStore{bars: cp}
}

// ReadBars implements model.BarReader.
func (m *MemoryStore) ReadBars(exchange, token string, tf int, afterTS int64) ([]model.Bar, error) {
	var out []model.Bar
	for _, b := range m.bars {
		if b.Exchange == exchange && b.Token == token && b.TF == tf && b.TS.Unix() > afterTS {
			out = append(out, b)
		}
	}
	return out, nil
}

// ReadAllBars implements model.BarReader.
func (m *MemoryStore) ReadAllBars(tf int, afterTS int64) ([]model.Bar, error) {
	var out []model.Bar
	for _, b := range m.bars {
		if b.TF == tf && b.TS.Unix() > afterTS {
			out = append(out, b)
		}
	}
	return out, nil
}
