package indicator

import (
	"log"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

// Restorer orchestrates engine state restoration on service startup.
// It follows a priority chain: Redis snapshot → SQLite snapshot → cold start,
// then warms remaining gaps from stored bars.
type Restorer struct {
	configs []TFIndicatorConfig
	session markethours.Session
}

// NewRestorer creates a new Restorer for the given indicator configs.
func NewRestorer(configs []TFIndicatorConfig, session markethours.Session) *Restorer {
	return &Restorer{configs: configs, session: session}
}

// RestoreFromSnap restores an engine from a snapshot.
// If snapshot is nil or unusable, returns a fresh engine (cold start).
func (r *Restorer) RestoreFromSnap(snap *EngineSnapshot) *Engine {
	if snap == nil {
		log.Println("[restorer] no snapshot found, cold starting indicator engine")
		return NewEngine(r.configs, r.session)
	}

	log.Printf("[restorer] restoring from snapshot (version=%d, streamID=%s, instruments=%d)",
		snap.Version, snap.StreamID, len(snap.Instruments))

	engine, err := RestoreEngine(r.configs, r.session, snap)
	if err != nil {
		log.Printf("[restorer] WARNING: snapshot restore failed: %v, falling back to cold start", err)
		return NewEngine(r.configs, r.session)
	}

	log.Printf("[restorer] restored indicator engine from snapshot")
	return engine
}

// ReplayBars feeds closed bars into the engine to catch up from the
// snapshot to current state. Returns the number of bars the engine accepted.
func (r *Restorer) ReplayBars(engine *Engine, bars []model.Bar, onResults func([]model.IndicatorResult)) int {
	count := 0
	for _, bar := range bars {
		if bar.Forming {
			continue
		}
		results := engine.Process(bar)
		if results == nil {
			continue
		}
		if onResults != nil {
			onResults(results)
		}
		count++
	}
	log.Printf("[restorer] replayed %d bars to catch up", count)
	return count
}

// Backfill reads stored bars and feeds the most recent MaxWarmup of them per
// instrument into the engine. Bars already covered by restored state are
// ignored by the engine. If onResults is non-nil, it receives the results of
// each bar so callers can repopulate result history.
func (r *Restorer) Backfill(engine *Engine, reader model.BarReader, onResults func([]model.IndicatorResult)) int {
	if reader == nil {
		return 0
	}

	total := 0
	for _, cfg := range engine.Configs() {
		warmup := engine.MaxWarmup(cfg.TF)
		if warmup == 0 {
			continue
		}
		bars, err := reader.ReadAllBars(cfg.TF, 0)
		if err != nil {
			log.Printf("[restorer] WARNING: failed to read TF=%d bars: %v", cfg.TF, err)
			continue
		}

		fed := 0
		for _, bar := range lastPerInstrument(bars, warmup) {
			bar.Forming = false
			results := engine.Process(bar)
			if results == nil {
				continue
			}
			if onResults != nil {
				onResults(results)
			}
			fed++
		}
		total += fed
		if fed > 0 {
			log.Printf("[restorer] backfilled %d bars for TF=%d (warmup=%d)", fed, cfg.TF, warmup)
		}
	}

	if total > 0 {
		log.Printf("[restorer] backfilled %d total bars", total)
	}
	return total
}

// lastPerInstrument keeps the last n bars of each instrument, preserving the
// input order. Input is expected in timestamp order.
func lastPerInstrument(bars []model.Bar, n int) []model.Bar {
	counts := make(map[string]int)
	for i := range bars {
		counts[bars[i].Key()]++
	}
	seen := make(map[string]int, len(counts))
	out := make([]model.Bar, 0, len(bars))
	for _, bar := range bars {
		key := bar.Key()
		seen[key]++
		if counts[key]-seen[key] < n {
			out = append(out, bar)
		}
	}
	return out
}
