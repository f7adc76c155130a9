package indicator

import (
	"fmt"
	"log"
	"strings"
	"time"

	"chart-indicators/internal/markethours"
)

// SnapshotVersion is the schema version written by SnapshotEngine.
const SnapshotVersion = 3

// InstrumentSnapshot holds plugin states for a single instrument within a TF.
type InstrumentSnapshot struct {
	Token    string        `json:"token"`
	Exchange string        `json:"exchange"`
	TF       int           `json:"tf"`
	Index    int           `json:"index"`
	LastTS   time.Time     `json:"last_ts"`
	Plugins  []PluginState `json:"plugins"`
}

// EngineSnapshot holds the full state of the indicator engine.
type EngineSnapshot struct {
	StreamID    string               `json:"stream_id"` // last consumed bar stream ID at checkpoint time
	TakenAt     time.Time            `json:"taken_at"`
	Instruments []InstrumentSnapshot `json:"instruments"`
	Version     int                  `json:"version"`
}

// SnapshotEngine captures the full state of an Engine.
func SnapshotEngine(e *Engine, streamID string) (*EngineSnapshot, error) {
	snap := &EngineSnapshot{
		StreamID: streamID,
		TakenAt:  time.Now().UTC(),
		Version:  SnapshotVersion,
	}

	for tfIdx, cfg := range e.configs {
		for key, ip := range e.state[tfIdx] {
			is := InstrumentSnapshot{
				TF:      cfg.TF,
				Index:   ip.index,
				LastTS:  ip.lastTS,
				Plugins: make([]PluginState, 0, len(ip.slots)),
			}
			is.Exchange, is.Token = splitInstrumentKey(key)

			for _, s := range ip.slots {
				sp, ok := s.plugin.(Snapshottable)
				if !ok {
					return nil, fmt.Errorf("indicator %s does not implement Snapshottable", s.name)
				}
				ps := sp.Snapshot()
				ps.Samples = s.samples
				is.Plugins = append(is.Plugins, ps)
			}
			snap.Instruments = append(snap.Instruments, is)
		}
	}
	return snap, nil
}

// RestoreEngine rebuilds an Engine from a snapshot. Plugins are matched by
// config key rather than position: matching plugins get their state back,
// new or changed ones start cold and removed ones are skipped.
func RestoreEngine(configs []TFIndicatorConfig, session markethours.Session, snap *EngineSnapshot) (*Engine, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	e := NewEngine(configs, session)

	for _, is := range snap.Instruments {
		tfIdx, ok := e.tfIndex[is.TF]
		if !ok {
			continue // TF no longer configured
		}

		ip := e.createInstrumentPlugins(tfIdx)
		ip.index = is.Index
		ip.lastTS = is.LastTS

		byKey := make(map[string]PluginState, len(is.Plugins))
		for _, ps := range is.Plugins {
			byKey[ps.Key] = ps
		}

		restored, cold := 0, 0
		for i := range ip.slots {
			s := &ip.slots[i]
			ps, found := byKey[s.key]
			sp, ok := s.plugin.(Snapshottable)
			if !found || !ok {
				cold++
				continue
			}
			if err := sp.Restore(ps); err != nil {
				log.Printf("[restorer] TF=%d %s:%s %s: %v", is.TF, is.Exchange, is.Token, s.name, err)
				// a partial restore leaves mixed state; start this one fresh
				if fresh, err := e.newSlot(s.cfg); err == nil {
					ip.slots = replaceSlot(ip.slots, s.key, fresh)
				}
				cold++
				continue
			}
			s.samples = ps.Samples
			restored++
		}

		if cold > 0 {
			log.Printf("[restorer] TF=%d %s:%s: restored %d, cold-started %d indicators",
				is.TF, is.Exchange, is.Token, restored, cold)
		}
		e.state[tfIdx][instrumentKey(is.Exchange, is.Token)] = ip
	}
	return e, nil
}

func replaceSlot(slots []pluginSlot, key string, fresh pluginSlot) []pluginSlot {
	for i := range slots {
		if slots[i].key == key {
			slots[i] = fresh
		}
	}
	return slots
}

func instrumentKey(exchange, token string) string {
	if exchange == "" {
		return token
	}
	return exchange + ":" + token
}

// splitInstrumentKey splits "exchange:token"; a key without a colon is a bare token.
func splitInstrumentKey(key string) (exchange, token string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}
