package indicator

import (
	"fmt"
	"log"
)

// ReloadConfigs swaps in new configurations. Plugin instances whose config
// key is unchanged keep their accumulated state; new ones start cold.
// Returns the number of preserved and created plugin instances.
func (e *Engine) ReloadConfigs(newConfigs []TFIndicatorConfig) (preserved, created int) {
	oldStateByTF := make(map[int]map[string]*instrumentPlugins, len(e.configs))
	for i, cfg := range e.configs {
		oldStateByTF[cfg.TF] = e.state[i]
	}

	newState := make([]map[string]*instrumentPlugins, len(newConfigs))
	for i, newCfg := range newConfigs {
		oldTFState, tfExists := oldStateByTF[newCfg.TF]
		newState[i] = make(map[string]*instrumentPlugins, len(oldTFState)+64)
		if !tfExists {
			log.Printf("[reload] TF=%d: new timeframe, cold-starting", newCfg.TF)
			continue
		}

		for key, oldIP := range oldTFState {
			ip, kept, fresh := e.migrateInstrumentPlugins(oldIP, newCfg.Indicators)
			newState[i][key] = ip
			preserved += kept
			created += fresh
		}
		log.Printf("[reload] TF=%d: migrated %d instruments", newCfg.TF, len(oldTFState))
	}

	e.configs = newConfigs
	e.state = newState
	e.rebuildTFIndex()

	log.Printf("[reload] config reloaded: %d TFs, %d preserved, %d new",
		len(newConfigs), preserved, created)
	return preserved, created
}

// migrateInstrumentPlugins builds the plugin set for newConfigs, reusing
// instances from old whose config key matches.
func (e *Engine) migrateInstrumentPlugins(old *instrumentPlugins, newConfigs []IndicatorConfig) (ip *instrumentPlugins, kept, fresh int) {
	oldByKey := make(map[string]pluginSlot, len(old.slots))
	for _, s := range old.slots {
		oldByKey[s.key] = s
	}

	ip = &instrumentPlugins{
		slots:  make([]pluginSlot, 0, len(newConfigs)),
		index:  old.index,
		lastTS: old.lastTS,
	}
	for _, cfg := range newConfigs {
		if s, ok := oldByKey[cfg.WithDefaults().Key()]; ok {
			ip.slots = append(ip.slots, s)
			delete(oldByKey, s.key)
			kept++
			continue
		}
		s, err := e.newSlot(cfg)
		if err != nil {
			log.Printf("[reload] skipping %s: %v", cfg.Type, err)
			continue
		}
		ip.slots = append(ip.slots, s)
		fresh++
	}
	return ip, kept, fresh
}

// ConfigsEqual reports whether two config sets describe the same indicators
// per TF, ignoring order.
func ConfigsEqual(a, b []TFIndicatorConfig) bool {
	if len(a) != len(b) {
		return false
	}
	byTF := make(map[int]map[string]int, len(a))
	for _, cfg := range a {
		byTF[cfg.TF] = keyCounts(cfg.Indicators)
	}
	for _, cfg := range b {
		want, ok := byTF[cfg.TF]
		if !ok {
			return false
		}
		got := keyCounts(cfg.Indicators)
		if len(got) != len(want) {
			return false
		}
		for k, n := range got {
			if want[k] != n {
				return false
			}
		}
	}
	return true
}

func keyCounts(cfgs []IndicatorConfig) map[string]int {
	m := make(map[string]int, len(cfgs))
	for _, c := range cfgs {
		m[c.Key()]++
	}
	return m
}

// ValidateConfigs checks a set of TFIndicatorConfigs for errors.
func ValidateConfigs(configs []TFIndicatorConfig) error {
	seen := make(map[int]bool)
	for _, cfg := range configs {
		if cfg.TF <= 0 {
			return fmt.Errorf("%w: TF=%d must be positive", ErrInvalidConfig, cfg.TF)
		}
		if seen[cfg.TF] {
			return fmt.Errorf("%w: duplicate TF=%d", ErrInvalidConfig, cfg.TF)
		}
		seen[cfg.TF] = true

		// results are published under the indicator name
		names := make(map[string]bool, len(cfg.Indicators))
		for _, ind := range cfg.Indicators {
			if err := ind.Validate(); err != nil {
				return fmt.Errorf("TF=%d: %w", cfg.TF, err)
			}
			name := ind.Name()
			if names[name] {
				return fmt.Errorf("%w: duplicate indicator %s on TF=%d", ErrInvalidConfig, name, cfg.TF)
			}
			names[name] = true
		}
	}
	return nil
}
