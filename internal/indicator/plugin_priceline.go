package indicator

import (
	"math"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

var priceLineMeta = Metadata{
	Kind:        KindPriceLine,
	Description: "Last price of the instrument as a horizontal line",
	Defaults:    IndicatorConfig{Source: SourceClose},
	Plots:       []string{"price"},
}

// PriceLinePlugin tracks the latest value of the source series.
type PriceLinePlugin struct {
	cfg    IndicatorConfig
	source sourceFunc
	last   float64
}

func newPriceLinePlugin(cfg IndicatorConfig, _ markethours.Session) Plugin {
	return &PriceLinePlugin{cfg: cfg, source: sourceFor(cfg.Source), last: nan}
}

func (p *PriceLinePlugin) Name() string    { return p.cfg.Name() }
func (p *PriceLinePlugin) Kind() Kind      { return KindPriceLine }
func (p *PriceLinePlugin) Plots() []string { return priceLineMeta.Plots }

func (p *PriceLinePlugin) Map(bar *model.Bar, _ int) Values {
	p.last = p.source(bar)
	return Values{"price": p.last}
}

func (p *PriceLinePlugin) Peek(bar *model.Bar, _ int) Values {
	return Values{"price": p.source(bar)}
}

// Last returns the most recent mapped value, NaN before the first bar.
func (p *PriceLinePlugin) Last() float64 { return p.last }

func (p *PriceLinePlugin) Snapshot() PluginState {
	st := PluginState{Kind: KindPriceLine, Key: p.cfg.Key()}
	if !math.IsNaN(p.last) {
		last := p.last
		st.Last = &last
	}
	return st
}

func (p *PriceLinePlugin) Restore(st PluginState) error {
	if err := checkState(st, KindPriceLine); err != nil {
		return err
	}
	p.last = nan
	if st.Last != nil {
		p.last = *st.Last
	}
	return nil
}
