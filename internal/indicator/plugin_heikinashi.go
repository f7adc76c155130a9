package indicator

import (
	"fmt"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

var heikinAshiMeta = Metadata{
	Kind:        KindHeikinAshi,
	Description: "Heikin-Ashi candles over moving-average smoothed OHLC",
	Defaults: IndicatorConfig{
		Period:    35,
		MAType:    MAWeighted,
		Smoothing: SmoothingValcu,
	},
	Plots: []string{"ha_open", "ha_high", "ha_low", "ha_close", "rising"},
}

// HeikinAshiPlugin emits smoothed Heikin-Ashi candles. The first period bars
// the instance sees are filtered out.
type HeikinAshiPlugin struct {
	cfg      IndicatorConfig
	smoother *HeikinAshiSmoother
}

func newHeikinAshiPlugin(cfg IndicatorConfig, _ markethours.Session) Plugin {
	return &HeikinAshiPlugin{cfg: cfg}
}

// Init builds the four OHLC averages.
func (p *HeikinAshiPlugin) Init() {
	p.smoother = NewHeikinAshiSmoother(p.cfg.MAType, p.cfg.Period, p.cfg.Smoothing)
}

func (p *HeikinAshiPlugin) Name() string    { return p.cfg.Name() }
func (p *HeikinAshiPlugin) Kind() Kind      { return KindHeikinAshi }
func (p *HeikinAshiPlugin) Plots() []string { return heikinAshiMeta.Plots }

func (p *HeikinAshiPlugin) Map(bar *model.Bar, _ int) Values {
	return candleValues(p.smoother.Update(barOHLC(bar)))
}

func (p *HeikinAshiPlugin) Peek(bar *model.Bar, _ int) Values {
	return candleValues(p.smoother.Peek(barOHLC(bar)))
}

func (p *HeikinAshiPlugin) Filter(samples int) bool {
	return samples >= p.cfg.Period
}

func (p *HeikinAshiPlugin) Snapshot() PluginState {
	mas, ha := p.smoother.Snapshot()
	return PluginState{Kind: KindHeikinAshi, Key: p.cfg.Key(), MAs: mas, HA: &ha}
}

func (p *HeikinAshiPlugin) Restore(st PluginState) error {
	if err := checkState(st, KindHeikinAshi); err != nil {
		return err
	}
	if st.HA == nil {
		return fmt.Errorf("heikin-ashi state missing")
	}
	return p.smoother.Restore(st.MAs, *st.HA)
}

func barOHLC(bar *model.Bar) OHLC {
	return OHLC{Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close}
}

func candleValues(c HACandle, ok bool) Values {
	if !ok {
		return nil
	}
	rising := 0.0
	if c.Rising() {
		rising = 1
	}
	return Values{
		"ha_open":  c.Open,
		"ha_high":  c.High,
		"ha_low":   c.Low,
		"ha_close": c.Close,
		"rising":   rising,
	}
}
