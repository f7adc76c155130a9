package indicator

import (
	"fmt"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

var vwapMeta = Metadata{
	Kind:        KindVWAP,
	Description: "VWAP with standard deviation bands, reset per session period",
	Defaults: IndicatorConfig{
		Timeframe: TimeframeDaily,
		Band1:     &BandConfig{StdDevs: 1, Enabled: true},
		Band2:     &BandConfig{StdDevs: 2, Enabled: true},
	},
	Plots: []string{"vwap", "stddev", "upper1", "lower1", "upper2", "lower2", "period_start"},
}

// VWAPBandsPlugin emits the VWAP of the current period and its bands.
type VWAPBandsPlugin struct {
	cfg   IndicatorConfig
	vwap  *VWAP
	bands [2]BandConfig
}

func newVWAPPlugin(cfg IndicatorConfig, session markethours.Session) Plugin {
	return &VWAPBandsPlugin{
		cfg:   cfg,
		vwap:  NewVWAP(cfg.Timeframe, session),
		bands: cfg.Bands(),
	}
}

func (p *VWAPBandsPlugin) Name() string    { return p.cfg.Name() }
func (p *VWAPBandsPlugin) Kind() Kind      { return KindVWAP }
func (p *VWAPBandsPlugin) Plots() []string { return vwapMeta.Plots }

func (p *VWAPBandsPlugin) Map(bar *model.Bar, _ int) Values {
	out, ok := p.vwap.Update(bar)
	return p.values(out, ok, p.vwap.State().PeriodStart)
}

func (p *VWAPBandsPlugin) Peek(bar *model.Bar, _ int) Values {
	out, ok := p.vwap.Peek(bar)
	start := p.vwap.State().PeriodStart
	if out.Reset {
		start = bar.TS.Unix()
	}
	return p.values(out, ok, start)
}

func (p *VWAPBandsPlugin) values(out VWAPOutput, ok bool, periodStart int64) Values {
	if !ok {
		return nil
	}
	v := Values{
		"vwap":         out.VWAP,
		"stddev":       out.StdDev,
		"period_start": float64(periodStart),
	}
	for i, prefix := range [2]string{"1", "2"} {
		b := p.bands[i]
		if !b.Enabled {
			continue
		}
		v["upper"+prefix] = out.VWAP + b.StdDevs*out.StdDev
		v["lower"+prefix] = out.VWAP - b.StdDevs*out.StdDev
	}
	return v
}

func (p *VWAPBandsPlugin) Snapshot() PluginState {
	st := p.vwap.State()
	return PluginState{Kind: KindVWAP, Key: p.cfg.Key(), VWAP: &st}
}

func (p *VWAPBandsPlugin) Restore(st PluginState) error {
	if err := checkState(st, KindVWAP); err != nil {
		return err
	}
	if st.VWAP == nil {
		return fmt.Errorf("vwap state missing")
	}
	p.vwap.SetState(*st.VWAP)
	return nil
}
