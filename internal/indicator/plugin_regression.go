package indicator

import (
	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

var regressionMeta = Metadata{
	Kind:        KindRegression,
	Description: "Linear regression channel over the most recent bars",
	Defaults: IndicatorConfig{
		Period: 50,
		Source: SourceClose,
		Band1:  &BandConfig{StdDevs: 1, Enabled: true},
		Band2:  &BandConfig{StdDevs: 2, Enabled: true},
	},
	Plots: []string{
		"center_start", "center_end",
		"upper1_start", "upper1_end", "lower1_start", "lower1_end",
		"upper2_start", "upper2_end", "lower2_start", "lower2_end",
		"slope", "intercept", "stddev", "start_index", "end_index",
	},
}

// RegressionChannelPlugin fits a least-squares channel over the last period
// (index, value) pairs. The channel is refitted from the whole window on
// every bar and needs at least two points.
type RegressionChannelPlugin struct {
	cfg    IndicatorConfig
	source sourceFunc
	bands  [2]BandConfig
	window []Point
}

func newRegressionPlugin(cfg IndicatorConfig, _ markethours.Session) Plugin {
	return &RegressionChannelPlugin{
		cfg:    cfg,
		source: sourceFor(cfg.Source),
		bands:  cfg.Bands(),
		window: make([]Point, 0, cfg.Period),
	}
}

func (p *RegressionChannelPlugin) Name() string    { return p.cfg.Name() }
func (p *RegressionChannelPlugin) Kind() Kind      { return KindRegression }
func (p *RegressionChannelPlugin) Plots() []string { return regressionMeta.Plots }

func (p *RegressionChannelPlugin) Map(bar *model.Bar, index int) Values {
	p.window = pushPoint(p.window, Point{X: float64(index), Y: p.source(bar)}, p.cfg.Period)
	return p.channelValues(p.window)
}

func (p *RegressionChannelPlugin) Peek(bar *model.Bar, index int) Values {
	window := make([]Point, len(p.window), len(p.window)+1)
	copy(window, p.window)
	window = pushPoint(window, Point{X: float64(index), Y: p.source(bar)}, p.cfg.Period)
	return p.channelValues(window)
}

// pushPoint appends pt and drops the oldest points beyond period.
func pushPoint(window []Point, pt Point, period int) []Point {
	window = append(window, pt)
	if over := len(window) - period; over > 0 {
		n := copy(window, window[over:])
		window = window[:n]
	}
	return window
}

func (p *RegressionChannelPlugin) channelValues(window []Point) Values {
	ch, ok := ComputeChannel(window, p.bands)
	if !ok {
		return nil
	}
	v := Values{
		"center_start": ch.Center.Y1,
		"center_end":   ch.Center.Y2,
		"slope":        ch.Line.Slope,
		"intercept":    ch.Line.Intercept,
		"stddev":       ch.StdDev,
		"start_index":  ch.Center.X1,
		"end_index":    ch.Center.X2,
	}
	for i, prefix := range [2]string{"1", "2"} {
		b := ch.Bands[i]
		if b == nil {
			continue
		}
		v["upper"+prefix+"_start"] = b.Upper.Y1
		v["upper"+prefix+"_end"] = b.Upper.Y2
		v["lower"+prefix+"_start"] = b.Lower.Y1
		v["lower"+prefix+"_end"] = b.Lower.Y2
	}
	return v
}

func (p *RegressionChannelPlugin) Snapshot() PluginState {
	points := make([]Point, len(p.window))
	copy(points, p.window)
	return PluginState{Kind: KindRegression, Key: p.cfg.Key(), Points: points}
}

func (p *RegressionChannelPlugin) Restore(st PluginState) error {
	if err := checkState(st, KindRegression); err != nil {
		return err
	}
	p.window = p.window[:0]
	for _, pt := range st.Points {
		p.window = pushPoint(p.window, pt, p.cfg.Period)
	}
	return nil
}
