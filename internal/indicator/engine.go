package indicator

import (
	"context"
	"log"
	"math"
	"time"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

// pluginSlot is one plugin instance with its capabilities resolved once.
type pluginSlot struct {
	cfg    IndicatorConfig
	key    string
	name   string
	plugin Plugin
	mapper Mapper
	filter Filterer
	peeker Peeker

	samples int // closed bars mapped by this instance
}

// instrumentPlugins holds live plugin instances for one instrument within a TF.
type instrumentPlugins struct {
	slots  []pluginSlot
	index  int       // position of the next closed bar in the instrument's history
	lastTS time.Time // timestamp of the last closed bar
}

// Engine computes indicators across multiple TFs for multiple instruments.
// Not safe for concurrent use; callers serialize access.
type Engine struct {
	configs  []TFIndicatorConfig
	registry *Registry
	session  markethours.Session

	tfIndex map[int]int
	// state[tfIdx][instrumentKey] → *instrumentPlugins
	state []map[string]*instrumentPlugins
}

// NewEngine creates an engine with the given per-TF indicator configs. The
// session supplies trade dates and the calendar VWAP resets use.
func NewEngine(configs []TFIndicatorConfig, session markethours.Session) *Engine {
	return NewEngineWithRegistry(configs, session, DefaultRegistry)
}

// NewEngineWithRegistry is NewEngine with a custom plugin registry.
func NewEngineWithRegistry(configs []TFIndicatorConfig, session markethours.Session, reg *Registry) *Engine {
	e := &Engine{
		configs:  configs,
		registry: reg,
		session:  session,
	}
	e.state = make([]map[string]*instrumentPlugins, len(configs))
	for i := range e.state {
		e.state[i] = make(map[string]*instrumentPlugins, 64)
	}
	e.rebuildTFIndex()
	return e
}

func (e *Engine) rebuildTFIndex() {
	e.tfIndex = make(map[int]int, len(e.configs))
	for i, cfg := range e.configs {
		e.tfIndex[cfg.TF] = i
	}
}

// Configs returns the active per-TF configs.
func (e *Engine) Configs() []TFIndicatorConfig { return e.configs }

// Session returns the market session used for trade dates.
func (e *Engine) Session() markethours.Session { return e.session }

// Instruments returns the number of instrument/TF pairs with live state.
func (e *Engine) Instruments() int {
	n := 0
	for _, m := range e.state {
		n += len(m)
	}
	return n
}

// Process advances every indicator of the bar's TF and instrument by one
// closed bar. It returns one result per indicator; results that are warming
// up or filtered have Ready=false and no values. Returns nil if the TF is
// not configured or the bar is not newer than the last one processed for
// the instrument, so replays that overlap live state are ignored.
func (e *Engine) Process(bar model.Bar) []model.IndicatorResult {
	tfIdx, ok := e.tfIndex[bar.TF]
	if !ok {
		return nil
	}
	if bar.TradeDate == 0 {
		bar.TradeDate = e.session.TradeDate(bar.TS)
	}

	key := bar.Key()
	ip, exists := e.state[tfIdx][key]
	if !exists {
		// First bar for this instrument + TF: create plugin instances
		ip = e.createInstrumentPlugins(tfIdx)
		e.state[tfIdx][key] = ip
	} else if !bar.TS.After(ip.lastTS) {
		return nil
	}

	index := ip.index
	results := make([]model.IndicatorResult, 0, len(ip.slots))
	for i := range ip.slots {
		s := &ip.slots[i]
		var values Values
		if s.mapper != nil {
			values = s.mapper.Map(&bar, index)
		}
		results = append(results, s.result(&bar, index, s.samples, values, false))
		s.samples++
	}
	ip.index++
	ip.lastTS = bar.TS
	return results
}

// ProcessPeek computes live values for a forming bar through Peek.
// Does NOT mutate indicator state.
// Returns nil if the instrument hasn't had a closed bar yet.
func (e *Engine) ProcessPeek(bar model.Bar) []model.IndicatorResult {
	tfIdx, ok := e.tfIndex[bar.TF]
	if !ok {
		return nil
	}
	ip, exists := e.state[tfIdx][bar.Key()]
	if !exists {
		return nil
	}
	if bar.TradeDate == 0 {
		bar.TradeDate = e.session.TradeDate(bar.TS)
	}

	results := make([]model.IndicatorResult, 0, len(ip.slots))
	for i := range ip.slots {
		s := &ip.slots[i]
		if s.peeker == nil {
			continue
		}
		values := s.peeker.Peek(&bar, ip.index)
		results = append(results, s.result(&bar, ip.index, s.samples, values, true))
	}
	return results
}

func (s *pluginSlot) result(bar *model.Bar, index, samples int, values Values, live bool) model.IndicatorResult {
	r := model.IndicatorResult{
		Name:     s.name,
		Kind:     string(s.cfg.Type),
		Token:    bar.Token,
		Exchange: bar.Exchange,
		TF:       bar.TF,
		TS:       bar.TS,
		Index:    index,
		Live:     live,
	}
	if s.filter != nil && !s.filter.Filter(samples) {
		return r
	}
	r.Values = finiteValues(values)
	r.Ready = len(r.Values) > 0
	return r
}

// finiteValues drops NaN and ±Inf entries; nil when nothing is left.
func finiteValues(v Values) map[string]float64 {
	var out map[string]float64
	for name, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		if out == nil {
			out = make(map[string]float64, len(v))
		}
		out[name] = x
	}
	return out
}

// Run consumes bars and emits indicator results. Blocks until ctx done.
func (e *Engine) Run(ctx context.Context, barCh <-chan model.Bar, resultCh chan<- model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar.Forming {
				continue // skip forming bars
			}
			for _, r := range e.Process(bar) {
				select {
				case resultCh <- r:
				default:
					// drop if channel full
				}
			}
		}
	}
}

// createInstrumentPlugins creates fresh plugin instances for a TF config.
func (e *Engine) createInstrumentPlugins(tfIdx int) *instrumentPlugins {
	cfgs := e.configs[tfIdx].Indicators
	ip := &instrumentPlugins{slots: make([]pluginSlot, 0, len(cfgs))}
	for _, cfg := range cfgs {
		s, err := e.newSlot(cfg)
		if err != nil {
			log.Printf("[indicator] TF=%d: skipping %s: %v", e.configs[tfIdx].TF, cfg.Type, err)
			continue
		}
		ip.slots = append(ip.slots, s)
	}
	return ip
}

func (e *Engine) newSlot(cfg IndicatorConfig) (pluginSlot, error) {
	cfg = cfg.WithDefaults()
	p, err := e.registry.New(cfg, e.session)
	if err != nil {
		return pluginSlot{}, err
	}
	if in, ok := p.(Initializer); ok {
		in.Init()
	}
	s := pluginSlot{cfg: cfg, key: cfg.Key(), name: p.Name(), plugin: p}
	s.mapper, _ = p.(Mapper)
	s.filter, _ = p.(Filterer)
	s.peeker, _ = p.(Peeker)
	return s, nil
}

// MaxWarmup returns the largest warm-up, in bars, of the indicators on tf.
func (e *Engine) MaxWarmup(tf int) int {
	idx, ok := e.tfIndex[tf]
	if !ok {
		return 0
	}
	n := 0
	for _, cfg := range e.configs[idx].Indicators {
		if w := cfg.Warmup(tf); w > n {
			n = w
		}
	}
	return n
}
