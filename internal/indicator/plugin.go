package indicator

import (
	"fmt"
	"sort"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
)

// Kind identifies an indicator implementation in the registry.
type Kind string

const (
	KindHeikinAshi Kind = "HA"
	KindRegression Kind = "LRC"
	KindVWAP       Kind = "VWAP"
	KindPriceLine  Kind = "PRICE"
)

// Values maps plot names to values for one bar. Plots that are not ready
// are either absent or NaN; the engine strips NaN before publishing.
type Values map[string]float64

// Plugin is an indicator instance bound to one instrument and timeframe.
// Calculation lives in the optional capability interfaces below; the engine
// checks for each capability once when the instance is created.
type Plugin interface {
	Name() string
	Kind() Kind
	Plots() []string
}

// Initializer is implemented by plugins that need setup before the first
// bar. The engine calls Init once, right after the factory.
type Initializer interface {
	Init()
}

// Mapper computes a plugin's values for the bar at index in the
// instrument's history. It is called exactly once per closed bar.
type Mapper interface {
	Map(bar *model.Bar, index int) Values
}

// Filterer hides output while the instance warms up. samples counts the
// closed bars this instance mapped before the current one; for instances
// added by a reload or cold-started on restore it trails the history index.
type Filterer interface {
	Filter(samples int) bool
}

// Peeker previews Map for a forming bar without mutating state.
type Peeker interface {
	Peek(bar *model.Bar, index int) Values
}

// Snapshottable is implemented by plugins that support state serialization.
type Snapshottable interface {
	Snapshot() PluginState
	Restore(state PluginState) error
}

// Metadata describes a registered indicator kind.
type Metadata struct {
	Kind        Kind
	Description string
	Defaults    IndicatorConfig
	Plots       []string
}

// Factory builds a plugin from a config with defaults applied.
type Factory func(cfg IndicatorConfig, session markethours.Session) Plugin

type registration struct {
	meta    Metadata
	factory Factory
}

// Registry maps indicator kinds to their metadata and factory.
type Registry struct {
	entries map[Kind]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]registration)}
}

// Register adds a kind. Registering a kind twice replaces the first entry.
func (r *Registry) Register(meta Metadata, factory Factory) {
	meta.Defaults.Type = meta.Kind
	r.entries[meta.Kind] = registration{meta: meta, factory: factory}
}

// Lookup returns the metadata and factory of a kind.
func (r *Registry) Lookup(k Kind) (Metadata, Factory, error) {
	reg, ok := r.entries[k]
	if !ok {
		return Metadata{}, nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return reg.meta, reg.factory, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New builds a plugin for cfg.
func (r *Registry) New(cfg IndicatorConfig, session markethours.Session) (Plugin, error) {
	_, factory, err := r.Lookup(cfg.Type)
	if err != nil {
		return nil, err
	}
	return factory(cfg.WithDefaults(), session), nil
}

// DefaultRegistry holds the built-in indicators.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register(heikinAshiMeta, newHeikinAshiPlugin)
	DefaultRegistry.Register(regressionMeta, newRegressionPlugin)
	DefaultRegistry.Register(vwapMeta, newVWAPPlugin)
	DefaultRegistry.Register(priceLineMeta, newPriceLinePlugin)
}

// PluginState holds the serialized state of a single plugin instance.
// Only the fields of the plugin's kind are set.
type PluginState struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`

	MAs    []MASnapshot `json:"mas,omitempty"`
	HA     *HAState     `json:"ha,omitempty"`
	VWAP   *VWAPState   `json:"vwap,omitempty"`
	Points []Point      `json:"points,omitempty"`
	Last   *float64     `json:"last,omitempty"`

	Samples int `json:"samples"`
}

func checkState(st PluginState, kind Kind) error {
	if st.Kind != kind {
		return fmt.Errorf("state kind %q does not match %q", st.Kind, kind)
	}
	return nil
}
