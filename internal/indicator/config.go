package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IndicatorConfig specifies a single indicator instance. Zero fields take the
// kind's defaults.
type IndicatorConfig struct {
	Type      Kind        `json:"type"`
	Period    int         `json:"period,omitempty"`
	MAType    MAType      `json:"ma_type,omitempty"`
	Smoothing Smoothing   `json:"smoothing,omitempty"`
	Timeframe Timeframe   `json:"timeframe,omitempty"`
	Source    Source      `json:"source,omitempty"`
	Band1     *BandConfig `json:"band1,omitempty"`
	Band2     *BandConfig `json:"band2,omitempty"`
}

// TFIndicatorConfig groups indicator configs for a specific timeframe.
type TFIndicatorConfig struct {
	TF         int               `json:"tf"` // timeframe in seconds
	Indicators []IndicatorConfig `json:"indicators"`
}

// WithDefaults fills unset fields from the registered defaults of the kind.
func (c IndicatorConfig) WithDefaults() IndicatorConfig {
	meta, _, err := DefaultRegistry.Lookup(c.Type)
	if err != nil {
		return c
	}
	d := meta.Defaults
	if c.Period == 0 {
		c.Period = d.Period
	}
	if c.MAType == "" {
		c.MAType = d.MAType
	}
	if c.Smoothing == "" {
		c.Smoothing = d.Smoothing
	}
	if c.Timeframe == "" {
		c.Timeframe = d.Timeframe
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.Band1 == nil && d.Band1 != nil {
		b := *d.Band1
		c.Band1 = &b
	}
	if c.Band2 == nil && d.Band2 != nil {
		b := *d.Band2
		c.Band2 = &b
	}
	return c
}

// Bands returns both band settings, disabled where unset.
func (c IndicatorConfig) Bands() [2]BandConfig {
	var out [2]BandConfig
	if c.Band1 != nil {
		out[0] = *c.Band1
	}
	if c.Band2 != nil {
		out[1] = *c.Band2
	}
	return out
}

// Name is the display and stream name of the indicator,
// e.g. "HA_35_weighted_valcu", "LRC_50_close", "VWAP_daily", "PRICE_close".
func (c IndicatorConfig) Name() string {
	c = c.WithDefaults()
	switch c.Type {
	case KindHeikinAshi:
		return string(c.Type) + "_" + strconv.Itoa(c.Period) + "_" + string(c.MAType) + "_" + string(c.Smoothing)
	case KindRegression:
		return string(c.Type) + "_" + strconv.Itoa(c.Period) + "_" + string(c.Source)
	case KindVWAP:
		return string(c.Type) + "_" + string(c.Timeframe)
	case KindPriceLine:
		return string(c.Type) + "_" + string(c.Source)
	}
	return string(c.Type)
}

// Key identifies the full configuration, including bands. Two configs with
// the same key produce identical output for the same input.
func (c IndicatorConfig) Key() string {
	c = c.WithDefaults()
	key := c.Name()
	for _, b := range c.Bands() {
		if b.Enabled {
			key += ":" + strconv.FormatFloat(b.StdDevs, 'g', -1, 64)
		} else {
			key += ":off"
		}
	}
	return key
}

// Warmup returns how many bars of history the indicator needs on timeframe tf
// before its output matches an uninterrupted run.
func (c IndicatorConfig) Warmup(tf int) int {
	c = c.WithDefaults()
	switch c.Type {
	case KindHeikinAshi:
		n := c.Period + 1
		if c.MAType == MAHull {
			n = c.Period + int(math.Ceil(math.Sqrt(float64(c.Period))))
		}
		return n
	case KindRegression:
		return c.Period
	case KindVWAP:
		if tf <= 0 {
			return 1
		}
		days := 1
		switch c.Timeframe {
		case TimeframeWeekly:
			days = 7
		case TimeframeTwoWeeks:
			days = 14
		case TimeframeMonthly:
			days = 31
		}
		return days * 86400 / tf
	}
	return 1
}

// Validate checks a single config after defaults are applied.
func (c IndicatorConfig) Validate() error {
	if _, _, err := DefaultRegistry.Lookup(c.Type); err != nil {
		return err
	}
	c = c.WithDefaults()

	var err error
	switch c.Type {
	case KindHeikinAshi:
		if c.Period <= 0 {
			return fmt.Errorf("%w: period=%d for %s must be positive", ErrInvalidConfig, c.Period, c.Type)
		}
		if _, err = ParseMAType(string(c.MAType)); err != nil {
			return err
		}
		_, err = ParseSmoothing(string(c.Smoothing))
	case KindRegression:
		if c.Period < 2 {
			return fmt.Errorf("%w: period=%d for %s must be at least 2", ErrInvalidConfig, c.Period, c.Type)
		}
		_, err = ParseSource(string(c.Source))
	case KindVWAP:
		_, err = ParseTimeframe(string(c.Timeframe))
	case KindPriceLine:
		_, err = ParseSource(string(c.Source))
	}
	if err != nil {
		return err
	}

	for i, b := range c.Bands() {
		if b.StdDevs < 0 || math.IsNaN(b.StdDevs) || math.IsInf(b.StdDevs, 0) {
			return fmt.Errorf("%w: band%d multiplier %v for %s", ErrInvalidConfig, i+1, b.StdDevs, c.Type)
		}
	}
	return nil
}

// ParseIndicatorSpecs parses the compact config syntax:
//
//	HA:35:weighted:valcu,LRC:50:1:2,VWAP:daily:1:2,PRICE
//
// Positional fields after the kind are:
//
//	HA:period:maType:smoothing
//	LRC:period:band1:band2:source
//	VWAP:timeframe:band1:band2
//	PRICE:source
//
// Empty or missing fields take defaults; a band value of "off" disables it.
func ParseIndicatorSpecs(s string) ([]IndicatorConfig, error) {
	var configs []IndicatorConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cfg, err := parseSpec(part)
		if err != nil {
			return nil, fmt.Errorf("spec %q: %w", part, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func parseSpec(part string) (IndicatorConfig, error) {
	fields := strings.Split(part, ":")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	field := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	cfg := IndicatorConfig{Type: Kind(strings.ToUpper(fields[0]))}
	if _, _, err := DefaultRegistry.Lookup(cfg.Type); err != nil {
		return cfg, err
	}

	var err error
	switch cfg.Type {
	case KindHeikinAshi:
		if cfg.Period, err = parsePeriod(field(1)); err != nil {
			return cfg, err
		}
		if f := field(2); f != "" {
			if cfg.MAType, err = ParseMAType(f); err != nil {
				return cfg, err
			}
		}
		if f := field(3); f != "" {
			if cfg.Smoothing, err = ParseSmoothing(f); err != nil {
				return cfg, err
			}
		}
	case KindRegression:
		if cfg.Period, err = parsePeriod(field(1)); err != nil {
			return cfg, err
		}
		if cfg.Band1, err = parseBand(field(2)); err != nil {
			return cfg, err
		}
		if cfg.Band2, err = parseBand(field(3)); err != nil {
			return cfg, err
		}
		if f := field(4); f != "" {
			if cfg.Source, err = ParseSource(f); err != nil {
				return cfg, err
			}
		}
	case KindVWAP:
		if f := field(1); f != "" {
			if cfg.Timeframe, err = ParseTimeframe(f); err != nil {
				return cfg, err
			}
		}
		if cfg.Band1, err = parseBand(field(2)); err != nil {
			return cfg, err
		}
		if cfg.Band2, err = parseBand(field(3)); err != nil {
			return cfg, err
		}
	case KindPriceLine:
		if f := field(1); f != "" {
			if cfg.Source, err = ParseSource(f); err != nil {
				return cfg, err
			}
		}
	}
	return cfg.WithDefaults(), nil
}

func parsePeriod(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: period %q", ErrInvalidConfig, s)
	}
	return n, nil
}

// parseBand returns nil for an empty field so the default applies.
func parseBand(s string) (*BandConfig, error) {
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "off":
		return &BandConfig{}, nil
	}
	k, err := strconv.ParseFloat(s, 64)
	if err != nil || k < 0 || math.IsInf(k, 0) || math.IsNaN(k) {
		return nil, fmt.Errorf("%w: band multiplier %q", ErrInvalidConfig, s)
	}
	return &BandConfig{StdDevs: k, Enabled: true}, nil
}
