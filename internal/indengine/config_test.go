package indengine

import (
	"errors"
	"testing"

	"chart-indicators/internal/indicator"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"ENABLED_TFS", "INDICATOR_CONFIGS", "MARKET_TZ", "SESSION_ROLL", "SUBSCRIBE_TOKENS", "PEEK_BASE_TF"} {
		t.Setenv(k, "")
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.EnabledTFs) != 3 || cfg.EnabledTFs[0] != 60 {
		t.Errorf("EnabledTFs = %v", cfg.EnabledTFs)
	}
	if len(cfg.IndicatorConfigs) != 3 || len(cfg.IndicatorConfigs[0].Indicators) != 5 {
		t.Errorf("IndicatorConfigs = %+v", cfg.IndicatorConfigs)
	}
	if cfg.SnapshotIntervalS != 30 || cfg.PELMinIdleMs != 60000 || cfg.PeekBaseTF != 0 {
		t.Errorf("numeric defaults = %d/%d/%d", cfg.SnapshotIntervalS, cfg.PELMinIdleMs, cfg.PeekBaseTF)
	}
	if cfg.Session.Location.String() != "America/Chicago" {
		t.Errorf("session location = %s", cfg.Session.Location)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("ENABLED_TFS", "60s, 300,300,bad")
	t.Setenv("INDICATOR_CONFIGS", "HA:20:hull:vervoort,VWAP:monthly:off:2")
	t.Setenv("SUBSCRIBE_TOKENS", "cme:ES,bogus,CME:NQ")
	t.Setenv("MARKET_TZ", "UTC")
	t.Setenv("SESSION_ROLL", "00:00")
	t.Setenv("PEEK_BASE_TF", "15")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.EnabledTFs) != 2 || cfg.EnabledTFs[1] != 300 {
		t.Errorf("EnabledTFs = %v, want [60 300]", cfg.EnabledTFs)
	}
	if len(cfg.SubscribeTokenKeys) != 2 || cfg.SubscribeTokenKeys[0] != "CME:ES" {
		t.Errorf("SubscribeTokenKeys = %v", cfg.SubscribeTokenKeys)
	}
	if cfg.PeekBaseTF != 15 {
		t.Errorf("PeekBaseTF = %d", cfg.PeekBaseTF)
	}
	inds := cfg.IndicatorConfigs[0].Indicators
	if inds[0].Name() != "HA_20_hull_vervoort" || inds[1].Name() != "VWAP_monthly" {
		t.Errorf("names = %s, %s", inds[0].Name(), inds[1].Name())
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no tfs", map[string]string{"ENABLED_TFS": "x,-1"}},
		{"bad spec", map[string]string{"INDICATOR_CONFIGS": "HA:abc"}},
		{"duplicate", map[string]string{"INDICATOR_CONFIGS": "PRICE,PRICE:close"}},
		{"bad tz", map[string]string{"MARKET_TZ": "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENABLED_TFS", "60")
			t.Setenv("INDICATOR_CONFIGS", "")
			t.Setenv("MARKET_TZ", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseReloadPayload(t *testing.T) {
	tfs := []int{60, 300}

	compact, err := ParseReloadPayload(" LRC:20:1:off ", tfs)
	if err != nil {
		t.Fatal(err)
	}
	if len(compact) != 2 || compact[1].TF != 300 || compact[1].Indicators[0].Name() != "LRC_20_close" {
		t.Errorf("compact = %+v", compact)
	}

	js, err := ParseReloadPayload(`[{"tf":120,"indicators":[{"type":"VWAP","timeframe":"weekly"}]}]`, tfs)
	if err != nil {
		t.Fatal(err)
	}
	if len(js) != 1 || js[0].TF != 120 {
		t.Fatalf("json = %+v", js)
	}
	if b := js[0].Indicators[0].Bands(); !b[0].Enabled || b[0].StdDevs != 1 {
		t.Errorf("JSON config did not take band defaults: %+v", b)
	}

	if _, err := ParseReloadPayload("", tfs); !errors.Is(err, indicator.ErrInvalidConfig) {
		t.Errorf("empty payload: err = %v", err)
	}
	if _, err := ParseReloadPayload("FOO:1", tfs); !errors.Is(err, indicator.ErrUnknownKind) {
		t.Errorf("unknown kind: err = %v", err)
	}
}
