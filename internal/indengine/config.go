package indengine

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"chart-indicators/internal/indicator"
	"chart-indicators/internal/markethours"
)

// DefaultIndicatorSpecs is used when INDICATOR_CONFIGS is empty.
const DefaultIndicatorSpecs = "HA,LRC,VWAP:daily,VWAP:weekly,PRICE"

// Config holds all env-parsed configuration for the indicator engine service.
type Config struct {
	RedisAddr          string
	RedisPassword      string
	SQLitePath         string
	ConsumerGroup      string
	ConsumerName       string
	EnabledTFs         []int
	SnapshotIntervalS  int
	SubscribeTokenKeys []string // "exchange:token" keys
	SnapshotKey        string
	HTTPAddr           string
	PELIntervalS       int
	PELMinIdleMs       int64
	PeekBaseTF         int // forming bars of this TF are rolled up into previews
	Session            markethours.Session
	IndicatorConfigs   []indicator.TFIndicatorConfig
}

// LoadConfig reads all environment variables and returns a Config.
func LoadConfig() (Config, error) {
	cfg := Config{
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "data/bars.db"),
		ConsumerGroup:      getEnv("CONSUMER_GROUP", "indengine"),
		ConsumerName:       getEnv("CONSUMER_NAME", "worker-1"),
		EnabledTFs:         parseTFs(getEnv("ENABLED_TFS", "60,300,900")),
		SnapshotIntervalS:  getEnvInt("SNAPSHOT_INTERVAL_SEC", 30),
		SubscribeTokenKeys: parseTokenKeys(getEnv("SUBSCRIBE_TOKENS", "")),
		SnapshotKey:        getEnv("SNAPSHOT_KEY", "ind:snapshot:engine"),
		HTTPAddr:           getEnv("INDENGINE_HTTP_ADDR", ":9095"),
		PELIntervalS:       getEnvInt("PEL_RECLAIM_INTERVAL_SEC", 30),
		PELMinIdleMs:       int64(getEnvInt("PEL_MIN_IDLE_MS", 60000)),
		PeekBaseTF:         getEnvInt("PEEK_BASE_TF", 0),
	}
	if len(cfg.EnabledTFs) == 0 {
		return cfg, fmt.Errorf("ENABLED_TFS: no valid timeframe")
	}

	session, err := markethours.NewSession(getEnv("MARKET_TZ", "America/Chicago"), getEnv("SESSION_ROLL", "17:00"))
	if err != nil {
		return cfg, fmt.Errorf("session calendar: %w", err)
	}
	cfg.Session = session

	specs, err := indicator.ParseIndicatorSpecs(getEnv("INDICATOR_CONFIGS", DefaultIndicatorSpecs))
	if err != nil {
		return cfg, fmt.Errorf("INDICATOR_CONFIGS: %w", err)
	}
	if len(specs) == 0 {
		return cfg, fmt.Errorf("INDICATOR_CONFIGS: no indicators configured")
	}
	cfg.IndicatorConfigs = BuildIndicatorConfigs(cfg.EnabledTFs, specs)
	if err := indicator.ValidateConfigs(cfg.IndicatorConfigs); err != nil {
		return cfg, err
	}
	log.Printf("[indengine] loaded %d indicator specs for TFs %v", len(specs), cfg.EnabledTFs)
	return cfg, nil
}

// BuildIndicatorConfigs applies the same indicator set to every TF.
func BuildIndicatorConfigs(tfs []int, specs []indicator.IndicatorConfig) []indicator.TFIndicatorConfig {
	configs := make([]indicator.TFIndicatorConfig, len(tfs))
	for i, tf := range tfs {
		configs[i] = indicator.TFIndicatorConfig{
			TF:         tf,
			Indicators: append([]indicator.IndicatorConfig(nil), specs...),
		}
	}
	return configs
}

// ParseReloadPayload decodes a config update. A payload starting with '['
// is a JSON array of TF configs; anything else is the compact spec syntax
// applied to every enabled TF.
func ParseReloadPayload(payload string, tfs []int) ([]indicator.TFIndicatorConfig, error) {
	payload = strings.TrimSpace(payload)
	var configs []indicator.TFIndicatorConfig
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &configs); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		for i := range configs {
			for j := range configs[i].Indicators {
				configs[i].Indicators[j] = configs[i].Indicators[j].WithDefaults()
			}
		}
	} else {
		specs, err := indicator.ParseIndicatorSpecs(payload)
		if err != nil {
			return nil, err
		}
		if len(specs) == 0 {
			return nil, fmt.Errorf("%w: no indicators", indicator.ErrInvalidConfig)
		}
		configs = BuildIndicatorConfigs(tfs, specs)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: empty config", indicator.ErrInvalidConfig)
	}
	if err := indicator.ValidateConfigs(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func parseTFs(s string) []int {
	parts := strings.Split(s, ",")
	tfs := make([]int, 0, len(parts))
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(strings.TrimSpace(p), "s")
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		tfs = append(tfs, n)
	}
	return tfs
}

// parseTokenKeys parses "exchange:token,..." into instrument keys.
func parseTokenKeys(s string) []string {
	if s == "" {
		return nil
	}
	var keys []string
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Printf("[indengine] skipping invalid instrument %q (want exchange:token)", pair)
			continue
		}
		keys = append(keys, strings.ToUpper(parts[0])+":"+parts[1])
	}
	return keys
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
