package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// IndicatorResult holds the values one indicator produced for one bar.
// Values only ever carries finite numbers; a plot that is not ready is absent.
type IndicatorResult struct {
	Name     string             `json:"name"` // e.g. "HA_35_weighted_valcu", "VWAP_daily"
	Kind     string             `json:"kind"` // HA, LRC, VWAP, PRICE
	Token    string             `json:"token"`
	Exchange string             `json:"exchange"`
	TF       int                `json:"tf"` // timeframe in seconds
	TS       time.Time          `json:"ts"` // bar timestamp that produced this value
	Index    int                `json:"index"`
	Values   map[string]float64 `json:"values,omitempty"`
	Ready    bool               `json:"ready"` // false during warm-up or when filtered
	Live     bool               `json:"live"`  // true for previews from forming bars
}

// Key returns "exchange:token".
func (r *IndicatorResult) Key() string {
	return r.Exchange + ":" + r.Token
}

// StreamKey returns the Redis stream key: "ind:{name}:{TF}s:{exchange}:{token}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.Name + ":" + strconv.Itoa(r.TF) + "s:" + r.Exchange + ":" + r.Token
}

// LatestKey returns the Redis key holding the most recent confirmed value.
func (r *IndicatorResult) LatestKey() string {
	return "ind:" + r.Name + ":" + strconv.Itoa(r.TF) + "s:latest:" + r.Exchange + ":" + r.Token
}

// PubSubChannel returns the channel live subscribers listen on.
func (r *IndicatorResult) PubSubChannel() string {
	return "pub:" + r.StreamKey()
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
