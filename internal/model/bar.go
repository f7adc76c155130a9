package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Bar is one OHLCV sample for a single instrument and timeframe.
// Bars are immutable once received; indicators only read them.
type Bar struct {
	Token     string    `json:"token"`
	Exchange  string    `json:"exchange"`
	TF        int       `json:"tf"`         // timeframe in seconds
	TS        time.Time `json:"ts"`         // bar start time (UTC)
	TradeDate int       `json:"trade_date"` // session date as YYYYMMDD
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Forming   bool      `json:"forming,omitempty"` // true while the bucket is still open
}

// Key returns "exchange:token".
func (b *Bar) Key() string {
	return b.Exchange + ":" + b.Token
}

// StreamKey returns the Redis stream key: "bar:{TF}s:{exchange}:{token}".
func (b *Bar) StreamKey() string {
	return BarStreamKey(b.TF, b.Exchange+":"+b.Token)
}

// BarStreamKey builds the stream key for a TF and an "exchange:token" key.
func BarStreamKey(tf int, instrumentKey string) string {
	return "bar:" + strconv.Itoa(tf) + "s:" + instrumentKey
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// TypicalPrice returns (high+low+close)/3.
func (b *Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}
