package indicator

import (
	"fmt"

	"chart-indicators/internal/model"
)

// Source selects the scalar value a single-series indicator reads from a bar.
type Source string

const (
	SourceClose Source = "close"
	SourceOpen  Source = "open"
	SourceHigh  Source = "high"
	SourceLow   Source = "low"
	SourceHL2   Source = "hl2"
	SourceHLC3  Source = "hlc3"
	SourceOHLC4 Source = "ohlc4"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case SourceClose, SourceOpen, SourceHigh, SourceLow, SourceHL2, SourceHLC3, SourceOHLC4:
		return src, nil
	}
	return "", fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, s)
}

type sourceFunc func(b *model.Bar) float64

// sourceFor returns the extractor of s. Unknown sources read the close.
func sourceFor(s Source) sourceFunc {
	switch s {
	case SourceOpen:
		return func(b *model.Bar) float64 { return b.Open }
	case SourceHigh:
		return func(b *model.Bar) float64 { return b.High }
	case SourceLow:
		return func(b *model.Bar) float64 { return b.Low }
	case SourceHL2:
		return func(b *model.Bar) float64 { return (b.High + b.Low) / 2 }
	case SourceHLC3:
		return func(b *model.Bar) float64 { return b.TypicalPrice() }
	case SourceOHLC4:
		return func(b *model.Bar) float64 { return (b.Open + b.High + b.Low + b.Close) / 4 }
	default:
		return func(b *model.Bar) float64 { return b.Close }
	}
}
