// Package csvbars loads OHLCV bars from CSV files.
//
// Expected columns: timestamp,open,high,low,close[,volume]. A header row is
// optional. Timestamps may be RFC3339, "2006-01-02 15:04:05" in the session's
// local zone, or unix seconds (milliseconds are detected by magnitude).
package csvbars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"

	"github.com/shopspring/decimal"
)

// unix timestamps above this are treated as milliseconds.
const millisThreshold = 100_000_000_000

// ParseError reports the CSV line a bad record came from.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ErrBadBar is wrapped by ParseError when a row's prices are inconsistent.
var ErrBadBar = errors.New("inconsistent OHLC")

// Load parses bars for one instrument and TF. Trade dates come from the
// session calendar. Bars are returned oldest first; a repeated timestamp
// keeps the last row.
func Load(r io.Reader, session markethours.Session, tf int, exchange, token string) ([]model.Bar, error) {
	if tf <= 0 {
		return nil, fmt.Errorf("csvbars: tf must be positive, got %d", tf)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	byTS := make(map[int64]model.Bar)
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		bar, err := parseRecord(rec, session)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		bar.Exchange, bar.Token, bar.TF = exchange, token, tf
		byTS[bar.TS.Unix()] = bar
	}

	bars := make([]model.Bar, 0, len(byTS))
	for _, b := range byTS {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return bars, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	f := strings.ToLower(strings.TrimSpace(rec[0]))
	return f == "timestamp" || f == "time" || f == "ts" || f == "date" || f == "datetime"
}

func parseRecord(rec []string, session markethours.Session) (model.Bar, error) {
	if len(rec) < 5 {
		return model.Bar{}, fmt.Errorf("want at least 5 columns, got %d", len(rec))
	}
	ts, err := parseTime(strings.TrimSpace(rec[0]), session.Location)
	if err != nil {
		return model.Bar{}, err
	}

	var px [5]decimal.Decimal
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := range px {
		if i == 4 && len(rec) < 6 {
			break // volume is optional
		}
		px[i], err = decimal.NewFromString(strings.TrimSpace(rec[i+1]))
		if err != nil {
			return model.Bar{}, fmt.Errorf("%s: %w", names[i], err)
		}
	}
	open, high, low, cls, vol := px[0], px[1], px[2], px[3], px[4]

	if high.LessThan(decimal.Max(open, cls)) || low.GreaterThan(decimal.Min(open, cls)) || low.GreaterThan(high) {
		return model.Bar{}, fmt.Errorf("%w: o=%s h=%s l=%s c=%s", ErrBadBar, open, high, low, cls)
	}
	if vol.IsNegative() {
		return model.Bar{}, fmt.Errorf("negative volume %s", vol)
	}

	return model.Bar{
		TS:        ts,
		TradeDate: session.TradeDate(ts),
		Open:      open.InexactFloat64(),
		High:      high.InexactFloat64(),
		Low:       low.InexactFloat64(),
		Close:     cls.InexactFloat64(),
		Volume:    vol.InexactFloat64(),
	}, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > millisThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
