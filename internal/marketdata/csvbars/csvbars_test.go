package csvbars

import (
	"errors"
	"strings"
	"testing"
	"time"

	"chart-indicators/internal/markethours"
)

func TestLoad_FormatsAndOrder(t *testing.T) {
	input := `timestamp,open,high,low,close,volume
2025-03-03T15:01:00Z,100.25,101,99.5,100.75,1200
1741014000,100,100.5,99.75,100.25,800
# comment rows are skipped
2025-03-03 15:02:00,100.75,102.125,100.5,102,1500
`
	bars, err := Load(strings.NewReader(input), markethours.UTCSession(), 60, "CME", "ES")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	want := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)
	for i, b := range bars {
		if !b.TS.Equal(want.Add(time.Duration(i) * time.Minute)) {
			t.Errorf("bar %d ts = %v", i, b.TS)
		}
		if b.Exchange != "CME" || b.Token != "ES" || b.TF != 60 {
			t.Errorf("bar %d identity = %s:%s/%d", i, b.Exchange, b.Token, b.TF)
		}
		if b.TradeDate != 20250303 {
			t.Errorf("bar %d trade date = %d", i, b.TradeDate)
		}
	}
	if bars[2].High != 102.125 || bars[1].Volume != 1200 {
		t.Errorf("prices not parsed exactly: %+v", bars)
	}
}

func TestLoad_SessionTradeDate(t *testing.T) {
	session, err := markethours.NewSession("America/Chicago", "17:00")
	if err != nil {
		t.Fatal(err)
	}
	// 17:30 Chicago on Monday belongs to Tuesday's session; local times are
	// read in the session zone.
	input := "2025-03-03 17:30:00,1,1,1,1\n2025-03-03 16:59:00,1,1,1,1\n"
	bars, err := Load(strings.NewReader(input), session, 60, "CME", "ES")
	if err != nil {
		t.Fatal(err)
	}
	if bars[0].TradeDate != 20250303 || bars[1].TradeDate != 20250304 {
		t.Errorf("trade dates = %d, %d", bars[0].TradeDate, bars[1].TradeDate)
	}
	if bars[0].Volume != 0 {
		t.Errorf("missing volume should be 0, got %v", bars[0].Volume)
	}
}

func TestLoad_MillisAndDuplicates(t *testing.T) {
	input := "1741014000000,1,2,0.5,1.5,10\n1741014000,1,3,0.5,2.5,20\n"
	bars, err := Load(strings.NewReader(input), markethours.UTCSession(), 60, "CME", "ES")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Close != 2.5 {
		t.Errorf("duplicate timestamp should keep the last row, got %+v", bars)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"bad price", "1741014000,abc,1,1,1\n", 1},
		{"high below close", "ts,o,h,l,c\n1741014000,1,1,0.5,2\n", 2},
		{"too few columns", "1741014000,1,2\n", 1},
		{"bad timestamp", "yesterday,1,1,1,1\n", 1},
		{"negative volume", "1741014000,1,1,1,1,-5\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input), markethours.UTCSession(), 60, "CME", "ES")
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("want ParseError, got %v", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d", pe.Line, tt.line)
			}
		})
	}

	_, err := Load(strings.NewReader("1741014000,1,1,2,1\n"), markethours.UTCSession(), 60, "CME", "ES")
	if !errors.Is(err, ErrBadBar) {
		t.Errorf("low above high should wrap ErrBadBar, got %v", err)
	}
}
