package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"chart-indicators/internal/model"
)

func writeCSV(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	for i := 0; i < n; i++ {
		p := 100 + i
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d.5,10\n", 1741014000+60*i, p, p+1, p-1, p)
	}
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func csvOptions(path string) options {
	return options{
		csvPath:    path,
		tfs:        []int{60},
		exchange:   "CME",
		token:      "ES",
		indicators: "PRICE,LRC:3",
		tz:         "UTC",
		jsonOut:    true,
	}
}

func TestRun_CSVJSONLines(t *testing.T) {
	var out bytes.Buffer
	sum, err := run(context.Background(), csvOptions(writeCSV(t, 5)), &out)
	if err != nil {
		t.Fatal(err)
	}
	// PRICE is ready on every bar; LRC:3 needs 2 points.
	if sum.Bars != 5 || sum.Ready != 9 || sum.NotReady != 1 {
		t.Errorf("summary = %+v, want 5 bars, 9 ready, 1 warming up", sum)
	}

	lines := 0
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r model.IndicatorResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if !r.Ready || r.Key() != "CME:ES" || r.TF != 60 {
			t.Errorf("line %d = %+v", lines, r)
		}
		lines++
	}
	if lines != 9 {
		t.Errorf("printed %d lines, want 9", lines)
	}
}

func TestRun_TextOutputEvery(t *testing.T) {
	opts := csvOptions(writeCSV(t, 4))
	opts.jsonOut = false
	opts.indicators = "PRICE"
	opts.every = 2

	var out bytes.Buffer
	if _, err := run(context.Background(), opts, &out); err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != 2 || !strings.Contains(got[0], "PRICE_close price=101.5000") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	path := writeCSV(t, 2)
	tests := []struct {
		name   string
		mutate func(*options)
	}{
		{"no tf", func(o *options) { o.tfs = nil }},
		{"bad indicator", func(o *options) { o.indicators = "RSI:14" }},
		{"no token", func(o *options) { o.token = "" }},
		{"two tfs with csv", func(o *options) { o.tfs = []int{60, 300} }},
		{"missing file", func(o *options) { o.csvPath = filepath.Join(t.TempDir(), "nope.csv") }},
		{"bad roll", func(o *options) { o.roll = "25:00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := csvOptions(path)
			tt.mutate(&opts)
			if _, err := run(context.Background(), opts, &bytes.Buffer{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRun_OutputErrorStopsReplay(t *testing.T) {
	opts := csvOptions(writeCSV(t, 20))
	opts.speed = 1 // the replayer sleeps between bars

	before := runtime.NumGoroutine()
	if _, err := run(context.Background(), opts, failingWriter{}); err == nil {
		t.Fatal("expected the write error")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("replayer still running: %d goroutines, started with %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
