// cmd/backtest replays historical bars from SQLite or a CSV file through the
// indicator engine to validate indicator output without live market data.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/bars.db --tf=60,300 --indicators=HA,VWAP:daily
//	go run ./cmd/backtest --csv=es_1m.csv --tf=60 --exchange=CME --token=ES --json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"chart-indicators/internal/indengine"
	"chart-indicators/internal/indicator"
	"chart-indicators/internal/marketdata/csvbars"
	"chart-indicators/internal/marketdata/replay"
	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
	sqlitestore "chart-indicators/internal/store/sqlite"

	"github.com/spf13/pflag"
)

type options struct {
	dbPath     string
	csvPath    string
	tfs        []int
	fromTS     int64
	speed      float64
	exchange   string
	token      string
	indicators string
	tz         string
	roll       string
	jsonOut    bool
	every      int
}

type summary struct {
	Bars     int
	Ready    int
	NotReady int
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	var opts options
	pflag.StringVar(&opts.dbPath, "db", "data/bars.db", "path to SQLite database")
	pflag.StringVar(&opts.csvPath, "csv", "", "read bars from a CSV file instead of SQLite")
	pflag.IntSliceVar(&opts.tfs, "tf", []int{60}, "timeframes in seconds to replay")
	pflag.Int64Var(&opts.fromTS, "from", 0, "unix timestamp to start replay from (0=all)")
	pflag.Float64Var(&opts.speed, "speed", 0, "playback speed multiplier (0=max, 1=realtime)")
	pflag.StringVar(&opts.exchange, "exchange", "CME", "exchange of CSV bars")
	pflag.StringVar(&opts.token, "token", "", "token of CSV bars")
	pflag.StringVar(&opts.indicators, "indicators", indengine.DefaultIndicatorSpecs, "indicator specs, e.g. HA:35:weighted:valcu,VWAP:daily")
	pflag.StringVar(&opts.tz, "tz", "America/Chicago", "session time zone")
	pflag.StringVar(&opts.roll, "roll", "17:00", "session roll time HH:MM")
	pflag.BoolVar(&opts.jsonOut, "json", false, "print ready results as JSON lines")
	pflag.IntVar(&opts.every, "every", 1, "print every Nth bar's results")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sum, err := run(ctx, opts, os.Stdout)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	if !opts.jsonOut {
		fmt.Printf("\nbars processed: %d, ready results: %d, warming up: %d, TFs: %v\n",
			sum.Bars, sum.Ready, sum.NotReady, opts.tfs)
	}
}

// run replays the selected bars through a cold engine and prints results.
func run(parent context.Context, opts options, out io.Writer) (summary, error) {
	var sum summary
	if len(opts.tfs) == 0 {
		return sum, fmt.Errorf("no timeframe given")
	}
	session, err := markethours.NewSession(opts.tz, opts.roll)
	if err != nil {
		return sum, err
	}
	specs, err := indicator.ParseIndicatorSpecs(opts.indicators)
	if err != nil {
		return sum, fmt.Errorf("indicators: %w", err)
	}
	configs := indengine.BuildIndicatorConfigs(opts.tfs, specs)
	if err := indicator.ValidateConfigs(configs); err != nil {
		return sum, err
	}

	reader, closeFn, err := openBars(opts, session)
	if err != nil {
		return sum, err
	}
	defer closeFn()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	engine := indicator.NewRestorer(configs, session).RestoreFromSnap(nil)
	replayer := replay.New(reader)
	barCh := make(chan model.Bar, 10000)
	errCh := make(chan error, 1)
	go func() {
		_, err := replayer.Run(ctx, opts.tfs, opts.fromTS, opts.speed, barCh)
		close(barCh)
		errCh <- err
	}()

	every := opts.every
	if every <= 0 {
		every = 1
	}
	enc := json.NewEncoder(out)
	for bar := range barCh {
		results := engine.Process(bar)
		if results == nil {
			continue
		}
		sum.Bars++
		for i := range results {
			r := &results[i]
			if !r.Ready {
				sum.NotReady++
				continue
			}
			sum.Ready++
			if sum.Bars%every != 0 {
				continue
			}
			if opts.jsonOut {
				if err := enc.Encode(r); err != nil {
					return sum, err
				}
				continue
			}
			fmt.Fprintf(out, "%s %s %ds %s %s\n",
				r.TS.Format("2006-01-02 15:04:05"), r.Key(), r.TF, r.Name, formatValues(r.Values))
		}
	}
	if err := <-errCh; err != nil && parent.Err() == nil {
		return sum, err
	}
	return sum, nil
}

// openBars returns the bar source: a CSV loaded into memory or SQLite.
func openBars(opts options, session markethours.Session) (model.BarReader, func(), error) {
	if opts.csvPath == "" {
		reader, err := sqlitestore.NewReader(opts.dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite open: %w", err)
		}
		return reader, func() { reader.Close() }, nil
	}

	if opts.token == "" {
		return nil, nil, fmt.Errorf("--token is required with --csv")
	}
	if len(opts.tfs) != 1 {
		return nil, nil, fmt.Errorf("--csv takes exactly one --tf")
	}
	f, err := os.Open(opts.csvPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	bars, err := csvbars.Load(f, session, opts.tfs[0], opts.exchange, opts.token)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", opts.csvPath, err)
	}
	log.Printf("[backtest] loaded %d bars from %s", len(bars), opts.csvPath)
	return replay.NewMemoryStore(bars), func() {}, nil
}

func formatValues(v map[string]float64) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.4f", k, v[k])
	}
	return strings.Join(parts, " ")
}
