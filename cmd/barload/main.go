// cmd/barload imports OHLCV bars from a CSV file into the SQLite bar store
// and optionally appends them to the Redis bar streams the indicator engine
// consumes.
//
// Usage:
//
//	go run ./cmd/barload --csv=es_1m.csv --tf=60 --exchange=CME --token=ES
//	go run ./cmd/barload --csv=es_1m.csv --tf=60 --token=ES --redis=localhost:6379
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"chart-indicators/internal/marketdata/csvbars"
	"chart-indicators/internal/markethours"
	"chart-indicators/internal/model"
	redisstore "chart-indicators/internal/store/redis"
	sqlitestore "chart-indicators/internal/store/sqlite"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type options struct {
	csvPath       string
	dbPath        string
	tf            int
	exchange      string
	token         string
	tz            string
	roll          string
	redisAddr     string
	redisPassword string
	all           bool
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("[barload] .env: %v", err)
	}

	var opts options
	pflag.StringVar(&opts.csvPath, "csv", "", "CSV file: timestamp,open,high,low,close[,volume]")
	pflag.StringVar(&opts.dbPath, "db", envOr("SQLITE_PATH", "data/bars.db"), "path to SQLite database")
	pflag.IntVar(&opts.tf, "tf", 60, "bar timeframe in seconds")
	pflag.StringVar(&opts.exchange, "exchange", "CME", "exchange of the bars")
	pflag.StringVar(&opts.token, "token", "", "instrument token of the bars")
	pflag.StringVar(&opts.tz, "tz", envOr("MARKET_TZ", "America/Chicago"), "session time zone")
	pflag.StringVar(&opts.roll, "roll", envOr("SESSION_ROLL", "17:00"), "session roll time HH:MM")
	pflag.StringVar(&opts.redisAddr, "redis", "", "also XADD the bars to this Redis")
	pflag.StringVar(&opts.redisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	pflag.BoolVar(&opts.all, "all", false, "import bars older than the newest stored bar too")
	pflag.Parse()

	n, err := run(opts)
	if err != nil {
		log.Fatalf("[barload] %v", err)
	}
	log.Printf("[barload] imported %d bars into %s", n, opts.dbPath)
}

// run loads the CSV and stores the new bars. Returns the number stored.
func run(opts options) (int, error) {
	if opts.csvPath == "" || opts.token == "" {
		return 0, fmt.Errorf("--csv and --token are required")
	}
	if opts.tf <= 0 {
		return 0, fmt.Errorf("--tf must be positive")
	}
	session, err := markethours.NewSession(opts.tz, opts.roll)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(opts.csvPath)
	if err != nil {
		return 0, err
	}
	bars, err := csvbars.Load(f, session, opts.tf, opts.exchange, opts.token)
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", opts.csvPath, err)
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: opts.dbPath})
	if err != nil {
		return 0, err
	}
	defer w.Close()

	if !opts.all {
		last, err := w.LastBarTS(opts.exchange, opts.token, opts.tf)
		if err != nil {
			return 0, err
		}
		bars = newerThan(bars, last)
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := w.WriteBars(bars); err != nil {
		return 0, err
	}

	if opts.redisAddr != "" {
		rw, err := redisstore.New(redisstore.WriterConfig{Addr: opts.redisAddr, Password: opts.redisPassword})
		if err != nil {
			return 0, err
		}
		defer rw.Close()
		if err := rw.WriteBars(bars); err != nil {
			return 0, fmt.Errorf("redis: %w", err)
		}
		log.Printf("[barload] appended %d bars to %s", len(bars), model.BarStreamKey(opts.tf, opts.exchange+":"+opts.token))
	}
	return len(bars), nil
}

// newerThan keeps bars after the unix timestamp last. Input is sorted.
func newerThan(bars []model.Bar, last int64) []model.Bar {
	for i := range bars {
		if bars[i].TS.Unix() > last {
			return bars[i:]
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
