package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"chart-indicators/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 30 * time.Minute

	// streamWindowSec is how much history each result/bar stream keeps.
	streamWindowSec = 3 * 3600
	minStreamLen    = 200
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// LatestTTL overrides the expiry of the "latest" keys (default 30m).
	LatestTTL time.Duration
}

// Writer publishes indicator results and bars to Redis.
type Writer struct {
	client    *goredis.Client
	latestTTL time.Duration

	// OnWrite observes the duration of every pipeline flush.
	OnWrite func(d time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, latestTTL: ttl}, nil
}

// streamMaxLen returns the approximate MAXLEN for a TF stream: three hours
// of bars plus slack, never below minStreamLen.
func streamMaxLen(tf int) int64 {
	if tf <= 0 {
		return minStreamLen
	}
	n := int64(streamWindowSec/tf) + 100
	if n < minStreamLen {
		n = minStreamLen
	}
	return n
}

// WriteIndicatorBatch writes results in one pipeline and logs failures.
// It satisfies model.ResultWriter; use BufferedWriter when writes must
// survive a Redis outage.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	if err := w.writeIndicatorBatch(ctx, results); err != nil {
		log.Printf("[redis] indicator batch pipeline error (%d results): %v", len(results), err)
	}
}

// writeIndicatorBatch batches XADD + SET + PUBLISH for every confirmed
// result into one round trip. Live previews are PUBLISH only. Results that
// are neither ready nor live are skipped.
func (w *Writer) writeIndicatorBatch(ctx context.Context, results []model.IndicatorResult) error {
	pipe := w.client.Pipeline()
	queued := 0
	for i := range results {
		ind := &results[i]
		if !ind.Ready && !ind.Live {
			continue
		}
		data := string(ind.JSON())
		queued++

		if ind.Live {
			pipe.Publish(ctx, ind.PubSubChannel(), data)
			continue
		}

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: ind.StreamKey(),
			MaxLen: streamMaxLen(ind.TF),
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, ind.LatestKey(), data, w.latestTTL)
		pipe.Publish(ctx, ind.PubSubChannel(), data)
	}
	if queued == 0 {
		return nil
	}
	return w.exec(ctx, pipe)
}

// WriteBars appends closed bars to their streams and publishes them.
// It satisfies model.BarWriter for the bar loader.
func (w *Writer) WriteBars(bars []model.Bar) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.writeBars(ctx, bars)
}

func (w *Writer) writeBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	pipe := w.client.Pipeline()
	for i := range bars {
		b := &bars[i]
		data := string(b.JSON())
		stream := b.StreamKey()
		if !b.Forming {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: stream,
				MaxLen: streamMaxLen(b.TF),
				Approx: true,
				Values: map[string]interface{}{"data": data},
			})
			pipe.Set(ctx, "bar:"+strconv.Itoa(b.TF)+"s:latest:"+b.Key(), data, w.latestTTL)
		}
		pipe.Publish(ctx, "pub:"+stream, data)
	}
	return w.exec(ctx, pipe)
}

// PublishComputeLatency stores the smoothed compute latency for dashboards.
func (w *Writer) PublishComputeLatency(ctx context.Context, key string, ms float64, ttl time.Duration) error {
	return w.client.Set(ctx, key, fmt.Sprintf("%.3f", ms), ttl).Err()
}

func (w *Writer) exec(ctx context.Context, pipe goredis.Pipeliner) error {
	start := time.Now()
	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	return err
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
