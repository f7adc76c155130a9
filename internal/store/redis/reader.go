package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"chart-indicators/internal/indicator"
	"chart-indicators/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const replayPageSize = 1000

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "indengine"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader reads closed bars from Redis Streams via consumer groups and
// manages engine snapshots.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	group := cfg.ConsumerGroup
	if group == "" {
		group = "indengine"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}

	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, group, consumer)
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// decodeBar parses the "data" field of a bar stream entry.
func decodeBar(values map[string]interface{}) (model.Bar, error) {
	data, ok := values["data"].(string)
	if !ok {
		return model.Bar{}, errors.New("missing data field")
	}
	var b model.Bar
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return model.Bar{}, fmt.Errorf("unmarshal bar: %w", err)
	}
	if b.TF <= 0 || b.Token == "" || b.TS.IsZero() {
		return model.Bar{}, fmt.Errorf("incomplete bar %q", data)
	}
	return b, nil
}

// EnsureConsumerGroup creates the consumer group on every stream if needed.
// Fresh groups start at "$" so only new bars are delivered; history comes
// from the backfill and delta replay.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeBars reads bars with XREADGROUP and sends them to out, acking each
// one after it has been handed over. Returns when ctx is cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, streams []string, out chan<- model.Bar) error {
	// XREADGROUP args: [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			if err := r.deliver(ctx, stream.Stream, r.consumerGroup, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// deliver decodes and forwards messages, acking each. Undecodable messages
// are acked too so a poison entry never blocks the group.
func (r *Reader) deliver(ctx context.Context, stream, group string, msgs []goredis.XMessage, out chan<- model.Bar) error {
	for _, msg := range msgs {
		bar, err := decodeBar(msg.Values)
		if err != nil {
			log.Printf("[redis-reader] skipping %s %s: %v", stream, msg.ID, err)
			r.client.XAck(ctx, stream, group, msg.ID)
			continue
		}
		select {
		case out <- bar:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.client.XAck(ctx, stream, group, msg.ID)
	}
	return nil
}

// RecoverPending re-delivers messages this group left unacked before a crash.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.Bar) error {
	total := 0
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				MinIdle:  0,
				Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-reader] xclaim error on %s: %v", stream, err)
				break
			}
			if err := r.deliver(ctx, stream, r.consumerGroup, claimed, out); err != nil {
				return err
			}
			total += len(claimed)

			if len(claimed) < len(ids) {
				break
			}
		}
	}
	if total > 0 {
		log.Printf("[redis-reader] recovered %d pending bars", total)
	}
	return nil
}

// ReclaimStaleMessages XCLAIMs PEL entries idle longer than minIdleMs that
// belong to other consumers of the group.
func (r *Reader) ReclaimStaleMessages(ctx context.Context, stream, group, consumer string, minIdleMs int64, batchSize int64) ([]goredis.XMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  batchSize,
		Idle:   time.Duration(minIdleMs) * time.Millisecond,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var staleIDs []string
	for _, p := range pending {
		if p.Consumer != consumer {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  time.Duration(minIdleMs) * time.Millisecond,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}

	log.Printf("[redis-reader] reclaimed %d stale PEL entries from %s", len(claimed), stream)
	return claimed, nil
}

// StartPELReclaimer periodically reclaims stale PEL entries on every stream
// and forwards the bars to outCh. Runs until ctx is cancelled.
func (r *Reader) StartPELReclaimer(ctx context.Context, streams []string, interval time.Duration, minIdleMs int64, outCh chan<- model.Bar, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				claimed, err := r.ReclaimStaleMessages(ctx, stream, r.consumerGroup, r.consumerName, minIdleMs, 50)
				if err != nil {
					log.Printf("[redis-reader] PEL reclaim error on %s: %v", stream, err)
					continue
				}
				if err := r.deliver(ctx, stream, r.consumerGroup, claimed, outCh); err != nil {
					return
				}
				total += len(claimed)
			}
			if total > 0 && onReclaim != nil {
				onReclaim(total)
			}
		}
	}
}

// ReadSnapshot loads the engine snapshot stored under snapshotKey.
// Returns nil, nil when there is none.
func (r *Reader) ReadSnapshot(ctx context.Context, snapshotKey string) (*indicator.EngineSnapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot %s: %w", snapshotKey, err)
	}

	var snap indicator.EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// WriteSnapshot saves an engine snapshot. The Redis copy expires after 24h;
// SQLite keeps the durable history.
func (r *Reader) WriteSnapshot(ctx context.Context, snapshotKey string, snap *indicator.EngineSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, snapshotKey, data, 24*time.Hour).Err()
}

// ReplayFromID sends every bar in stream after startID to out, oldest
// first. Returns the last ID read.
func (r *Reader) ReplayFromID(ctx context.Context, stream, startID string, out chan<- model.Bar) (string, error) {
	lastID := startID
	for {
		start := "(" + lastID
		if lastID == "0" || lastID == "" {
			start = "-"
		}
		msgs, err := r.client.XRangeN(ctx, stream, start, "+", replayPageSize).Result()
		if err != nil {
			return lastID, fmt.Errorf("xrange %s from %s: %w", stream, lastID, err)
		}

		for _, msg := range msgs {
			lastID = msg.ID
			bar, err := decodeBar(msg.Values)
			if err != nil || bar.Forming {
				continue
			}
			select {
			case out <- bar:
			case <-ctx.Done():
				return lastID, ctx.Err()
			}
		}

		if len(msgs) < replayPageSize {
			return lastID, nil
		}
	}
}

// DiscoverBarStreams SCANs for existing bar streams of the given TFs.
func (r *Reader) DiscoverBarStreams(ctx context.Context, tfs []int) ([]string, error) {
	var streams []string
	for _, tf := range tfs {
		iter := r.client.Scan(ctx, 0, "bar:"+strconv.Itoa(tf)+"s:*", 500).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			if strings.Contains(key, ":latest:") {
				continue
			}
			streams = append(streams, key)
		}
		if err := iter.Err(); err != nil {
			return streams, fmt.Errorf("scan bar streams for %ds: %w", tf, err)
		}
	}
	sort.Strings(streams)
	return streams, nil
}

// SubscribeFormingBars listens on pub:bar:* and forwards forming bars of
// the enabled TFs. Bars of baseTF (when > 0) are also rolled up into
// forming bars of every larger enabled TF, so upstream only has to publish
// its base timeframe. Blocks until ctx is cancelled.
func (r *Reader) SubscribeFormingBars(ctx context.Context, tfs []int, baseTF int, out chan<- model.Bar) error {
	pubsub := r.client.PSubscribe(ctx, "pub:bar:*")
	defer pubsub.Close()

	enabled := make(map[int]bool, len(tfs))
	for _, tf := range tfs {
		enabled[tf] = true
	}
	agg := newFormingAggregator(baseTF, tfs)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var bar model.Bar
			if err := json.Unmarshal([]byte(msg.Payload), &bar); err != nil {
				continue
			}
			var forming []model.Bar
			if bar.Forming && enabled[bar.TF] {
				forming = append(forming, bar)
			}
			forming = append(forming, agg.Add(bar)...)
			for _, fb := range forming {
				select {
				case out <- fb:
				default:
				}
			}
		}
	}
}

// ReadLatestResults loads every "latest" indicator value, used to prime
// the chart gateway after a restart.
func (r *Reader) ReadLatestResults(ctx context.Context) ([]model.IndicatorResult, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, "ind:*:latest:*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan latest keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget latest: %w", err)
	}
	out := make([]model.IndicatorResult, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var res model.IndicatorResult
		if err := json.Unmarshal([]byte(s), &res); err != nil {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// SubscribeChannel subscribes to a Redis Pub/Sub channel and waits for the
// confirmation. Returns nil if the subscription failed.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[redis-reader] subscribe to %s failed: %v", channel, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// Publish publishes a message to a Redis Pub/Sub channel.
func (r *Reader) Publish(ctx context.Context, channel, message string) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
