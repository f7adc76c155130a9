package indengine

import (
	"context"
	"log"
	"log/slog"
	"strconv"
	"time"

	"chart-indicators/internal/indicator"
	"chart-indicators/internal/logger"
	"chart-indicators/internal/model"
)

const (
	indicatorLatencyKey           = "metrics:indengine:indicator_compute_ms"
	indicatorLatencyTTL           = 30 * time.Second
	indicatorLatencyPublishMinDur = 2 * time.Second
	indicatorLatencyAlpha         = 0.2
)

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go func() {
		if err := svc.redisReader.ConsumeBars(ctx, svc.streams, svc.barCh); err != nil && ctx.Err() == nil {
			log.Printf("[indengine] consumer error: %v", err)
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams,
		time.Duration(svc.cfg.PELIntervalS)*time.Second,
		svc.cfg.PELMinIdleMs, svc.barCh,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			log.Printf("[indengine] reclaimed %d stale PEL messages", count)
		})
	log.Printf("[indengine] PEL reclaimer started (interval=%ds, minIdle=%dms)",
		svc.cfg.PELIntervalS, svc.cfg.PELMinIdleMs)
}

// processLoop consumes bars from the channel and computes indicators.
func (svc *Service) processLoop(ctx context.Context) {
	var (
		latencyEwmaMs      float64
		lastLatencyPublish time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-svc.barCh:
			if !ok {
				return
			}

			start := time.Now()
			svc.handleBar(ctx, bar)
			latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

			// Track EWMA latency and publish periodically
			if latencyEwmaMs == 0 {
				latencyEwmaMs = latencyMs
			} else {
				latencyEwmaMs = latencyEwmaMs*(1.0-indicatorLatencyAlpha) + latencyMs*indicatorLatencyAlpha
			}
			if svc.redisWriter != nil && time.Since(lastLatencyPublish) >= indicatorLatencyPublishMinDur {
				cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
				_ = svc.redisWriter.PublishComputeLatency(cctx, indicatorLatencyKey, latencyEwmaMs, indicatorLatencyTTL)
				cancel()
				lastLatencyPublish = time.Now()
			}
		}
	}
}

// handleBar runs one bar through the engine and publishes the results.
// Closed bars advance indicator state; forming bars only produce live
// previews. Returns nil when the engine ignored the bar.
func (svc *Service) handleBar(ctx context.Context, bar model.Bar) []model.IndicatorResult {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(bar.Key(), bar.TF, bar.TS))

	start := time.Now()
	svc.mu.Lock()
	var results []model.IndicatorResult
	if bar.Forming {
		results = svc.engine.ProcessPeek(bar)
	} else {
		results = svc.engine.Process(bar)
	}
	instruments := svc.engine.Instruments()
	svc.mu.Unlock()
	svc.prom.IndicatorComputeDur.Observe(time.Since(start).Seconds())

	tf := strconv.Itoa(bar.TF)
	if bar.Forming {
		svc.prom.LiveBarsTotal.WithLabelValues(tf).Inc()
	} else {
		svc.prom.BarsTotal.WithLabelValues(tf).Inc()
		svc.health.SetLastBarTime(time.Now())
		if results == nil {
			svc.prom.StaleBarsTotal.Inc()
			slog.Debug("bar ignored", append(logger.LogWithTrace(ctx), "stream", bar.StreamKey())...)
			return nil
		}
		svc.prom.Instruments.Set(float64(instruments))
		select {
		case svc.sqlCh <- bar:
		default:
			log.Printf("[indengine] WARNING: sqlite queue full, dropping %s %s", bar.StreamKey(), bar.TS.Format(time.RFC3339))
		}
	}

	svc.observeResults(results, bar.Forming)
	svc.publish(ctx, results)
	return results
}

// observeResults records result counters. A VWAP whose period starts at the
// bar's own timestamp has just reset.
func (svc *Service) observeResults(results []model.IndicatorResult, live bool) {
	for i := range results {
		r := &results[i]
		if !r.Ready {
			svc.prom.NotReadyTotal.WithLabelValues(r.Kind).Inc()
			continue
		}
		svc.prom.ResultsTotal.WithLabelValues(r.Kind).Inc()
		if live || r.Kind != string(indicator.KindVWAP) {
			continue
		}
		if ps, ok := r.Values["period_start"]; ok && int64(ps) == r.TS.Unix() {
			svc.prom.VWAPResetsTotal.WithLabelValues(r.Name).Inc()
		}
	}
}

// publish writes results to Redis and pushes them to chart clients.
func (svc *Service) publish(ctx context.Context, results []model.IndicatorResult) {
	if len(results) == 0 {
		return
	}
	if svc.results != nil {
		svc.results.WriteIndicatorBatch(ctx, results)
	}
	svc.hub.Publish(results)
}
