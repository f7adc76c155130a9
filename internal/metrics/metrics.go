package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine.
// Every collector lives on a private registry so tests and multiple
// services in one process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	BarsTotal      *prometheus.CounterVec // labels: tf
	LiveBarsTotal  *prometheus.CounterVec // labels: tf
	StaleBarsTotal prometheus.Counter

	// Indicator engine
	ResultsTotal        *prometheus.CounterVec // labels: kind
	NotReadyTotal       *prometheus.CounterVec // labels: kind
	IndicatorComputeDur prometheus.Histogram
	VWAPResetsTotal     *prometheus.CounterVec // labels: name
	Instruments         prometheus.Gauge
	ReloadsTotal        *prometheus.CounterVec // labels: source=http|pubsub

	// Persistence
	SnapshotSavesTotal *prometheus.CounterVec // labels: store, status
	RedisWriteDur      prometheus.Histogram
	SQLiteCommitDur    prometheus.Histogram

	// Consumer groups
	PELMessagesReclaimed prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Chart gateway
	WSClients prometheus.Gauge
	WSDrops   prometheus.Counter
}

// NewMetrics creates all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_bars_total",
			Help: "Closed bars processed (by timeframe)",
		}, []string{"tf"}),
		LiveBarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_live_bars_total",
			Help: "Forming bars previewed (by timeframe)",
		}, []string{"tf"}),
		StaleBarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_stale_bars_total",
			Help: "Closed bars dropped because they were not newer than the last bar",
		}),

		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_results_total",
			Help: "Indicator results produced (by kind)",
		}, []string{"kind"}),
		NotReadyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_not_ready_total",
			Help: "Indicator results still warming up or filtered (by kind)",
		}, []string{"kind"}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_compute_duration_seconds",
			Help:    "Indicator engine compute latency per bar",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		VWAPResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_vwap_resets_total",
			Help: "VWAP anchor period resets (by indicator name)",
		}, []string{"name"}),
		Instruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_instruments",
			Help: "Instrument/timeframe pairs with live indicator state",
		}),
		ReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_reloads_total",
			Help: "Indicator config reloads applied (by source)",
		}, []string{"source"}),

		SnapshotSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_snapshot_saves_total",
			Help: "Engine snapshot writes (by store and status)",
		}, []string{"store", "status"}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_redis_write_duration_seconds",
			Help:    "Redis pipeline write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis circuit breaker is open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_ws_clients",
			Help: "Connected chart WebSocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ws_drops_total",
			Help: "Messages dropped because a chart client was too slow",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BarsTotal,
		m.LiveBarsTotal,
		m.StaleBarsTotal,
		m.ResultsTotal,
		m.NotReadyTotal,
		m.IndicatorComputeDur,
		m.VWAPResetsTotal,
		m.Instruments,
		m.ReloadsTotal,
		m.SnapshotSavesTotal,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.PELMessagesReclaimed,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
		m.WSDrops,
	)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	IndicatorOK    bool      `json:"indicator_ok"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetIndicatorOK(v bool) {
	h.mu.Lock()
	h.IndicatorOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The engine keeps computing
// without SQLite, so only Redis and the engine itself decide availability.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	switch {
	case !h.RedisConnected && !h.IndicatorOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case !h.RedisConnected || !h.IndicatorOK:
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	case !h.SQLiteOK:
		overallStatus = "degraded"
	}

	barAge := ""
	lastBar := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
		lastBar = h.LastBarTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		IndicatorOK     bool    `json:"indicator_ok"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastBarTime:     lastBar,
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		IndicatorOK:     h.IndicatorOK,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("[metrics] healthz encode: %v", err)
	}
}
