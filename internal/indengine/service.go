package indengine

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chart-indicators/internal/gateway"
	"chart-indicators/internal/indicator"
	"chart-indicators/internal/metrics"
	"chart-indicators/internal/model"
	redisstore "chart-indicators/internal/store/redis"
	sqlitestore "chart-indicators/internal/store/sqlite"
)

// Service is the top-level orchestrator for the indicator engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	// mu guards engine: bars, reloads and snapshots arrive on different
	// goroutines and the engine itself is not synchronised.
	mu     sync.Mutex
	engine *indicator.Engine

	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	breaker     *redisstore.CircuitBreaker
	results     model.ResultWriter
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	hub    *gateway.Hub

	streams []string
	barCh   chan model.Bar
	sqlCh   chan model.Bar
}

// newService builds a Service with its in-process collaborators only.
func newService(cfg Config) *Service {
	svc := &Service{
		cfg:    cfg,
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
		hub:    gateway.NewHub(),
		barCh:  make(chan model.Bar, 5000),
		sqlCh:  make(chan model.Bar, 5000),
	}
	svc.health.SetEnabledTFs(cfg.EnabledTFs)
	svc.hub.OnClients = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	svc.hub.OnDrop = svc.prom.WSDrops.Inc
	return svc
}

// New creates a new Service from the given Config.
// It connects to Redis and SQLite; the engine is restored in Run.
func New(cfg Config) (*Service, error) {
	svc := newService(cfg)

	// ---- Connect to Redis ----
	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}
	svc.redisWriter.OnWrite = func(d time.Duration) { svc.prom.RedisWriteDur.Observe(d.Seconds()) }
	svc.health.SetRedisConnected(true)

	svc.breaker = redisstore.NewCircuitBreaker(5, 10*time.Second)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Printf("[indengine] redis circuit breaker %s -> %s", from, to)
	}

	// ---- Open SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[indengine] WARNING: sqlite writer init failed: %v (bars will not be persisted)", err)
	} else {
		svc.sqlWriter.OnCommit = func(d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) }
	}
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[indengine] WARNING: sqlite reader init failed: %v (continuing without SQLite backfill)", err)
	}
	svc.health.SetSQLiteOK(svc.sqlWriter != nil && svc.sqlReader != nil)

	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[indengine] starting indicator engine...")

	bw := redisstore.NewBufferedWriter(ctx, svc.redisWriter, svc.breaker, 10000)
	bw.OnBuffer = svc.prom.RedisBufferedWrites.Inc
	svc.results = bw
	if svc.sqlWriter != nil {
		go svc.sqlWriter.Run(ctx, svc.sqlCh)
	}

	// ---- Prime chart clients with the last published values ----
	if latest, err := svc.redisReader.ReadLatestResults(ctx); err != nil {
		log.Printf("[indengine] latest results read error: %v", err)
	} else {
		svc.hub.Seed(latest)
	}

	// ---- Restore engine: Redis snapshot → SQLite snapshot → cold ----
	snap := svc.restoreEngine(ctx)

	// ---- Discover / build streams ----
	svc.streams = svc.buildStreams(ctx)
	log.Printf("[indengine] consuming from %d streams: %v", len(svc.streams), svc.streams)

	// ---- Catch up from Redis streams since the snapshot ----
	startID := "0"
	if snap != nil && snap.StreamID != "" {
		startID = snap.StreamID
	}
	svc.replayStreams(ctx, startID)

	// ---- Start subsystems ----
	go svc.processLoop(ctx)

	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			log.Printf("[indengine] WARNING: consumer group setup: %v", err)
		}
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.barCh); err != nil {
			log.Printf("[indengine] pending recovery error: %v", err)
		}
	}

	svc.startPELReclaimer(ctx)
	svc.startConsumer(ctx)
	go svc.peekLoop(ctx)
	go svc.snapshotLoop(ctx)
	svc.startHTTP(ctx)
	svc.startConfigSubscriber(ctx)

	var sqlDB *sql.DB
	if svc.sqlWriter != nil {
		sqlDB = svc.sqlWriter.DB()
	}
	svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), sqlDB, 10*time.Second)

	log.Printf("[indengine] running: TFs=%v snapshot every %ds, http %s", cfg.EnabledTFs, cfg.SnapshotIntervalS, cfg.HTTPAddr)

	// Block until context cancelled
	<-ctx.Done()

	// ---- Graceful shutdown ----
	svc.shutdown()
	return nil
}

// shutdown saves the final snapshot and closes connections.
func (svc *Service) shutdown() {
	log.Println("[indengine] shutdown signal received, saving final snapshot...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	svc.saveSnapshot(shutCtx, "shutdown")

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()

	log.Println("[indengine] shutdown complete.")
}

// restoreEngine restores the indicator engine from the Redis or SQLite
// snapshot, then backfills cold indicators from SQLite bars. Returns the
// snapshot used, if any.
func (svc *Service) restoreEngine(ctx context.Context) *indicator.EngineSnapshot {
	restorer := indicator.NewRestorer(svc.cfg.IndicatorConfigs, svc.cfg.Session)

	snap, err := svc.redisReader.ReadSnapshot(ctx, svc.cfg.SnapshotKey)
	if err != nil {
		log.Printf("[indengine] redis snapshot read error: %v", err)
	}
	if snap == nil && svc.sqlReader != nil {
		snap, err = svc.sqlReader.ReadLatestSnapshot()
		if err != nil {
			log.Printf("[indengine] sqlite snapshot read error: %v", err)
		}
	}

	engine := restorer.RestoreFromSnap(snap)
	if svc.sqlReader != nil {
		backfilled := restorer.Backfill(engine, svc.sqlReader, func(results []model.IndicatorResult) {
			svc.publish(ctx, results)
		})
		if backfilled > 0 {
			log.Printf("[indengine] warmed up indicators with %d stored bars", backfilled)
		}
	}

	svc.mu.Lock()
	svc.engine = engine
	svc.mu.Unlock()
	svc.health.SetIndicatorOK(true)
	svc.prom.Instruments.Set(float64(engine.Instruments()))
	return snap
}

// buildStreams returns the configured bar streams, or discovers them when no
// instruments are configured.
func (svc *Service) buildStreams(ctx context.Context) []string {
	if len(svc.cfg.SubscribeTokenKeys) == 0 {
		streams, err := svc.redisReader.DiscoverBarStreams(ctx, svc.cfg.EnabledTFs)
		if err != nil {
			log.Printf("[indengine] stream discovery error: %v", err)
		}
		return streams
	}
	var streams []string
	for _, tf := range svc.cfg.EnabledTFs {
		for _, key := range svc.cfg.SubscribeTokenKeys {
			streams = append(streams, model.BarStreamKey(tf, key))
		}
	}
	return streams
}

// replayStreams feeds closed bars from every stream since startID through
// the engine. Bars the engine already covered are ignored by it.
func (svc *Service) replayStreams(ctx context.Context, startID string) {
	replayCh := make(chan model.Bar, 5000)
	go func() {
		defer close(replayCh)
		for _, stream := range svc.streams {
			if _, err := svc.redisReader.ReplayFromID(ctx, stream, startID, replayCh); err != nil {
				log.Printf("[indengine] replay error on %s: %v", stream, err)
			}
		}
	}()

	replayed := 0
	for bar := range replayCh {
		if results := svc.handleBar(ctx, bar); results != nil {
			replayed++
		}
	}
	log.Printf("[indengine] replayed %d bars from Redis streams since %s", replayed, startID)
}
