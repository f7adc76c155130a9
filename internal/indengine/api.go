package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"chart-indicators/internal/indicator"
)

// routes builds the HTTP mux: health, metrics, config and the chart
// WebSocket gateway.
func (svc *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", svc.health)
	mux.Handle("/metrics", svc.prom.Handler())
	mux.HandleFunc("/reload", svc.handleReload)
	mux.HandleFunc("/config", svc.handleConfig)
	mux.Handle("/ws", svc.hub)
	mux.Handle("/ws/stats", svc.hub.StatsHandler())
	return mux
}

// startHTTP launches the HTTP server and shuts it down with ctx.
func (svc *Service) startHTTP(ctx context.Context) {
	srv := &http.Server{
		Addr:              svc.cfg.HTTPAddr,
		Handler:           svc.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[indengine] HTTP server on %s (/healthz, /metrics, /reload, /config, /ws)", svc.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[indengine] HTTP server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()
}

// handleReload handles POST /reload for live config updates. The body is a
// JSON array of TF configs or the compact spec syntax.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	configs, err := ParseReloadPayload(string(body), svc.cfg.EnabledTFs)
	if err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	preserved, created := svc.applyReload(configs, "http")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"preserved": preserved,
		"created":   created,
	})
}

// handleConfig serves the active indicator configuration.
func (svc *Service) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	svc.mu.Lock()
	configs := svc.engine.Configs()
	svc.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

// applyReload swaps the engine configuration. Plugins whose config key is
// unchanged keep their state; new ones start cold and warm up on live bars.
func (svc *Service) applyReload(configs []indicator.TFIndicatorConfig, source string) (preserved, created int) {
	svc.mu.Lock()
	preserved, created = svc.engine.ReloadConfigs(configs)
	svc.mu.Unlock()
	svc.prom.ReloadsTotal.WithLabelValues(source).Inc()
	log.Printf("[indengine] reloaded from %s: preserved=%d, created=%d", source, preserved, created)
	return preserved, created
}

// startConfigSubscriber listens on Redis PubSub for dynamic indicator config updates.
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	go func() {
		pubsub := svc.redisReader.SubscribeChannel(ctx, "config:indicators")
		if pubsub == nil {
			log.Println("[indengine] WARNING: could not subscribe to config:indicators")
			return
		}
		defer pubsub.Close()
		log.Println("[indengine] subscribed to config:indicators for dynamic reload")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				configs, err := ParseReloadPayload(msg.Payload, svc.cfg.EnabledTFs)
				if err != nil {
					log.Printf("[indengine] invalid config update %q: %v", msg.Payload, err)
					continue
				}
				svc.applyReload(configs, "pubsub")
			}
		}
	}()
}
