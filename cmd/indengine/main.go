package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chart-indicators/internal/indengine"
	"chart-indicators/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("[indengine] .env: %v", err)
	}
	logger.FromEnv("indengine")

	cfg, err := indengine.LoadConfig()
	if err != nil {
		log.Fatalf("[indengine] config: %v", err)
	}
	log.Printf("[indengine] enabled TFs: %v, snapshot interval: %ds", cfg.EnabledTFs, cfg.SnapshotIntervalS)

	svc, err := indengine.New(cfg)
	if err != nil {
		log.Fatalf("[indengine] init failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[indengine] fatal: %v", err)
	}
}
