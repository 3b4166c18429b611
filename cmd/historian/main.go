// cmd/historian is an asynchronous historian service that pops room events
// from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/coderoom/internal/cache"
	"github.com/jason-s-yu/coderoom/internal/config"
	"github.com/jason-s-yu/coderoom/internal/database"
	"github.com/jason-s-yu/coderoom/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb, err := cache.Connect(ctx, addr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("postgres: %v", err)
	}

	hs := historian.New(rdb, database.NewEventWriter(pool), historian.Options{
		Queue:      cfg.EventQueue,
		BatchSize:  cfg.HistorianBatch,
		FlushDelay: cfg.HistorianFlush,
	}, logger)
	hs.Run(ctx)
	logger.Info("historian shutdown complete")
}
