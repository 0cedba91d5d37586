// Command cdcconsumer runs the CDC Consumer: the single durable consumer
// reconciling the Cache Keystore against the relational store's change
// feed. Grounded on the teacher's cmd/helm/main.go wiring shape,
// simplified to a single supervised loop since spec.md §5 names exactly
// one CDCC consumption loop (unlike WP's one-per-table).
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/corewrite/pipeline/pkg/cache"
	"github.com/corewrite/pipeline/pkg/cdc"
	"github.com/corewrite/pipeline/pkg/config"
	"github.com/corewrite/pipeline/pkg/observability"
	"github.com/corewrite/pipeline/pkg/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadCDC()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	obs, err := observability.New(ctx, observability.DefaultConfig("cdcconsumer"))
	if err != nil {
		log.Fatalf("cdcconsumer: observability init: %v", err)
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("cdcconsumer: open database: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("cdcconsumer: ping database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Concurrency)

	q := queue.New(db)
	if err := q.Init(ctx); err != nil {
		log.Fatalf("cdcconsumer: init queue schema: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()
	ck := cache.New(redisClient)

	consumer := cdc.New(q, ck, cfg.AckDeadline)

	logger.InfoContext(ctx, "cdc consumer running")
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("cdcconsumer: consumer loop failed: %v", err)
	}
	logger.InfoContext(ctx, "cdc consumer shut down")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
