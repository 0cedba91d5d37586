// Command processor runs the Write Processor: one consumption loop per
// supported table, optionally supervised by a stale-pending sweeper.
// Grounded on the teacher's cmd/helm/main.go wiring shape, with per-table
// loops supervised by golang.org/x/sync/errgroup instead of the teacher's
// single-service goroutine, per spec.md §5's "WP runs one consumption
// loop per table."
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
	"golang.org/x/sync/errgroup"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/corewrite/pipeline/pkg/cache"
	"github.com/corewrite/pipeline/pkg/config"
	"github.com/corewrite/pipeline/pkg/domain"
	"github.com/corewrite/pipeline/pkg/ledger"
	"github.com/corewrite/pipeline/pkg/observability"
	"github.com/corewrite/pipeline/pkg/processor"
	"github.com/corewrite/pipeline/pkg/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadProcessor()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	obs, err := observability.New(ctx, observability.DefaultConfig("processor"))
	if err != nil {
		log.Fatalf("processor: observability init: %v", err)
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("processor: open database: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("processor: ping database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Concurrency * len(domain.SupportedTables))

	q := queue.New(db)
	if err := q.Init(ctx); err != nil {
		log.Fatalf("processor: init queue schema: %v", err)
	}

	l := ledger.New(db)
	if err := l.Init(ctx); err != nil {
		log.Fatalf("processor: init ledger schema: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()
	ck := cache.New(redisClient)

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		log.Fatalf("processor: init dead-letter archiver: %v", err)
	}

	usersHandler := processor.NewUsersHandler()
	ordersHandler := processor.NewOrdersHandler()
	if err := usersHandler.Init(ctx, db); err != nil {
		log.Fatalf("processor: init users table: %v", err)
	}
	if err := ordersHandler.Init(ctx, db); err != nil {
		log.Fatalf("processor: init orders table: %v", err)
	}
	registry := processor.NewRegistry(usersHandler, ordersHandler)

	protocolCfg := processor.Config{
		AckDeadline: cfg.AckDeadline,
		MaxDeliver:  cfg.MaxDeliver,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range domain.SupportedTables {
		handler, err := registry.Resolve(table)
		if err != nil {
			log.Fatalf("processor: resolve handler: %v", err)
		}
		proto := processor.New(db, q, l, ck, archiver, handler, protocolCfg)
		loop := processor.NewLoop(q, proto, table, cfg.AckDeadline)
		g.Go(func() error { return loop.Run(gctx) })
	}

	if cfg.SweeperEnabled {
		sweeper := processor.NewSweeper(l, cfg.SweeperInterval, cfg.SweeperStaleAfter)
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	logger.InfoContext(ctx, "processor running", "tables", domain.SupportedTables, "sweeper_enabled", cfg.SweeperEnabled)

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Fatalf("processor: consumer loop failed: %v", err)
	}
	logger.InfoContext(ctx, "processor shut down")
}

// newArchiver builds the dead-letter S3 archiver, or returns nil
// (best-effort archival disabled) when no bucket is configured.
func newArchiver(ctx context.Context, cfg *config.ProcessorConfig) (queue.Archiver, error) {
	if cfg.DLQBucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg)
	return queue.NewS3Archiver(client, cfg.DLQBucket, cfg.DLQPrefix), nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
