// Command gateway runs the Write Gateway and Status Reader: the pipeline's
// HTTP ingress. Grounded on the teacher's cmd/helm/main.go:runServer wiring
// shape (env-driven *sql.DB connection, fatal-on-init-error, signal-based
// graceful shutdown), retargeted from HELM's kernel subsystems to the
// write-pipeline's gateway dependencies.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/corewrite/pipeline/pkg/config"
	"github.com/corewrite/pipeline/pkg/gateway"
	"github.com/corewrite/pipeline/pkg/gateway/httpapi"
	"github.com/corewrite/pipeline/pkg/ledger"
	"github.com/corewrite/pipeline/pkg/observability"
	"github.com/corewrite/pipeline/pkg/queue"
	"github.com/corewrite/pipeline/pkg/statusreader"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadGateway()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	obs, err := observability.New(ctx, observability.DefaultConfig("gateway"))
	if err != nil {
		log.Fatalf("gateway: observability init: %v", err)
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("gateway: open database: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("gateway: ping database: %v", err)
	}

	q := queue.New(db)
	if err := q.Init(ctx); err != nil {
		log.Fatalf("gateway: init queue schema: %v", err)
	}

	l := ledger.New(db)
	if err := l.Init(ctx); err != nil {
		log.Fatalf("gateway: init ledger schema: %v", err)
	}

	schema, err := gateway.NewSchemaValidator()
	if err != nil {
		log.Fatalf("gateway: compile schemas: %v", err)
	}

	var auth *gateway.JWTValidator
	if cfg.AuthRequired {
		auth = gateway.NewJWTValidator(cfg.JWTSigningKey)
	}

	server := httpapi.New(httpapi.Config{
		Admission:      gateway.NewAdmission(cfg.MaxInFlight, gateway.NewCircuitBreaker(cfg.BreakerTrip, cfg.BreakerReset)),
		Limiter:        gateway.NewActorLimiter(cfg.ActorRPM, cfg.ActorBurst),
		Schema:         schema,
		Auth:           auth,
		Queue:          q,
		Status:         statusreader.New(l),
		PublishTimeout: 5 * time.Second,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "gateway listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: serve: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.InfoContext(ctx, "gateway shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
