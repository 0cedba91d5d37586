// Package config loads the three binaries' environment configuration,
// following the teacher's pkg/config/config.go: read an env var, fall back
// to a sane local default, no external config service.
package config

import (
	"os"
	"strconv"
	"time"
)

// GatewayConfig configures cmd/gateway (the Write Gateway + Status Reader).
type GatewayConfig struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	MaxInFlight   int64
	BreakerTrip   int           // consecutive failures before the circuit opens
	BreakerReset  time.Duration // time in open before a half-open probe is allowed
	ActorRPM      int           // default per-actor rate limit, requests per minute
	ActorBurst    int
	AuthRequired  bool
	JWTSigningKey string
}

// LoadGateway loads GatewayConfig from the environment.
func LoadGateway() *GatewayConfig {
	return &GatewayConfig{
		Port:          envOr("PORT", "8080"),
		LogLevel:      envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:   envOr("DATABASE_URL", "postgres://pipeline@localhost:5432/pipeline?sslmode=disable"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		MaxInFlight:   envOrInt64("MAX_IN_FLIGHT", 256),
		BreakerTrip:   int(envOrInt64("BREAKER_TRIP_THRESHOLD", 10)),
		BreakerReset:  envOrDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		ActorRPM:      int(envOrInt64("ACTOR_RATE_LIMIT_RPM", 600)),
		ActorBurst:    int(envOrInt64("ACTOR_RATE_LIMIT_BURST", 60)),
		AuthRequired:  os.Getenv("AUTH_REQUIRED") == "true",
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
	}
}

// ProcessorConfig configures cmd/processor (the Write Processor).
type ProcessorConfig struct {
	LogLevel          string
	DatabaseURL       string
	RedisAddr         string
	AckDeadline       time.Duration
	MaxDeliver        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	Concurrency       int
	SweeperEnabled    bool
	SweeperInterval   time.Duration
	SweeperStaleAfter time.Duration
	DLQBucket         string
	DLQPrefix         string
	AWSRegion         string
}

// LoadProcessor loads ProcessorConfig from the environment.
func LoadProcessor() *ProcessorConfig {
	return &ProcessorConfig{
		LogLevel:          envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:       envOr("DATABASE_URL", "postgres://pipeline@localhost:5432/pipeline?sslmode=disable"),
		RedisAddr:         envOr("REDIS_ADDR", "localhost:6379"),
		AckDeadline:       envOrDuration("ACK_DEADLINE", 30*time.Second),
		MaxDeliver:        int(envOrInt64("MAX_DELIVER", 5)),
		BaseBackoff:       envOrDuration("RETRY_BASE_BACKOFF", 500*time.Millisecond),
		MaxBackoff:        envOrDuration("RETRY_MAX_BACKOFF", 30*time.Second),
		Concurrency:       int(envOrInt64("PROCESSOR_CONCURRENCY", 8)),
		SweeperEnabled:    os.Getenv("SWEEPER_ENABLED") == "true",
		SweeperInterval:   envOrDuration("SWEEPER_INTERVAL", 5*time.Minute),
		SweeperStaleAfter: envOrDuration("SWEEPER_STALE_AFTER", time.Hour),
		DLQBucket:         os.Getenv("DLQ_S3_BUCKET"),
		DLQPrefix:         envOr("DLQ_S3_PREFIX", "dead-letters/"),
		AWSRegion:         envOr("AWS_REGION", "us-east-1"),
	}
}

// CDCConfig configures cmd/cdcconsumer.
type CDCConfig struct {
	LogLevel    string
	DatabaseURL string
	RedisAddr   string
	AckDeadline time.Duration
	MaxDeliver  int
	Concurrency int
}

// LoadCDC loads CDCConfig from the environment.
func LoadCDC() *CDCConfig {
	return &CDCConfig{
		LogLevel:    envOr("LOG_LEVEL", "INFO"),
		DatabaseURL: envOr("DATABASE_URL", "postgres://pipeline@localhost:5432/pipeline?sslmode=disable"),
		RedisAddr:   envOr("REDIS_ADDR", "localhost:6379"),
		AckDeadline: envOrDuration("ACK_DEADLINE", 30*time.Second),
		MaxDeliver:  int(envOrInt64("MAX_DELIVER", 5)),
		Concurrency: int(envOrInt64("CDC_CONCURRENCY", 4)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
