package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/notify"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/queue"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

const queuePrefix = "pos"

// The worker drains the webhook delivery queue. It is only needed for
// deployments pointing at an external Redis; with the embedded store
// the API process runs deliveries in-process.
func main() {
	cfg := config.MustLoad()
	if cfg.EmbeddedRedis() {
		panic("REDIS_URL must be set for the standalone worker")
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	endpoints := make([]notify.Endpoint, 0, len(cfg.WebhookURLs))
	for _, url := range cfg.WebhookURLs {
		endpoints = append(endpoints, notify.Endpoint{URL: url, Secret: cfg.WebhookSecret})
	}
	dispatcher := &notify.Dispatcher{
		Endpoints:   endpoints,
		Queue: queue.Enqueuer{R: redisClient, Prefix: queuePrefix, DedupTTL: cfg.IdempotencyTTL},
		HTTP: &resilience.HTTPClient{
			Client:  notify.HttpClient(int(cfg.WebhookTimeout/time.Millisecond), false),
			Breaker: resilience.NewBreaker(10, 0.5, 30*time.Second),
			Timeout: cfg.WebhookTimeout,
		},
		MaxAttempts: cfg.WebhookMaxAttempts,
		Enabled:     len(endpoints) > 0,
		Replay:      notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:   cfg.IdempotencyTTL,
	}

	worker := notify.DeliveryWorker{Dispatcher: dispatcher}.Worker(queue.Worker{
		R:           redisClient,
		Prefix:      queuePrefix,
		Concurrency: 4,
	})

	logger.Info().Msg("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
