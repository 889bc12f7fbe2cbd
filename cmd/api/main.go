package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/notify"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pos"
	"github.com/noah-isme/backend-pos/internal/queue"
	"github.com/noah-isme/backend-pos/internal/ratelimit"
	"github.com/noah-isme/backend-pos/internal/report"
	"github.com/noah-isme/backend-pos/internal/resilience"
	"github.com/noah-isme/backend-pos/internal/security"
)

const queuePrefix = "pos"

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pos")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pos-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisURL := cfg.RedisURL
	if cfg.EmbeddedRedis() {
		embedded, err := miniredis.Run()
		if err != nil {
			logger.Fatal().Err(err).Msg("start embedded store")
		}
		defer embedded.Close()
		redisURL = "redis://" + embedded.Addr()
		logger.Info().Str("addr", embedded.Addr()).Msg("running with embedded store")
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if !cfg.EmbeddedRedis() {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if metricsEnabled {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	enqueuer := queue.Enqueuer{R: redisClient, Prefix: queuePrefix, DedupTTL: cfg.IdempotencyTTL}
	endpoints := webhookEndpoints(cfg)
	dispatcher := &notify.Dispatcher{
		Endpoints:   endpoints,
		Queue: enqueuer,
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

	eventStore := &events.RedisStore{R: redisClient}
	bus := &events.Bus{
		Store:     eventStore,
		Scheduler: dispatcher,
		Notifiers: []events.Notifier{notify.LogNotifier{Logger: logger}},
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store:           catalog.NewStore(catalog.MockInventory()),
		Cache:           catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Events:          bus,
		DefaultLimit:    cfg.CatalogDefaultLimit,
		MaxLimit:        cfg.CatalogMaxLimit,
		DefaultLowStock: cfg.LowStockThreshold,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalogService)

	ledger := &report.Ledger{R: redisClient, Bus: bus}
	reportHandler := &report.Handler{Svc: &report.Service{Ledger: ledger, Catalog: catalogService.Store(), Currency: cfg.CurrencyCode}}

	registry := pos.NewRegistry(cfg.SessionTTL)
	go registry.Run(ctx, time.Minute, logger)

	posHandler := &pos.Handler{
		Registry: registry,
		Engine: &pos.Engine{
			Catalog:  catalogService.Store(),
			Recorder: ledger,
			TaxBps:   cfg.TaxRateBps,
			Log:      logger,
		},
		Events:  bus,
		Locker:  lock.Locker{R: redisClient},
		LockTTL: cfg.SettleLockTTL,
	}

	queueAdmin := &queue.AdminHandler{
		DLQ:    queue.DLQ{R: redisClient, Prefix: queuePrefix},
		Queue:  enqueuer,
		Logger: logger,
	}
	eventsHandler := &events.Handler{Store: eventStore}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: queuePrefix},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limit") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(limiter.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{redis: redisClient},
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Post("/products", catalogHandler.Create)
		v.Route("/products/{id}", func(p chi.Router) {
			p.Get("/", catalogHandler.Product)
			p.Put("/", catalogHandler.Update)
			p.Delete("/", catalogHandler.Delete)
		})

		v.Post("/sessions", posHandler.CreateSession)
		v.Route("/sessions/{id}", func(s chi.Router) {
			s.Get("/", posHandler.GetSession)
			s.Delete("/", posHandler.DeleteSession)
			s.Post("/scan", posHandler.Scan)
			s.Patch("/items/{productId}", posHandler.SetQuantity)
			s.Delete("/items/{productId}", posHandler.RemoveItem)
			s.Put("/discount", posHandler.SetDiscount)
			s.Put("/payment", posHandler.SetPayment)
			s.With(idem.Middleware).Post("/complete", posHandler.Complete)
			s.Post("/cancel", posHandler.CancelSale)
		})

		v.Route("/reports", func(rep chi.Router) {
			rep.Get("/financial", reportHandler.Financial)
			rep.Get("/financial.csv", reportHandler.FinancialCSV)
			rep.Get("/sales", reportHandler.Sales)
			rep.Get("/sales.csv", reportHandler.SalesCSV)
			rep.Get("/stock", reportHandler.Stock)
		})
		v.Get("/expenses", reportHandler.Expenses)
		v.With(idem.Middleware).Post("/expenses", reportHandler.CreateExpense)

		v.Route("/admin", func(admin chi.Router) {
			admin.Get("/events", eventsHandler.Recent)
			admin.Get("/dlq", queueAdmin.ListDLQ)
			admin.Post("/dlq/replay", queueAdmin.ReplayDLQ)
			admin.Post("/dlq/purge", queueAdmin.PurgeDLQ)
		})
	})

	if dispatcher.Enabled && cfg.EmbeddedRedis() {
		worker := notify.DeliveryWorker{Dispatcher: dispatcher}.Worker(queue.Worker{
			R:           redisClient,
			Prefix:      queuePrefix,
			Concurrency: 2,
		})
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("delivery worker stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop, stopCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopCancel()
	<-stop.Done()

	logger.Info().Msg("shutting down")
	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	cancel()
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func webhookEndpoints(cfg *config.Config) []notify.Endpoint {
	endpoints := make([]notify.Endpoint, 0, len(cfg.WebhookURLs))
	for _, url := range cfg.WebhookURLs {
		endpoints = append(endpoints, notify.Endpoint{URL: url, Secret: cfg.WebhookSecret})
	}
	return endpoints
}

type readinessChecker struct {
	redis *redis.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
