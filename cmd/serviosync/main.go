package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/serviosync/internal/booking/api"
	"github.com/example/serviosync/internal/booking/cache"
	"github.com/example/serviosync/internal/booking/domain"
	"github.com/example/serviosync/internal/booking/handler"
	"github.com/example/serviosync/internal/booking/review"
	booksync "github.com/example/serviosync/internal/booking/sync"
	ratelimit "github.com/example/serviosync/internal/http/middleware"
	"github.com/example/serviosync/internal/session"
	"github.com/example/serviosync/pkg/events"
	"github.com/example/serviosync/pkg/observability"
)

type appConfig struct {
	HTTPAddr        string
	UpstreamBaseURL string
	RedisAddr       string
	NATSURL         string
	JWTSecret       string
	ListStaleTime   time.Duration
	GCTime          time.Duration
	SweepInterval   time.Duration
	ReviewTTL       time.Duration
	RateLimit       float64
	RateBurst       float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("servio-sync")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "servio-sync")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()
	if cfg.UpstreamBaseURL == "" {
		logger.Fatal("UPSTREAM_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("serviosync")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var sessions session.Store
	if redisClient != nil {
		sessions = session.NewRedisStore(redisClient, "")
	} else {
		logger.Warn("redis not configured, sessions are in-memory")
		sessions = session.NewMemoryStore(domain.SystemClock{})
	}

	remote := api.NewClient(cfg.UpstreamBaseURL, logger.Named("api"))
	store := cache.NewStore(domain.SystemClock{}, logger.Named("cache"), cache.Config{
		ListStaleTime: cfg.ListStaleTime,
		GCTime:        cfg.GCTime,
	})
	go store.RunSweeper(ctx, cfg.SweepInterval)

	publisher := events.NewPublisher(natsConn, "booking.sync")
	syncer := booksync.New(store, remote, sessions, publisher, domain.SystemClock{}, logger.Named("sync"))
	gate := review.NewGate(remote, domain.SystemClock{}, logger.Named("review"), cfg.ReviewTTL)

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.RateConfig{
		Rate:  cfg.RateLimit,
		Burst: cfg.RateBurst,
	})

	r := chi.NewRouter()
	r.Mount("/", handler.NewHTTP(syncer, gate, cfg.JWTSecret).Router(limiter.Middleware))
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("booking sync listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		UpstreamBaseURL: os.Getenv("UPSTREAM_BASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		NATSURL:         os.Getenv("NATS_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		ListStaleTime:   time.Duration(parseIntEnv("LIST_STALE_SEC", 300)) * time.Second,
		GCTime:          time.Duration(parseIntEnv("CACHE_GC_SEC", 600)) * time.Second,
		SweepInterval:   time.Duration(parseIntEnv("SWEEP_INTERVAL_SEC", 60)) * time.Second,
		ReviewTTL:       time.Duration(parseIntEnv("REVIEW_TTL_SEC", 120)) * time.Second,
		RateLimit:       parseFloatEnv("RATE_LIMIT_RPS", 20),
		RateBurst:       parseFloatEnv("RATE_LIMIT_BURST", 40),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
