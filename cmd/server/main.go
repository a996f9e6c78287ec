package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/hexwave/roomplay/internal/connstate"
	"github.com/hexwave/roomplay/internal/entitystore"
	"github.com/hexwave/roomplay/internal/hub"
	"github.com/hexwave/roomplay/internal/persistence"
	"github.com/hexwave/roomplay/internal/room"
	"github.com/hexwave/roomplay/internal/rules"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/auth"
	"github.com/hexwave/roomplay/internal/v1/cache"
	"github.com/hexwave/roomplay/internal/v1/config"
	"github.com/hexwave/roomplay/internal/v1/health"
	"github.com/hexwave/roomplay/internal/v1/logging"
	"github.com/hexwave/roomplay/internal/v1/middleware"
	"github.com/hexwave/roomplay/internal/v1/ratelimit"
	"github.com/hexwave/roomplay/internal/v1/tracing"
)

// noopSocialStore is the development default for room.SocialStore. Social
// relations (friends/blocks) live in a separate service per spec §1; a real
// deployment backs room.Coordinator with a client for that service instead.
type noopSocialStore struct{}

func (noopSocialStore) IsBlocked(ctx context.Context, userID, targetID types.UserIdType) (bool, error) {
	return false, nil
}

func (noopSocialStore) AcceptsInvitesFrom(ctx context.Context, userID, targetID types.UserIdType) (bool, error) {
	return true, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		logging.Warn(context.Background(), "no .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		logging.Error(context.Background(), "invalid environment configuration", zap.Error(err))
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		logging.Error(context.Background(), "failed to initialize logger", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := os.Getenv("OTEL_COLLECTOR_ADDR"); addr != "" {
		tp, err := tracing.InitTracer(ctx, "roomplay", addr)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	store, err := persistence.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		logging.Error(ctx, "failed to connect to persistence store", zap.Error(err))
		os.Exit(1)
	}

	var redisService *cache.Service
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisService, err = cache.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to redis", zap.Error(err))
			os.Exit(1)
		}
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	var validator auth.TokenValidator
	if cfg.SkipAuth {
		logging.Warn(ctx, "authentication disabled, do not use in production")
		validator = &auth.MockValidator{}
	} else {
		v, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			logging.Error(ctx, "failed to initialize token validator", zap.Error(err))
			os.Exit(1)
		}
		validator = v
	}

	var limiter *ratelimit.RateLimiter
	if redisClient != nil {
		limiter, err = ratelimit.NewRateLimiter(cfg, redisClient, validator)
		if err != nil {
			logging.Error(ctx, "failed to initialize rate limiter", zap.Error(err))
			os.Exit(1)
		}
	}

	rooms := entitystore.New[types.RoomIdType, *room.Room]()
	clients := entitystore.New[types.UserIdType, *room.ClientState]()
	conns := connstate.NewRegistry()
	modRules := rules.NewDefault()

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	h := hub.NewHub(nil, conns, validator, limiter, allowedOrigins)
	coordinator := room.NewCoordinator(rooms, clients, store, modRules, noopSocialStore{}, h)
	h.SetCoordinator(coordinator)

	healthHandler := health.NewHandler(redisService, store)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("roomplay"))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsConfig))

	if limiter != nil {
		router.Use(limiter.GlobalMiddleware())
	}

	router.GET("/ws", h.ServeWs)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/readyz", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "roomplay server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "server exiting")
}
