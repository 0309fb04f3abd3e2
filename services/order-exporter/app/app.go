package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/cache"
	middleware "github.com/nimeshabuddhika/woo-order-exporter/pkg/middlewares"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/utils"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/configs"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/handlers"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// Background fetches run under ctx; cancel it before calling cleanup to stop them.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	// Optional shared request budget
	var redisClient *redis.Client
	closeRedis := func() {}
	if !utils.IsEmpty(cfg.RedisAddr) {
		redisClient, closeRedis, err = cache.New(ctx, cache.Config{Addr: cfg.RedisAddr}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	fetcher := services.NewFetcher(logger, cfg, redisClient)
	store := services.NewSessionStore(services.SessionStoreConfig{
		Fetcher: fetcher,
		Logger:  logger,
		TTL:     cfg.SessionTTL,
	})

	baseHandler := handlers.NewBaseHandler(logger, store)
	sessionHandler := handlers.NewSessionHandler(ctx, logger, store)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics())

	sessionHandler.RegisterRoutes(api)
	baseHandler.RegisterRoutes(r)

	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.Port), Handler: r}

	cleanup := func() {
		// wait for background fetches to observe cancellation
		store.Wait()
		closeRedis()
	}
	return srv, cleanup, nil
}
