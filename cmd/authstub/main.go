package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/modelgate/modelgate-go/handlers"
	"github.com/modelgate/modelgate-go/internal/accounts"
	"github.com/modelgate/modelgate-go/internal/config"
	"github.com/modelgate/modelgate-go/internal/sessions"
	"github.com/modelgate/modelgate-go/pkg/logger"
	"github.com/modelgate/modelgate-go/pkg/metrics"
	"github.com/modelgate/modelgate-go/pkg/middleware"
)

var startTime = time.Now()

// authstub is a development backend implementing the auth API the client
// library talks to. It keeps accounts in memory; refresh sessions go to
// Redis when REDIS_ADDR is set, otherwise they stay in memory too.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	if cfg.Stub.JWTSecret == "" {
		cfg.Stub.JWTSecret = "dev-only-secret"
		logger.Warnf("STUB_JWT_SECRET not set, using built-in dev secret")
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Permissive CORS for local frontend development.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	var redisClient *redis.Client
	var sessRepo sessions.Repository = sessions.NewMemoryRepository()
	if cfg.Session.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Warnf("redis unreachable (%v), using in-memory sessions", err)
			redisClient = nil
		} else {
			logger.Infof("redis connected: %s", cfg.Session.Redis.Addr)
			sessRepo = sessions.NewRedisRepository(redisClient, cfg.Session.Redis.Prefix)
			sessions.SetBlacklistClient(redisClient)
		}
	}

	acctSvc := accounts.NewService(accounts.NewMemoryRepository(), true)
	sessSvc := sessions.NewService(sessRepo, cfg.Stub.RefreshTTL)

	api := r.Group("/api")
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			api.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, time.Minute))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	h := handlers.NewAuthHandler(cfg, acctSvc, sessSvc)
	h.Register(api, middleware.AuthMiddleware(cfg.Stub.JWTSecret))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := ":" + cfg.Stub.Port
	logger.Infof("authstub listening on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
