package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	orchestratorclient "github.com/Aduenko-Vladislav/payment-relay/internal/adapters/orchestrator"
	"github.com/Aduenko-Vladislav/payment-relay/internal/config"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
	gatewayHandler "github.com/Aduenko-Vladislav/payment-relay/internal/handlers/gateway"
	authMiddleware "github.com/Aduenko-Vladislav/payment-relay/internal/middleware"
	"github.com/Aduenko-Vladislav/payment-relay/internal/statestore"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/httputil"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/middleware"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/observability"
)

func main() {
	cfg, err := config.LoadGatewayFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting payment gateway service",
		zap.Int("port", cfg.Server.Port),
		zap.String("orchestrator_url", cfg.OrchestratorURL),
	)

	// State store backend: Redis when configured, in-memory otherwise
	healthChecker := observability.NewHealthChecker()
	stateStore, redisClient := initStateStore(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
		healthChecker.Register("redis", redisPinger{redisClient})
	}

	// Outbound client towards the orchestrator
	forwardClient := httputil.NewClient(httputil.ForwardingClientConfig(), cfg.ForwardTimeout)
	forwarder := orchestratorclient.NewClient(cfg.OrchestratorURL, forwardClient, logger,
		orchestratorclient.WithRetries(cfg.ForwardRetries),
	)

	paymentHandler := gatewayHandler.NewPaymentHandler(forwarder, logger, cfg.PublicBaseURL)
	callbackHandler := gatewayHandler.NewCallbackHandler(stateStore, logger)
	statusHandler := gatewayHandler.NewStatusHandler(stateStore, logger)

	callbackAuth := authMiddleware.NewSignatureAuth(cfg.CallbackSecret, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /merchant/payments",
		observability.MetricsMiddleware("gateway", "/merchant/payments", paymentHandler.HandlePayment))
	mux.HandleFunc("POST /merchant/refunds",
		observability.MetricsMiddleware("gateway", "/merchant/refunds", paymentHandler.HandleRefund))
	mux.HandleFunc("POST /merchant/callback",
		observability.MetricsMiddleware("gateway", "/merchant/callback", callbackAuth.Middleware(callbackHandler.HandleCallback)))
	mux.HandleFunc("GET /merchant/status/{merchantReference}",
		observability.MetricsMiddleware("gateway", "/merchant/status", statusHandler.HandleStatus))
	mux.HandleFunc("GET /health", healthChecker.HealthHandler())

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	defer rateLimiter.Shutdown()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      rateLimiter.Middleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)

	go func() {
		logger.Info("Gateway listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Gateway stopped")
}

// initStateStore selects the Redis-backed store when an address is
// configured, otherwise the in-process store.
func initStateStore(cfg *config.GatewayConfig, logger *zap.Logger) (ports.StateStore, *redis.Client) {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory state store")
		return statestore.NewMemoryStore(logger), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	return statestore.NewRedisStore(client, logger), client
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
