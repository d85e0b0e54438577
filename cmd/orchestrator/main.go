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

	"github.com/Aduenko-Vladislav/payment-relay/internal/adapters/braintree"
	"github.com/Aduenko-Vladislav/payment-relay/internal/config"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
	orchestratorHandler "github.com/Aduenko-Vladislav/payment-relay/internal/handlers/orchestrator"
	"github.com/Aduenko-Vladislav/payment-relay/internal/idempotency"
	"github.com/Aduenko-Vladislav/payment-relay/internal/services/processor"
	"github.com/Aduenko-Vladislav/payment-relay/internal/services/webhook"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/httputil"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/observability"
)

func main() {
	cfg, err := config.LoadOrchestratorFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting payment orchestrator service",
		zap.Int("port", cfg.Server.Port),
		zap.Duration("idempotency_ttl", cfg.IdempotencyTTL),
	)

	healthChecker := observability.NewHealthChecker()
	cache, redisClient := initIdempotencyCache(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
		healthChecker.Register("redis", redisPinger{redisClient})
	}

	gateway := braintree.NewSandboxGateway(logger)

	webhookClient := httputil.NewClient(httputil.WebhookClientConfig(), cfg.WebhookTimeout)
	dispatcher := webhook.NewDispatcher(webhookClient, cfg.CallbackSecret, logger,
		webhook.WithMaxAttempts(cfg.WebhookAttempts),
	)

	proc := processor.NewProcessor(cache, gateway, dispatcher, logger,
		cfg.GatewayTimeout, cfg.IdempotencyTTL)

	handler := orchestratorHandler.NewProcessHandler(proc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orchestrator/sale",
		observability.MetricsMiddleware("orchestrator", "/orchestrator/sale", handler.HandleSale))
	mux.HandleFunc("POST /orchestrator/refund",
		observability.MetricsMiddleware("orchestrator", "/orchestrator/refund", handler.HandleRefund))
	mux.HandleFunc("GET /health", healthChecker.HealthHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)

	go func() {
		logger.Info("Orchestrator listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down orchestrator")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}

	// Let in-flight webhook deliveries finish before exiting
	if !dispatcher.Drain(20 * time.Second) {
		logger.Warn("Webhook deliveries still in flight at shutdown")
	}

	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Orchestrator stopped")
}

// initIdempotencyCache selects the Redis-backed cache when an address is
// configured, otherwise the in-process cache.
func initIdempotencyCache(cfg *config.OrchestratorConfig, logger *zap.Logger) (ports.IdempotencyCache, *redis.Client) {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory idempotency cache")
		return idempotency.NewMemoryCache(logger), nil
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
	return idempotency.NewRedisCache(client, logger), client
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
