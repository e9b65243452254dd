package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/courierpay/payment-engine/internal/adapters/gateway"
	"github.com/courierpay/payment-engine/internal/adapters/postgres"
	"github.com/courierpay/payment-engine/internal/adapters/secrets"
	"github.com/courierpay/payment-engine/internal/config"
	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
	consolidationHandler "github.com/courierpay/payment-engine/internal/handlers/consolidation"
	webhookHandler "github.com/courierpay/payment-engine/internal/handlers/webhook"
	"github.com/courierpay/payment-engine/internal/middleware"
	consolidationService "github.com/courierpay/payment-engine/internal/services/consolidation"
	"github.com/courierpay/payment-engine/internal/services/reconciliation"
	"github.com/courierpay/payment-engine/internal/tasks"
	"github.com/courierpay/payment-engine/internal/worker"
	"github.com/courierpay/payment-engine/pkg/httpclient"
	"github.com/courierpay/payment-engine/pkg/logging"
	"github.com/courierpay/payment-engine/pkg/observability"
)

func main() {
	zapLogger := initLogger()
	defer func() { _ = zapLogger.Sync() }()
	logger := logging.NewZapLogger(zapLogger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		zapLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbPool, err := postgres.Connect(dbCtx, cfg.Database)
	dbCancel()
	if err != nil {
		zapLogger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	zapLogger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	if err := resolveGatewaySecrets(cfg, logger); err != nil {
		zapLogger.Fatal("failed to resolve gateway secrets", zap.Error(err))
	}

	db := postgres.NewDBExecutor(dbPool)
	paymentRepo := postgres.NewPaymentRepository(db)
	deliveryRepo := postgres.NewDeliveryRepository(db)
	accountRepo := postgres.NewAccountRepository(db)

	gatewayClient := httpclient.New(
		httpclient.GatewayClientConfig(),
		time.Duration(cfg.Gateway.Timeout)*time.Second,
	)
	invoiceGateway := gateway.NewHostedInvoiceAdapter(
		gateway.AuthConfig{
			APIKey:        cfg.Gateway.APIKey,
			WebhookSecret: cfg.Gateway.WebhookSecret,
		},
		cfg.Gateway.BaseURL,
		gatewayClient,
		logger,
	)

	tracker := tasks.NewTracker()

	consolidation := consolidationService.NewService(
		db, paymentRepo, deliveryRepo, accountRepo, invoiceGateway, tracker, logger,
		consolidationService.Config{
			Split: domain.SplitConfig{
				CourierBasisPoints: cfg.Consolidation.CourierBasisPoints,
				ManagerBasisPoints: cfg.Consolidation.ManagerBasisPoints,
			},
			Currency:               cfg.Consolidation.Currency,
			DefaultExpirationHours: cfg.Consolidation.InvoiceExpirationHours,
		},
	)

	reconciler := reconciliation.NewService(paymentRepo, invoiceGateway, logger)
	if !cfg.Gateway.RequireWebhookSignature {
		reconciler.AllowUnsignedEvents()
	}

	runner := worker.NewRunner(cfg.Consolidation.MaxConcurrentBatchRuns, logger,
		func(taskID, message string) {
			_ = tracker.MarkFailed(taskID, message, nil)
		})

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	defer rateLimiter.Shutdown()
	batchAuth := middleware.NewBatchAuth(cfg.Server.BatchSecret, logger)
	secHeaders := middleware.NewSecurityHeaders(cfg.Logger.Development)

	consolidationH := consolidationHandler.NewHandler(consolidation, tracker, runner, logger)
	webhookH := webhookHandler.NewHandler(reconciler, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/consolidated-payments/process-all",
		secHeaders.MiddlewareFunc(rateLimiter.HTTPHandlerFunc(batchAuth.Middleware(consolidationH.ProcessAll))))
	mux.HandleFunc("/consolidated-payments/status/",
		secHeaders.MiddlewareFunc(rateLimiter.HTTPHandlerFunc(consolidationH.Status)))
	mux.HandleFunc("/webhooks/order",
		secHeaders.MiddlewareFunc(rateLimiter.HTTPHandlerFunc(webhookH.HandleOrderEvent)))

	healthChecker := observability.NewHealthChecker(dbPool)
	metricsServer := observability.StartMetricsServer(
		fmt.Sprintf("%d", cfg.Server.MetricsPort),
		healthChecker,
		func(err error) {
			zapLogger.Error("metrics server error", zap.Error(err))
		},
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zapLogger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("batch runner did not drain in time", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		zapLogger.Error("metrics server shutdown failed", zap.Error(err))
	}

	zapLogger.Info("shutdown complete")
}

func initLogger() *zap.Logger {
	env := os.Getenv("ENVIRONMENT")

	if env == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}

	logger, _ := zap.NewDevelopment()
	return logger
}

// resolveGatewaySecrets replaces inline gateway credentials with values from
// the configured secret manager backend, when paths are set.
func resolveGatewaySecrets(cfg *config.Config, logger ports.Logger) error {
	if cfg.Gateway.APIKeySecretPath == "" && cfg.Gateway.WebhookSecretPath == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var manager ports.SecretManager
	switch cfg.Secrets.Backend {
	case "aws":
		var err error
		manager, err = secrets.NewAWSSecretsManagerAdapter(ctx,
			secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion), logger)
		if err != nil {
			return fmt.Errorf("init AWS secrets manager: %w", err)
		}
	case "local":
		manager = secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger)
	default:
		return fmt.Errorf("secret paths configured but SECRETS_BACKEND is %q", cfg.Secrets.Backend)
	}

	if cfg.Gateway.APIKeySecretPath != "" {
		secret, err := manager.GetSecret(ctx, cfg.Gateway.APIKeySecretPath)
		if err != nil {
			return fmt.Errorf("resolve gateway API key: %w", err)
		}
		cfg.Gateway.APIKey = secret.Value
	}
	if cfg.Gateway.WebhookSecretPath != "" {
		secret, err := manager.GetSecret(ctx, cfg.Gateway.WebhookSecretPath)
		if err != nil {
			return fmt.Errorf("resolve webhook secret: %w", err)
		}
		cfg.Gateway.WebhookSecret = secret.Value
	}

	return nil
}
