package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"freelance/internal/app"
	"freelance/internal/config"
	"freelance/internal/handler"
	"freelance/internal/mpesa"
	"freelance/internal/observability"
	internalRedis "freelance/internal/redis"
	"freelance/internal/repository/postgres"
	"freelance/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	server := wireServer(db, redisClient, nrApp, cfg, logger)

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, logger *zap.Logger) *http.Server {
	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	jobRepo := postgres.NewJobRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)

	// M-Pesa client, with outbound calls traced when New Relic is enabled.
	httpClient := &http.Client{}
	if nrApp != nil {
		httpClient.Transport = newrelic.NewRoundTripper(http.DefaultTransport)
	}
	mpesaClient := mpesa.NewClient(cfg.Mpesa, cacheStore,
		mpesa.WithHTTPClient(httpClient),
		mpesa.WithLogger(logger.Named("mpesa")),
	)
	if err := mpesaClient.Validate(mpesa.OperationSTKPush); err != nil {
		logger.Warn("job payments will be recorded as CONFIG_INVALID", zap.Error(err))
	}
	if err := mpesaClient.Validate(mpesa.OperationB2C); err != nil {
		logger.Warn("payouts and refunds will be recorded as CONFIG_INVALID", zap.Error(err))
	}

	// Initialize services.
	notificationService := service.NewNotificationService(logger.Named("notification"))
	callbackService := service.NewCallbackService(db, paymentRepo, jobRepo, lockStore, cacheStore, notificationService, logger.Named("callback"))
	paymentService := service.NewPaymentService(paymentRepo, jobRepo, mpesaClient, callbackService, notificationService, cfg.Mpesa.FixedAmount, logger.Named("payment"))
	jobService := service.NewJobService(jobRepo)

	// Initialize handlers.
	jobHandler := handler.NewJobHandler(jobService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	callbackHandler := handler.NewCallbackHandler(callbackService)

	router := app.NewRouter(app.RouterDeps{
		JobHandler:      jobHandler,
		PaymentHandler:  paymentHandler,
		CallbackHandler: callbackHandler,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
		Logger:          logger,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
