package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reelforge/internal/api"
	"reelforge/internal/billing"
	"reelforge/internal/config"
	"reelforge/internal/database"
	"reelforge/internal/ledger"
	"reelforge/internal/logger"
	"reelforge/internal/messaging"
	"reelforge/internal/migration"
	"reelforge/internal/pipeline"
	"reelforge/internal/queue"
	"reelforge/internal/repository"
	"reelforge/migrations"
)

func main() {
	// --- 1. Config and logger ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg.Logger.Service = "api"
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.Logger.Level), zap.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 2. Infrastructure ---
	pool, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := migration.NewMigrator(migration.Config{MigrationsFS: migrations.FS}, pool, log).Up(); err != nil {
		zap.L().Fatal("Failed to apply migrations", zap.Error(err))
	}

	redisClient, err := setupRedis(ctx, cfg.Redis)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	mq, err := messaging.Dial(ctx, cfg.RabbitMQ.URL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mq.Close()

	// --- 3. Services ---
	credits := ledger.NewService(ledger.NewPostgresStore(pool, log), log)
	jobs := queue.NewService(queue.NewPostgresStore(pool, log), log, queue.Options{
		DefaultPolicy: queue.Policy{MaxAttempts: cfg.Queue.MaxAttempts, BackoffBase: cfg.Queue.BackoffBase},
		Notifier:      queue.NewRedisNotifier(redisClient, cfg.Redis.WakeupChannel, log),
	})
	statusPublisher := messaging.NewStatusPublisher(mq, cfg.RabbitMQ.StatusExchange, log)
	defer statusPublisher.Close()

	orch := pipeline.New(pipeline.Deps{
		Ledger:   credits,
		Queue:    jobs,
		Scripts:  repository.NewPgScriptRepository(pool, log),
		Videos:   repository.NewPgVideoRepository(pool, log),
		Accounts: repository.NewPgPlatformAccountRepository(pool, log),
		Events:   statusPublisher,
		Pricing:  pipeline.PricingFrom(cfg.Pricing),
		Logger:   log,
	})
	payments := billing.NewPaymentHandler(credits, repository.NewPgSubscriptionRepository(pool, log), log)

	verifier, err := api.NewTokenVerifier(cfg.Auth.JWTSecret, log)
	if err != nil {
		zap.L().Fatal("Failed to create token verifier", zap.Error(err))
	}
	if cfg.Auth.WebhookSecret == "" {
		zap.L().Warn("PAYMENT_WEBHOOK_SECRET not set, payment webhook will reject every request")
	}

	// --- 4. HTTP ---
	handler := api.NewHandler(orch, credits, payments, verifier, cfg.Auth.WebhookSecret, log)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.GetAllowedOrigins(),
		Debug:          cfg.AppEnv == "development",
		Metrics:        true,
	}, log)
	if cfg.Storage.Backend == "local" {
		router.Static("/assets", cfg.Storage.LocalPath)
	}

	go func() {
		if err := mq.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("RabbitMQ connection supervisor stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zap.L().Info("Starting HTTP server", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- 5. Shutdown ---
	<-ctx.Done()
	zap.L().Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("Server exiting")
}

func setupRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
