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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reelforge/internal/adapters"
	"reelforge/internal/adapters/composer"
	"reelforge/internal/adapters/ollama"
	"reelforge/internal/adapters/openai"
	"reelforge/internal/adapters/storage"
	"reelforge/internal/adapters/youtube"
	"reelforge/internal/billing"
	"reelforge/internal/config"
	"reelforge/internal/database"
	"reelforge/internal/ledger"
	"reelforge/internal/logger"
	"reelforge/internal/messaging"
	"reelforge/internal/metrics"
	"reelforge/internal/pipeline"
	"reelforge/internal/queue"
	"reelforge/internal/repository"
	"reelforge/internal/stage"
)

const metricsJob = "reelforge_worker"

func main() {
	// --- 1. Config and logger ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg.Logger.Service = "worker"
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	mq, err := messaging.Dial(ctx, cfg.RabbitMQ.URL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mq.Close()

	// --- 3. Adapters ---
	text, err := newTextGenerator(cfg.Adapters, log)
	if err != nil {
		zap.L().Fatal("Failed to create text generator", zap.Error(err))
	}
	aiClient := openai.NewClient(cfg.Adapters.OpenAIAPIKey, cfg.Adapters.OpenAIBaseURL)
	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		zap.L().Fatal("Failed to create object store", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}

	// --- 4. Pipeline ---
	scripts := repository.NewPgScriptRepository(pool, log)
	videos := repository.NewPgVideoRepository(pool, log)
	accounts := repository.NewPgPlatformAccountRepository(pool, log)
	credits := ledger.NewService(ledger.NewPostgresStore(pool, log), log)

	jobs := queue.NewService(queue.NewPostgresStore(pool, log), log, queue.Options{
		Concurrency:       cfg.Queue.Concurrency,
		PollInterval:      cfg.Queue.PollInterval,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		ReapInterval:      cfg.Queue.ReapInterval,
		DefaultPolicy:     queue.Policy{MaxAttempts: cfg.Queue.MaxAttempts, BackoffBase: cfg.Queue.BackoffBase},
		Classifier:        stage.IsRetryable,
		Notifier:          queue.NewRedisNotifier(redisClient, cfg.Redis.WakeupChannel, log),
	})
	for _, w := range stage.Workers(stage.Deps{
		Scripts:   scripts,
		Videos:    videos,
		Accounts:  accounts,
		Text:      text,
		Speech:    openai.NewSpeechSynthesizer(aiClient, cfg.Adapters.SpeechModel, log),
		Images:    openai.NewImageGenerator(aiClient, cfg.Adapters.ImageModel, log),
		Composer:  composer.New(cfg.Adapters.FFmpegPath, cfg.Adapters.FFprobePath, cfg.Adapters.WorkDir, log),
		Store:     store,
		Platform:  youtube.New(cfg.YouTube, log),
		TextModel: cfg.Adapters.TextModel,
		Timeouts:  stage.TimeoutsFrom(cfg.Adapters),
		Logger:    log,
	}) {
		jobs.RegisterWorker(w)
	}

	statusPublisher := messaging.NewStatusPublisher(mq, cfg.RabbitMQ.StatusExchange, log)
	defer statusPublisher.Close()

	orch := pipeline.New(pipeline.Deps{
		Ledger:   credits,
		Queue:    jobs,
		Scripts:  scripts,
		Videos:   videos,
		Accounts: accounts,
		Events:   statusPublisher,
		Pricing:  pipeline.PricingFrom(cfg.Pricing),
		Logger:   log,
	})
	orch.Register(jobs)

	payments := billing.NewPaymentHandler(credits, repository.NewPgSubscriptionRepository(pool, log), log)
	consumer := messaging.NewPaymentConsumer(mq, cfg.RabbitMQ.PaymentQueue, cfg.RabbitMQ.ConsumerName, payments, log)

	// --- 5. Run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mq.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return jobs.Run(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.MetricsPort) })
	if cfg.PushGatewayURL != "" {
		pusher := metrics.NewPusher(cfg.PushGatewayURL, metricsJob, prometheus.DefaultGatherer, metrics.DefaultPushInterval, log)
		g.Go(func() error { return pusher.Run(gctx) })
	} else {
		zap.L().Info("PUSHGATEWAY_URL not set, metrics push disabled")
	}

	zap.L().Info("Worker started", zap.Int("concurrency", cfg.Queue.Concurrency))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("Worker stopped with error", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Worker exiting")
}

func newTextGenerator(cfg config.AdapterConfig, log *zap.Logger) (adapters.TextGenerator, error) {
	switch cfg.TextProvider {
	case "ollama":
		return ollama.NewTextGenerator(cfg.OllamaURL, cfg.TextModel, &http.Client{Timeout: cfg.TextTimeout + 10*time.Second}, log)
	case "openai", "":
		return openai.NewTextGenerator(openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), cfg.TextModel, log), nil
	default:
		return nil, fmt.Errorf("unknown text provider %q", cfg.TextProvider)
	}
}

// serveMetrics exposes /metrics for scraping until ctx is done.
func serveMetrics(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("Serving worker metrics", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
