package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/config"
	"github.com/sentrix-systems/sentrix/internal/dispatch"
	"github.com/sentrix-systems/sentrix/internal/dlq"
	"github.com/sentrix-systems/sentrix/internal/enrichment"
	"github.com/sentrix-systems/sentrix/internal/handlers"
	"github.com/sentrix-systems/sentrix/internal/normalizer"
	"github.com/sentrix-systems/sentrix/internal/notification"
	"github.com/sentrix-systems/sentrix/internal/pipeline"
	"github.com/sentrix-systems/sentrix/internal/ratelimit"
	"github.com/sentrix-systems/sentrix/internal/repository"
	"github.com/sentrix-systems/sentrix/internal/scheduler"
	"github.com/sentrix-systems/sentrix/internal/server"
	"github.com/sentrix-systems/sentrix/internal/service"
	"github.com/sentrix-systems/sentrix/internal/signatures"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("sentrix"))
	logging.SetDefault(logger)

	logger.Info("Starting Sentrix",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format,
	)
	if *configPath != "" {
		logger.Info("Loaded configuration", "config_path", *configPath)
	}

	// Initialize repository
	var repo repository.Repository
	if cfg.Database.URL != "" {
		version, err := repository.RunMigrations(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Info("Database migrations applied", "version", version)

		pgRepo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		repo = pgRepo
		logger.Info("Using PostgreSQL repository")
	} else {
		repo = repository.NewInMemoryRepository()
		logger.Warn("No database configured, using in-memory repository; data will not survive restarts")
	}
	defer repo.Close()

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			logger.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting",
				logging.Error(err))
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			logger.Info("Rate limiting enabled",
				"requests", cfg.Ingestion.RateLimitRequests,
				"window", cfg.Ingestion.RateLimitWindow.String())
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		logger.Info("Rate limiting disabled in configuration")
	}
	defer rateLimiter.Close()

	// Initialize geolocation enrichment
	var geo enrichment.Provider
	if cfg.Enrichment.Enabled {
		geo = enrichment.NewHTTPProvider(enrichment.Config{
			BaseURL:  cfg.Enrichment.BaseURL,
			Timeout:  cfg.Enrichment.Timeout,
			CacheTTL: cfg.Enrichment.CacheTTL,
		})
		logger.Info("Geolocation enrichment enabled", "base_url", cfg.Enrichment.BaseURL)
	} else {
		geo = enrichment.NoopProvider{}
		logger.Info("Geolocation enrichment disabled")
	}

	// Load signature rules
	sigs, err := signatures.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load signature rules: %v", err)
	}
	engine := signatures.NewEngine(sigs)
	logger.Info("Signature engine initialized", "signatures", engine.Len())

	// Initialize notification channel
	var notifier notification.Channel
	if cfg.Notification.WebhookURL != "" {
		notifier = notification.NewWebhookChannel(cfg.Notification.WebhookURL, cfg.Notification.Timeout)
		logger.Info("Webhook notifications enabled")
	} else {
		notifier = notification.NoopChannel{}
		logger.Info("Notifications disabled, no webhook configured")
	}

	// Initialize Dead Letter Queue
	var deadLetter dlq.Writer
	maxAttempts := 0
	switch cfg.Pipeline.DLQ.Backend {
	case "jetstream":
		jsWriter, err := dlq.NewJetStreamWriter(context.Background(), cfg.Pipeline.DLQ.NATSURL)
		if err != nil {
			log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
		}
		deadLetter = jsWriter
		maxAttempts = cfg.Pipeline.DLQ.MaxAttempts
		logger.Info("Dead letter queue enabled", "backend", "jetstream", "nats_url", cfg.Pipeline.DLQ.NATSURL)
	case "file":
		fileWriter, err := dlq.NewFileWriter(cfg.Pipeline.DLQ.FilePath)
		if err != nil {
			log.Fatalf("Failed to initialize file DLQ: %v", err)
		}
		deadLetter = fileWriter
		maxAttempts = cfg.Pipeline.DLQ.MaxAttempts
		logger.Info("Dead letter queue enabled", "backend", "file", "path", cfg.Pipeline.DLQ.FilePath)
		logger.Warn("File-based DLQ does not support multiple instances")
	case "none", "":
		deadLetter = dlq.NoopWriter{}
		logger.Info("Dead letter queue disabled, failed events retry indefinitely")
	default:
		log.Fatalf("Unknown DLQ backend: %s (supported: jetstream, file, none)", cfg.Pipeline.DLQ.Backend)
	}
	defer deadLetter.Close()

	// Wire the pipeline
	sourceService := service.NewSourceService(repo)
	ingestService := service.NewIngestService(repo, cfg.Ingestion.MaxBatchSize)
	dispatcher := dispatch.New(repo, notifier, logger)
	runner := pipeline.NewRunner(repo, normalizer.New(), geo, engine, dispatcher, deadLetter, logger,
		pipeline.Config{
			BatchSize:   cfg.Pipeline.BatchSize,
			Workers:     cfg.Pipeline.Workers,
			MaxAttempts: maxAttempts,
		})

	// Start the scheduler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(runner, logger, scheduler.Config{Interval: cfg.Pipeline.Interval})
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Initialize HTTP handlers
	ingestHandler := handlers.NewIngestHandler(sourceService, ingestService, rateLimiter, logger)
	sourceHandler := handlers.NewSourceHandler(sourceService, cfg.Rotation.DefaultGrace, logger)
	queryHandler := handlers.NewQueryHandler(repo, logger)
	pipelineHandler := handlers.NewPipelineHandler(runner, logger)

	router := server.NewRouter(ingestHandler, sourceHandler, queryHandler, pipelineHandler)

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Sentrix listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancel()
	if err := sched.Stop(); err != nil {
		logger.Warn("Scheduler stop failed", logging.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
