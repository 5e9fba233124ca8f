package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pitchbook/internal/adapters/ai"
	"pitchbook/internal/adapters/config"
	"pitchbook/internal/adapters/errors/noop"
	"pitchbook/internal/adapters/errors/sentry"
	"pitchbook/internal/adapters/kafka"
	"pitchbook/internal/adapters/postgres"
	"pitchbook/internal/adapters/redis"
	"pitchbook/internal/api"
	"pitchbook/internal/api/health"
	"pitchbook/internal/events"
	"pitchbook/internal/pitchbook"
	"pitchbook/internal/ratelimit"
	postgresrepo "pitchbook/internal/repository/postgres"
	redisrepo "pitchbook/internal/repository/redis"
	"pitchbook/internal/tools"
	"pitchbook/internal/tools/docsearch"
	"pitchbook/internal/tools/middleware"
	"pitchbook/internal/tools/news"
	"pitchbook/internal/tools/stocks"
	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pgClient.Close()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	publisher, producer := initPublisher(cfg, log)
	if producer != nil {
		defer producer.Close()
	}

	aiClient, err := ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	if err != nil {
		log.Fatalf("Failed to create OpenAI client: %v", err)
	}

	docIndex := initDocumentIndex(cfg, aiClient, log)

	registry := buildToolRegistry(cfg, docIndex)

	limiter := ratelimit.New(ratelimit.Config{
		MinDelay: cfg.RateLimit.MinDelay,
		Cooldowns: map[ratelimit.CallerClass]time.Duration{
			ratelimit.ClassDocSearch: cfg.RateLimit.DocSearchCooldown,
			ratelimit.ClassDataTool:  cfg.RateLimit.DataToolCooldown,
			ratelimit.ClassScrape:    cfg.RateLimit.ScrapeCooldown,
		},
	})

	service := pitchbook.NewService(pitchbook.Deps{
		Config:           cfg,
		Client:           aiClient,
		Registry:         registry,
		Limiter:          limiter,
		Workflows:        postgresrepo.NewWorkflowRepository(pgClient.DB()),
		Sessions:         redisrepo.NewSessionRepository(redisClient, cfg.Orchestration.SessionTTL),
		Publisher:        publisher,
		DocumentsIndexed: docIndex != nil,
	})

	healthHandler := health.New(log, map[string]health.Checker{
		"postgres": pgClient,
		"redis":    redisClient,
	}, cfg.App.Name, cfg.App.Version)

	server := api.NewServer(api.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, service, healthHandler)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Info("System initialized successfully")

	waitForShutdown(cfg, server, service, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initPublisher wires the optional Kafka event mirror. With no brokers
// configured, run events are only served to HTTP stream subscribers.
func initPublisher(cfg *config.Config, log *logger.Logger) (*events.Publisher, *kafka.Producer) {
	if !cfg.Kafka.Enabled() {
		log.Info("Kafka publishing disabled")
		return nil, nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	log.Infof("Kafka publishing enabled (brokers: %v)", cfg.Kafka.Brokers)
	return events.NewPublisher(producer), producer
}

// initDocumentIndex builds the vector store over configured filings. Startup
// proceeds without document search when no paths are configured or indexing
// fails.
func initDocumentIndex(cfg *config.Config, client *ai.OpenAIClient, log *logger.Logger) *ai.DocumentIndex {
	if len(cfg.Documents.Paths) == 0 {
		log.Info("No documents configured, document search disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Documents.PollTimeout)
	defer cancel()

	index, err := ai.NewDocumentIndex(ctx, client, cfg.Documents.Paths, ai.DocumentIndexConfig{
		Name:         cfg.Documents.VectorStoreName,
		PollInterval: cfg.Documents.PollInterval,
		PollTimeout:  cfg.Documents.PollTimeout,
	})
	if err != nil {
		log.Errorf("Document indexing failed, continuing without document search: %v", err)
		return nil
	}

	log.Infof("Document index ready (%d files)", len(cfg.Documents.Paths))
	return index
}

// buildToolRegistry registers the participant tools. Network tools get a
// per-call timeout plus one retry so a flaky upstream does not burn a whole
// round.
func buildToolRegistry(cfg *config.Config, docIndex *ai.DocumentIndex) *tools.Registry {
	registry := tools.NewRegistry()

	guard := func(t tools.Tool, timeout time.Duration) tools.Tool {
		t = middleware.TimeoutMiddleware{Timeout: timeout}.Wrap(t)
		return middleware.RetryMiddleware{Attempts: 2, Backoff: 2 * time.Second}.Wrap(t)
	}

	scraper := news.NewScraper(news.Config{
		BaseURL:           cfg.News.BaseURL,
		MaxArticles:       cfg.News.MaxArticles,
		Timeout:           cfg.News.Timeout,
		RequestsPerMinute: cfg.News.ReqPerMinute,
	})
	registry.Register(guard(news.NewTool(scraper), cfg.News.Timeout+5*time.Second))

	quotes := stocks.NewClient(stocks.Config{
		BaseURL:           cfg.Stocks.BaseURL,
		APIKey:            cfg.Stocks.APIKey,
		Timeout:           cfg.Stocks.Timeout,
		RequestsPerMinute: cfg.Stocks.ReqPerMinute,
	})
	registry.Register(guard(stocks.NewTool(quotes), cfg.Stocks.Timeout+5*time.Second))

	if docIndex != nil {
		registry.Register(docsearch.NewTool(docIndex))
	}

	return registry
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(cfg *config.Config, server *api.Server, service *pitchbook.Service, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("HTTP server shutdown: %v", err)
	}

	service.Shutdown()

	if errorTracker != nil {
		if err := errorTracker.Flush(ctx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
