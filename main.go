package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/pricecrawler/config"
	"sjsage522/pricecrawler/helpers"
	"sjsage522/pricecrawler/internal"
	"sjsage522/pricecrawler/internal/crawler"
	"sjsage522/pricecrawler/logger"
	"sjsage522/pricecrawler/services/cache"
	"sjsage522/pricecrawler/services/publisher"
	"sjsage522/pricecrawler/services/storage"
	"sjsage522/pricecrawler/services/worker"
)

func main() {
	// Load environment variables
	envErr := config.LoadDotenv()

	// Initialize logger first
	logger.Init()
	log := logger.Default
	if envErr != nil {
		log.Debug().Err(envErr).Msg("Ignoring .env")
	}

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Int("max_page", cfg.MaxPage).
		Int("workers", cfg.Workers).
		Str("parser", cfg.Parser).
		Str("sink", cfg.Sink).
		Msg("Starting crawl")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	}()

	// Initialize services
	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	start := time.Now()
	job := buildCrawlJob(cfg, deps, helpers.NewLogger(cfg.ErrorLogFile))

	result, err := job.Crawl(ctx)
	deps.Cleanup()
	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", job.ID).
			Dur("elapsed", time.Since(start)).
			Msg("Crawl failed, nothing was written")
		os.Exit(1)
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("records", result.Records).
		Dur("total", time.Since(start)).
		Msg("Crawl finished")
}

// buildCrawlJob wires the page worker and the orchestrator from the configuration
func buildCrawlJob(cfg *config.Config, deps *internal.Dependencies, reporter helpers.LoggerInterface) *worker.CrawlJob {
	pages := crawler.NewPageWorker(cfg, deps.Cache, reporter)
	return worker.NewCrawlJob(pages, deps.Sink, deps.Publisher, reporter, cfg.MaxPage, cfg.Workers)
}

// initializeServices initializes the sink and the optional cache and publisher
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	deps := &internal.Dependencies{}

	// Memcache is an optimisation; the crawl runs without it
	if cfg.MemcacheAddr != "" {
		cacheService := cache.NewMemcacheService(cfg.MemcacheAddr, cfg.RequestTimeout)
		if err := cacheService.Ping(); err != nil {
			logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable, history cache disabled")
		} else {
			deps.Cache = cacheService
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(ctx); err != nil {
			logger.ForPublisher().Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, crawl events disabled")
			redisPublisher.Close()
		} else {
			deps.Publisher = redisPublisher
			logger.Info("Connected to Redis at %s", cfg.RedisAddr)
		}
	}

	sink, err := newSink(ctx, cfg)
	if err != nil {
		deps.Cleanup()
		return nil, err
	}
	deps.Sink = sink

	return deps, nil
}

// newSink prepares the configured persistence sink, creating the schema when needed
func newSink(ctx context.Context, cfg *config.Config) (storage.Sink, error) {
	if cfg.Sink == config.SinkCSV {
		return storage.NewCSVSink(cfg.CSVPath), nil
	}

	if err := storage.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	sink, err := storage.NewPostgresSink(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := sink.EnsureSchema(ctx); err != nil {
		sink.Close()
		return nil, err
	}
	return sink, nil
}
