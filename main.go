package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"leboncoin-scraper/api"
	"leboncoin-scraper/config"
	"leboncoin-scraper/scraper/leboncoin"
	"leboncoin-scraper/services"
	"leboncoin-scraper/services/captcha"
	"leboncoin-scraper/services/events"
	"leboncoin-scraper/services/imagestore"
	"leboncoin-scraper/services/proxy"
	"leboncoin-scraper/storage"
	"leboncoin-scraper/utils"
)

func main() {
	cfg := config.Load()
	logger, closeLogs := newLogger(cfg)
	defer closeLogs()

	logger.Info("=== Leboncoin Scraping Service starting ===")
	logger.Info("Config: pages %d | cap %d | retries %d | payload timeout %s | headless %t",
		cfg.MaxPages, cfg.ExtractionCap, cfg.MaxRetries, cfg.PayloadTimeout, cfg.Headless)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fingerprints, err := config.LoadFingerprints()
	if err != nil {
		logger.Error("Failed to load fingerprint pools: %v", err)
		os.Exit(1)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open listing store: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		os.Exit(1)
	}
	defer store.Close()

	deps := leboncoin.Deps{
		Store: store,
		Solver: captcha.NewSolver(logger,
			captcha.NewCapSolver(cfg.CapSolverAPIKey),
			captcha.NewTwoCaptcha(cfg.TwoCaptchaKey),
		),
	}

	if cfg.ProxyEnabled() {
		deps.Proxies = proxy.NewRotator(proxy.Config{
			Host:     cfg.ProxyHost,
			Port:     cfg.ProxyPort,
			Username: cfg.ProxyUsername,
			Password: cfg.ProxyPassword,
			Country:  cfg.ProxyCountry,
			Lifetime: cfg.ProxyLifetime,
		})
		logger.Info("Residential proxy enabled (%s:%s, country %s)", cfg.ProxyHost, cfg.ProxyPort, cfg.ProxyCountry)
	}

	if cfg.ImageStoreEnabled() {
		images, err := newImageStore(cfg, logger)
		if err != nil {
			logger.Error("Failed to set up image storage: %v", err)
			os.Exit(1)
		}
		deps.Images = images
		logger.Info("Image re-hosting enabled (bucket %s)", cfg.S3Bucket)
	} else {
		deps.Images = imagestore.Passthrough{}
		logger.Warn("AWS_S3_* not set, images keep their source URLs")
	}

	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		deps.Exporter = csvWriter
		logger.Info("Saved listings are appended to %s", cfg.CSVOutputPath)
	}

	if cfg.RabbitMQURL != "" {
		publisher, err := events.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			logger.Error("Failed to connect to RabbitMQ: %v", err)
			os.Exit(1)
		}
		defer publisher.Close()
		deps.Events = publisher
		logger.Info("Listing events are published to exchange %s", cfg.RabbitMQExchange)
	}

	scraper := leboncoin.New(cfg, fingerprints, deps, logger)
	runner := services.NewRunner(ctx, scraper, services.NewInsightService(logger), logger)
	server := api.NewServer(cfg.HTTPPort, api.NewScrapeHandlers(runner, logger), logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("%v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown: %v", err)
	}
	stop()
	runner.Wait()
	logger.Info("=== Leboncoin Scraping Service stopped ===")
}

// newLogger builds the console logger and, when enabled, the fluent sink.
func newLogger(cfg *config.Config) (*utils.Logger, func()) {
	opts := utils.LoggerOptions{Level: cfg.LogLevel, JSON: cfg.LogJSON}
	closeFn := func() {}

	if cfg.FluentEnabled {
		handler, client, err := utils.NewFluentHandler(utils.FluentConfig{
			Host:      cfg.FluentHost,
			Port:      cfg.FluentPort,
			TagPrefix: cfg.FluentTagPrefix,
			Level:     cfg.LogLevel,
		})
		if err != nil {
			utils.NewLogger().Warn("Fluent logging disabled: %v", err)
		} else {
			opts.Extra = append(opts.Extra, handler)
			closeFn = func() { _ = client.Close() }
		}
	}
	return utils.NewLoggerWithOptions(opts), closeFn
}

func newStore(ctx context.Context, cfg *config.Config) (storage.ListingStore, error) {
	if cfg.StorageDriver == "memory" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewPostgresStore(ctx, cfg.DSN())
}

func newImageStore(cfg *config.Config, logger *utils.Logger) (*imagestore.Store, error) {
	fetcher, err := imagestore.NewCollyFetcher(30*time.Second, "")
	if err != nil {
		return nil, err
	}
	uploader, err := imagestore.NewS3Uploader(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
	if err != nil {
		return nil, err
	}
	publicURL := cfg.S3Endpoint
	if !strings.Contains(publicURL, "://") {
		publicURL = "https://" + publicURL
	}
	retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: time.Second, Logger: logger}
	return imagestore.NewStore(fetcher, uploader, publicURL, cfg.S3Bucket, retry, logger), nil
}
