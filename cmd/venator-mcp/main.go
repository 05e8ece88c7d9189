package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/services/browser"
	"github.com/ternarybob/venator/internal/services/cache"
	"github.com/ternarybob/venator/internal/services/changes"
	"github.com/ternarybob/venator/internal/services/crawler"
	"github.com/ternarybob/venator/internal/services/extractor"
	"github.com/ternarybob/venator/internal/services/fetcher"
	"github.com/ternarybob/venator/internal/services/jobs"
	"github.com/ternarybob/venator/internal/services/metrics"
	"github.com/ternarybob/venator/internal/services/ratelimit"
	"github.com/ternarybob/venator/internal/services/research"
	"github.com/ternarybob/venator/internal/services/robots"
	"github.com/ternarybob/venator/internal/services/search"
	"github.com/ternarybob/venator/internal/services/snapshots"
	"github.com/ternarybob/venator/internal/services/tools"
	"github.com/ternarybob/venator/internal/services/urlguard"
	"github.com/ternarybob/venator/internal/services/webhooks"
	"github.com/ternarybob/venator/internal/services/workerpool"
	"github.com/ternarybob/venator/internal/storage/badger"
)

func main() {
	// Load configuration
	configPath := os.Getenv("VENATOR_CONFIG")
	if configPath == "" {
		configPath = "venator.toml"
	}
	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logger for MCP use (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       config.Logging.TimeFormat,
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	m := metrics.New()
	var health *metrics.HealthServer
	if config.Metrics.Enabled {
		health = metrics.NewHealthServer(config.Metrics, m, logger)
		health.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			health.Stop(ctx)
		}()
	}

	// Storage
	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Fetch pipeline: SSRF guard, per-host rate limiting, retries, caching
	guard := urlguard.New(config.SSRF, logger)
	limiter := ratelimit.New(config.RateLimit, logger)
	fetchService := fetcher.NewService(config.Fetch, guard, limiter, m, logger)
	robotsCache := robots.NewCache(fetchService, config.Robots, logger)

	cacheService, err := cache.NewService(config.Cache, config.CacheL2Path(), m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize cache")
	}
	defer cacheService.Close()

	// Execution
	pool := workerpool.New(config.Workers, logger)
	defer pool.Close()

	jobManager, err := jobs.NewManager(config, storageManager.JobStorage(), m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize job manager")
	}
	defer jobManager.Close()

	// Content services
	extractService := extractor.NewService(logger)
	crawlService := crawler.NewService(config, fetchService, guard, robotsCache, limiter, logger)
	provider := search.NewProvider(logger)
	researchService := research.NewOrchestrator(config.Research, fetchService, extractService, provider, nil, nil, logger)

	// Change tracking: snapshots, significance, webhooks
	snapshotStore, err := snapshots.NewStore(config.Storage.Root, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize snapshot store")
	}
	defer snapshotStore.Close()

	webhookDispatcher, err := webhooks.NewDispatcher(config, storageManager.WebhookStorage(), m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize webhook dispatcher")
	}
	defer webhookDispatcher.Close()

	tracker := changes.NewTracker(config.Changes, fetchService, snapshotStore, storageManager.ChangeStorage(), webhookDispatcher, m, logger)
	defer tracker.Close()

	browserSession := browser.NewSession(logger)
	defer browserSession.Close()

	// Tool dispatcher
	dispatcher := tools.NewDispatcher(tools.NewLedger(config.Credits), pool, m, logger)

	a := &app{
		config:    config,
		logger:    logger,
		guard:     guard,
		fetch:     fetchService,
		cache:     cacheService,
		jobs:      jobManager,
		crawler:   crawlService,
		tracker:   tracker,
		research:  researchService,
		extractor: extractService,
		browser:   browserSession,
		provider:  provider,
		tools:     dispatcher,
	}
	registerJobHandlers(a)
	if _, err := jobManager.Recover(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Queued job recovery failed")
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"venator",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)
	registerTools(a, mcpServer)

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
