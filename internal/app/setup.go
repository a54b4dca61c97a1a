package app

import (
	"context"
	"fmt"

	"github.com/arbscan/spread-scanner/internal/aggregator"
	"github.com/arbscan/spread-scanner/internal/catalog"
	"github.com/arbscan/spread-scanner/internal/consumer"
	"github.com/arbscan/spread-scanner/internal/detector"
	"github.com/arbscan/spread-scanner/internal/feed"
	"github.com/arbscan/spread-scanner/internal/persistence"
	"github.com/arbscan/spread-scanner/internal/store"
	"github.com/arbscan/spread-scanner/internal/subscription"
	"github.com/arbscan/spread-scanner/pkg/cache"
	"github.com/arbscan/spread-scanner/pkg/config"
	"github.com/arbscan/spread-scanner/pkg/healthprobe"
	"github.com/arbscan/spread-scanner/pkg/httpserver"
	"go.uber.org/zap"
)

// New creates a new application instance, wiring C1-C9 in dependency order.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker()

	marketCache, err := setupCache(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	marketStore := store.New()

	catalogClient := catalog.NewClient(cfg.CatalogURL, logger)
	catalogFetcher := setupCatalogFetcher(cfg, logger, catalogClient, marketCache)

	feedManager := setupFeedManager(cfg, logger, marketStore)

	spreadDetector := detector.New(detector.Config{
		MaxCombined: cfg.ArbMaxCombined,
		MinArbTicks: cfg.MinArbTicks,
		EventBuffer: cfg.WSMessageBufferSize,
		Logger:      logger,
	}, marketStore, feedManager.PriceMessages())

	backend, err := setupBackend(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup persistence backend: %w", err)
	}
	persistenceWriter := persistence.New(backend, cfg.WriterQueueSize, logger)

	windowConsumer := consumer.New(spreadDetector.Events(), persistenceWriter, logger)

	subController := subscription.New(subscription.Config{
		Store:             marketStore,
		Feed:              feedManager,
		Detector:          spreadDetector,
		MarketWriter:      persistenceWriter,
		DesiredSetCh:      catalogFetcher.DesiredSetChan(),
		ReconcileInterval: cfg.ReconcileInterval,
		MaxSubscriptions:  cfg.MaxSubscriptions,
		RemoveGraceTicks:  cfg.RemoveGraceTicks,
		Logger:            logger,
	})

	var pinnedWatcher *subscription.PinnedWatcher
	if len(cfg.PinnedPrefixes) > 0 {
		pinnedWatcher = subscription.NewPinnedWatcher(subscription.PinnedConfig{
			Client:       catalogClient,
			Store:        marketStore,
			Feed:         feedManager,
			Detector:     spreadDetector,
			MarketWriter: persistenceWriter,
			Prefixes:     cfg.PinnedPrefixes,
			PollInterval: cfg.PinnedPollInterval,
			PreSubscribe: cfg.PinnedPreSubscribe,
			GracePeriod:  cfg.PinnedGracePeriod,
			Logger:       logger,
		})
	}

	agg := aggregator.New(aggregator.Config{
		Reader:   readerFromBackend(backend),
		Writer:   persistenceWriter,
		Detector: spreadDetector,
		Interval: cfg.AggregatorInterval,
		Window:   cfg.AggregatorWindow,
		Logger:   logger,
	})

	httpServer := setupHTTPServer(cfg, logger, healthChecker, backend, spreadDetector, windowConsumer)

	return &App{
		cfg:               cfg,
		logger:            logger,
		healthChecker:     healthChecker,
		httpServer:        httpServer,
		marketCache:       marketCache,
		store:             marketStore,
		catalogClient:     catalogClient,
		catalogFetcher:    catalogFetcher,
		feedManager:       feedManager,
		spreadDetector:    spreadDetector,
		windowConsumer:    windowConsumer,
		persistenceWriter: persistenceWriter,
		backend:           backend,
		subController:     subController,
		pinnedWatcher:     pinnedWatcher,
		aggregator:        agg,
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupCache(cfg *config.Config, logger *zap.Logger) (cache.MarketCache, error) {
	backing, err := cache.NewRistrettoCache(cache.DefaultMarketCacheConfig(cfg.MaxSubscriptions, logger))
	if err != nil {
		return nil, err
	}
	return cache.NewMarketCache(backing), nil
}

func setupCatalogFetcher(cfg *config.Config, logger *zap.Logger, client *catalog.Client, marketCache cache.MarketCache) *catalog.Fetcher {
	return catalog.New(&catalog.Config{
		Client:       client,
		Cache:        marketCache,
		Logger:       logger,
		PollInterval: cfg.CatalogPollInterval,
		PageLimit:    cfg.CatalogLimit,
		MinVolume24h: cfg.MinVolume24h,
		MinLiquidity: cfg.MinLiquidity,
		MinExpiry:    cfg.MinMarketDuration,
		MaxExpiry:    cfg.MaxMarketDuration,
	})
}

func setupFeedManager(cfg *config.Config, logger *zap.Logger, st *store.Store) *feed.Manager {
	return feed.New(feed.Config{
		URL:                   cfg.FeedWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		ChunkSize:             cfg.SubscribeChunkSize,
		Logger:                logger,
	}, st)
}

func setupBackend(cfg *config.Config, logger *zap.Logger) (persistence.Backend, error) {
	if cfg.StorageMode == "postgres" {
		return persistence.NewPostgresBackend(&persistence.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
	}
	return persistence.NewConsoleBackend(logger), nil
}

// readerFromBackend returns the backend's Reader surface when it has one
// (PostgresBackend does; ConsoleBackend has nothing to read back).
func readerFromBackend(backend persistence.Backend) persistence.Reader {
	if r, ok := backend.(persistence.Reader); ok {
		return r
	}
	return nil
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	backend persistence.Backend,
	det *detector.Detector,
	cons *consumer.Consumer,
) *httpserver.Server {
	var reader httpserver.Reader
	if r, ok := backend.(httpserver.Reader); ok {
		reader = r
	}

	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Reader:        reader,
		Latency:       det,
		Events:        cons,
	})
}
