// Package app wires the nine pipeline components (C1-C9) together and
// owns their startup/shutdown order.
package app

import (
	"context"
	"sync"

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

// App is the main application orchestrator: it owns every component of
// the detection pipeline (§2, §4) and their shared health/HTTP surface.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	marketCache cache.MarketCache
	store       *store.Store

	catalogClient  *catalog.Client
	catalogFetcher *catalog.Fetcher

	feedManager *feed.Manager

	spreadDetector *detector.Detector

	windowConsumer    *consumer.Consumer
	persistenceWriter *persistence.Writer
	backend           persistence.Backend

	subController *subscription.Controller
	pinnedWatcher *subscription.PinnedWatcher

	aggregator *aggregator.Aggregator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct{}
