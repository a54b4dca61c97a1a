package app

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts every component and blocks until a shutdown signal arrives.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.String("http-port", a.cfg.HTTPPort),
		zap.String("feed-ws-url", a.cfg.FeedWSURL))

	if err := a.startComponents(); err != nil {
		return err
	}

	a.healthChecker.SetReady(true)
	a.logger.Info("application-ready", zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give the HTTP server a moment to bind before the rest of the
	// pipeline starts reporting health.
	time.Sleep(100 * time.Millisecond)

	if err := a.feedManager.Start(); err != nil {
		return err
	}

	a.wg.Add(1)
	go a.runCatalogFetcher()

	if err := a.spreadDetector.Start(a.ctx); err != nil {
		return err
	}

	if err := a.windowConsumer.Start(a.ctx); err != nil {
		return err
	}

	if err := a.persistenceWriter.Start(a.ctx); err != nil {
		return err
	}

	if err := a.subController.Start(a.ctx); err != nil {
		return err
	}

	if a.pinnedWatcher != nil {
		if err := a.pinnedWatcher.Start(a.ctx); err != nil {
			return err
		}
	}

	if err := a.aggregator.Start(a.ctx); err != nil {
		return err
	}

	a.wg.Add(1)
	go a.runHealthReporter()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runCatalogFetcher() {
	defer a.wg.Done()
	if err := a.catalogFetcher.Run(a.ctx); err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("catalog-fetcher-error", zap.Error(err))
	}
}

// runHealthReporter periodically copies live pipeline state into the
// HealthChecker so /health reflects the scanner's actual condition (§6, §7):
// feed connectivity, subscription/hydration counts, write backlog, and
// detection-latency p99.
func (a *App) runHealthReporter() {
	defer a.wg.Done()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.healthChecker.SetFeedConnected(a.feedManager.Connected())
			a.healthChecker.SetSubscribed(a.store.Subscribed())
			a.healthChecker.SetHydrated(a.store.Hydrated())
			a.healthChecker.SetPendingWrites(int64(a.persistenceWriter.QueueLen()))
			_, _, p99 := a.spreadDetector.LatencySnapshot()
			a.healthChecker.SetP99LatencyUs(p99)
		}
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
