package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops every component in the dependency order described by §5:
// stop the Fetcher, signal the Feed Connector to close its stream, drain
// the Detector, flush the Writer, then exit.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal every component's run loop.
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.shutdownHTTPServer(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Catalog Fetcher has no direct Close: its Run loop exits on ctx
	// cancellation above.

	if err := a.shutdownSubscriptionController(); err != nil {
		a.logger.Error("subscription-controller-close-error", zap.Error(err))
	}

	if err := a.shutdownPinnedWatcher(); err != nil {
		a.logger.Error("pinned-watcher-close-error", zap.Error(err))
	}

	if err := a.shutdownFeedManager(); err != nil {
		a.logger.Error("feed-manager-close-error", zap.Error(err))
	}

	if err := a.shutdownDetector(); err != nil {
		a.logger.Error("detector-close-error", zap.Error(err))
	}

	if err := a.shutdownConsumer(); err != nil {
		a.logger.Error("consumer-close-error", zap.Error(err))
	}

	if err := a.shutdownAggregator(); err != nil {
		a.logger.Error("aggregator-close-error", zap.Error(err))
	}

	// Persistence Writer flushes and closes the backend last: it is the
	// final sink of every causally-ordered Open/Close event.
	if err := a.shutdownPersistenceWriter(); err != nil {
		a.logger.Error("persistence-writer-close-error", zap.Error(err))
	}

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *App) shutdownSubscriptionController() error {
	return a.subController.Close()
}

func (a *App) shutdownPinnedWatcher() error {
	if a.pinnedWatcher == nil {
		return nil
	}
	return a.pinnedWatcher.Close()
}

func (a *App) shutdownFeedManager() error {
	return a.feedManager.Close()
}

func (a *App) shutdownDetector() error {
	return a.spreadDetector.Close()
}

func (a *App) shutdownConsumer() error {
	return a.windowConsumer.Close()
}

func (a *App) shutdownAggregator() error {
	return a.aggregator.Close()
}

func (a *App) shutdownPersistenceWriter() error {
	return a.persistenceWriter.Close()
}
