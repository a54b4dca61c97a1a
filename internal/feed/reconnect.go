package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig holds the configuration for the Feed Connector's single
// durable stream (§4.3: start at 100ms, double to a ~30s cap, reset to
// 100ms on a successful open).
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%, split symmetrically around the backoff
}

// ReconnectManager drives exponential backoff with jitter for the one
// upstream book stream every watched market depends on. consecutiveFailures
// tracks how long that single stream has been down, independent of the
// backoff value itself, so a caller can alert on a stuck reconnect loop
// even while the backoff is pinned at its cap.
type ReconnectManager struct {
	config              ReconnectConfig
	logger              *zap.Logger
	currentBackoff      time.Duration
	consecutiveFailures int
	mu                  sync.Mutex
}

// NewReconnectManager creates a reconnect manager seeded at the feed's
// initial backoff delay.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	return &ReconnectManager{
		config:         cfg,
		logger:         logger,
		currentBackoff: cfg.InitialDelay,
	}
}

// Reconnect retries dialFunc with backoff until it succeeds or ctx is
// cancelled. Every watched market's book goes stale for the duration of
// this loop, so each attempt and each failure is counted (§4.3).
func (rm *ReconnectManager) Reconnect(ctx context.Context, dialFunc func(context.Context) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		backoff := rm.nextBackoff()

		rm.logger.Info("attempting-reconnection",
			zap.Duration("backoff", backoff),
			zap.Int("consecutive-failures", rm.ConsecutiveFailures()))

		ReconnectAttemptsTotal.Inc()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := dialFunc(ctx); err == nil {
			rm.Reset()
			rm.logger.Info("reconnection-successful")
			return nil
		} else {
			rm.logger.Warn("reconnection-failed", zap.Error(err))
			ReconnectFailuresTotal.Inc()
			rm.recordFailure()
			rm.incrementBackoff()
		}
	}
}

// Reset restores the backoff to its initial delay and clears the
// consecutive-failure run, called once the stream is dialed again.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.currentBackoff = rm.config.InitialDelay
	rm.consecutiveFailures = 0
	ReconnectConsecutiveFailures.Set(0)
}

// ConsecutiveFailures reports the current run of back-to-back reconnect
// failures since the stream last dialed successfully.
func (rm *ReconnectManager) ConsecutiveFailures() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.consecutiveFailures
}

func (rm *ReconnectManager) recordFailure() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.consecutiveFailures++
	ReconnectConsecutiveFailures.Set(float64(rm.consecutiveFailures))
}

// nextBackoff returns the current backoff with symmetric jitter applied
// (backoff * (1 +/- jitterPercent/2)), so concurrent reconnect attempts
// after a shared upstream outage don't all land on the same instant.
func (rm *ReconnectManager) nextBackoff() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	jitter := (rand.Float64() - 0.5) * rm.config.JitterPercent
	backoffFloat := float64(rm.currentBackoff) * (1.0 + jitter)

	return time.Duration(backoffFloat)
}

// incrementBackoff doubles the backoff (per the configured multiplier),
// capped at MaxDelay (≈30s, §4.3).
func (rm *ReconnectManager) incrementBackoff() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	newBackoff := time.Duration(float64(rm.currentBackoff) * rm.config.BackoffMultiplier)
	if newBackoff > rm.config.MaxDelay {
		rm.currentBackoff = rm.config.MaxDelay
	} else {
		rm.currentBackoff = newBackoff
	}
}
