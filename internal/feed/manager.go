// Package feed implements the Feed Connector (C3): one durable upstream
// subscription stream that keeps the Market Store's books current and
// notifies the Spread Detector of every token that just changed.
package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbscan/spread-scanner/internal/store"
	"github.com/arbscan/spread-scanner/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Manager maintains the single durable WebSocket stream to the upstream
// feed, applies book events to the Market Store, and emits a Price Message
// per affected token (§4.3).
type Manager struct {
	url    string
	store  *store.Store
	logger *zap.Logger

	conn         *websocket.Conn
	reconnectMgr *ReconnectManager
	config       Config

	priceCh chan *types.PriceMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	subscribed map[string]bool

	connected       atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64
}

// Config holds Feed Connector configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	ChunkSize             int
	Logger                *zap.Logger
}

// New creates a new Manager.
func New(cfg Config, st *store.Store) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	return &Manager{
		url:          cfg.URL,
		store:        st,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		priceCh:      make(chan *types.PriceMessage, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
		subscribed:   make(map[string]bool),
	}
}

// Start dials the upstream feed and starts the read/ping/reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("feed-connector-starting", zap.String("url", m.url))

	if err := m.connect(m.ctx); err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: m.config.DialTimeout}

	m.logger.Info("connecting-to-feed", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	ActiveConnections.Set(1)

	m.logger.Info("feed-connected")

	return nil
}

// Connected reports whether the stream is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Subscribe sends a Subscribe(tokens) control message, chunked to the
// configured chunk size (default 500, §4.3). Already-subscribed tokens are
// filtered out.
func (m *Manager) Subscribe(tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()
	newTokens := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if !m.subscribed[id] {
			newTokens = append(newTokens, id)
			m.subscribed[id] = true
		}
	}
	m.mu.Unlock()

	if len(newTokens) == 0 {
		return nil
	}

	chunkSize := m.config.ChunkSize
	if chunkSize <= 0 || chunkSize > 500 {
		chunkSize = 500
	}

	for start := 0; start < len(newTokens); start += chunkSize {
		end := start + chunkSize
		if end > len(newTokens) {
			end = len(newTokens)
		}
		chunk := newTokens[start:end]

		msg := map[string]interface{}{
			"assets_ids": chunk,
			"operation":  "subscribe",
		}

		if err := m.writeJSON(msg); err != nil {
			m.mu.Lock()
			for _, id := range chunk {
				delete(m.subscribed, id)
			}
			m.mu.Unlock()
			return fmt.Errorf("write subscribe frame: %w", err)
		}
	}

	m.updateSubscriptionGauge()
	m.logger.Info("subscribed-to-tokens", zap.Int("count", len(newTokens)))

	return nil
}

// Unsubscribe sends an Unsubscribe(tokens) control message. Callers must
// call this *before* removing the tokens from the Store (§4.8).
func (m *Manager) Unsubscribe(tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()
	toRemove := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if m.subscribed[id] {
			toRemove = append(toRemove, id)
			delete(m.subscribed, id)
		}
	}
	m.mu.Unlock()

	if len(toRemove) == 0 {
		return nil
	}

	msg := map[string]interface{}{
		"assets_ids": toRemove,
		"operation":  "unsubscribe",
	}

	if err := m.writeJSON(msg); err != nil {
		m.mu.Lock()
		for _, id := range toRemove {
			m.subscribed[id] = true
		}
		m.mu.Unlock()
		return fmt.Errorf("write unsubscribe frame: %w", err)
	}

	m.updateSubscriptionGauge()
	UnsubscriptionsTotal.Inc()
	m.logger.Info("unsubscribed-from-tokens", zap.Int("count", len(toRemove)))

	return nil
}

func (m *Manager) writeJSON(v interface{}) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no active connection")
	}
	return conn.WriteJSON(v)
}

func (m *Manager) updateSubscriptionGauge() {
	m.mu.RLock()
	n := len(m.subscribed)
	m.mu.RUnlock()
	SubscriptionCount.Set(float64(n))
}

// readLoop reads wire frames and applies each to the Store, emitting a
// Price Message for every token touched (§4.3).
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.logger.Warn("read-error", zap.Error(err))

			startTime := m.connectionStart.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.connected.Store(false)
			ActiveConnections.Set(0)
			return
		}

		receivedAt := time.Now()

		var frames []types.WireFrame
		if err := json.Unmarshal(message, &frames); err != nil {
			// Heartbeats and control acks aren't frame arrays; drop silently.
			MessagesDroppedTotal.WithLabelValues("unparseable").Inc()
			continue
		}

		for i := range frames {
			m.handleFrame(&frames[i], receivedAt)
		}
	}
}

func (m *Manager) handleFrame(f *types.WireFrame, receivedAt time.Time) {
	MessagesReceivedTotal.WithLabelValues(f.EventType).Inc()
	start := time.Now()
	defer func() { MessageLatencySeconds.Observe(time.Since(start).Seconds()) }()

	switch f.EventType {
	case "book":
		m.store.ApplyBookSnapshot(f.AssetID, f.Asks, f.Bids)
		m.emitPriceMessage(f.AssetID, receivedAt, false, false)
	case "price_change":
		m.store.ApplyBookChanges(f.AssetID, f.Changes)
		m.emitPriceMessage(f.AssetID, receivedAt, false, true)
	case "last_trade_price":
		m.emitPriceMessage(f.AssetID, receivedAt, true, false)
	default:
		// Unknown event kinds are ignored (§4.3).
	}
}

func (m *Manager) emitPriceMessage(token string, receivedAt time.Time, tradeFired, volumeChanged bool) {
	ask, hasAsk := m.store.BestAsk(token)
	bid, hasBid := m.store.BestBid(token)
	if !hasAsk && !hasBid {
		return
	}

	msg := &types.PriceMessage{
		TokenID:       token,
		BestAsk:       ask,
		BestBid:       bid,
		ReceivedAt:    receivedAt,
		TradeFired:    tradeFired,
		VolumeChanged: volumeChanged,
	}

	select {
	case m.priceCh <- msg:
	default:
		m.logger.Warn("price-message-channel-full", zap.String("token-id", token))
		MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
	}
}

// pingLoop sends a keepalive every PingInterval (default 30s, §4.3).
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop rebuilds the connection and resubscribes on disconnect.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		if err := m.reconnectMgr.Reconnect(m.ctx, m.connect); err != nil {
			if err == context.Canceled {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		if err := m.resubscribeAll(); err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

func (m *Manager) resubscribeAll() error {
	m.mu.RLock()
	tokenIDs := make([]string, 0, len(m.subscribed))
	for id := range m.subscribed {
		tokenIDs = append(tokenIDs, id)
	}
	m.mu.RUnlock()

	if len(tokenIDs) == 0 {
		return nil
	}

	chunkSize := m.config.ChunkSize
	if chunkSize <= 0 || chunkSize > 500 {
		chunkSize = 500
	}

	for start := 0; start < len(tokenIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}

		msg := map[string]interface{}{
			"assets_ids": tokenIDs[start:end],
			"type":       "market",
		}
		if err := m.writeJSON(msg); err != nil {
			return fmt.Errorf("write resubscribe frame: %w", err)
		}
	}

	m.logger.Info("resubscribed-to-all-tokens", zap.Int("count", len(tokenIDs)))
	return nil
}

// PriceMessages returns the channel of Price Messages for the Detector.
func (m *Manager) PriceMessages() <-chan *types.PriceMessage {
	return m.priceCh
}

// Close gracefully shuts down the Feed Connector.
func (m *Manager) Close() error {
	m.logger.Info("closing-feed-connector")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.priceCh)
	ActiveConnections.Set(0)

	m.logger.Info("feed-connector-closed")
	return nil
}
