package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// EventSource is the live window-event push stream's upstream dependency
// (§6). *consumer.Consumer satisfies this.
type EventSource interface {
	Subscribe() chan *types.WindowEvent
	Unsubscribe(chan *types.WindowEvent)
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// pushEvent is the wire shape of one window event on the live stream.
type pushEvent struct {
	ID     string              `json:"id"`
	Kind   types.WindowEventKind `json:"kind"`
	Window *types.ClosedWindow `json:"window"`
}

// WindowStreamHandler upgrades clients to a websocket and fans out every
// Open/Close event from the Window Consumer (§4.6, §6) until the client
// disconnects.
type WindowStreamHandler struct {
	events EventSource
	logger *zap.Logger
}

// NewWindowStreamHandler creates a WindowStreamHandler.
func NewWindowStreamHandler(events EventSource, logger *zap.Logger) *WindowStreamHandler {
	return &WindowStreamHandler{events: events, logger: logger}
}

// HandleStream serves GET /ws/windows.
func (h *WindowStreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("window-stream-upgrade-failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := h.events.Subscribe()
	defer h.events.Unsubscribe(ch)

	h.logger.Debug("window-stream-client-connected", zap.String("remote-addr", r.RemoteAddr))

	// Detect client disconnects without blocking the write loop on reads.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-ch:
			if !ok {
				return
			}
			out := pushEvent{ID: uuid.New().String(), Kind: event.Kind, Window: event.Window}
			if err := conn.WriteJSON(out); err != nil {
				h.logger.Debug("window-stream-write-failed", zap.Error(err))
				return
			}
		}
	}
}
