package healthprobe

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker provides liveness/readiness checks and the scanner's
// user-visible failure surface: feed connectivity and write backlog (§6, §7).
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool

	feedConnected atomic.Bool
	subscribed    atomic.Int64
	hydrated      atomic.Int64
	pendingWrites atomic.Int64
	p99LatencyUs  atomic.Int64
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetFeedConnected records the Feed Connector's current connection state.
func (h *HealthChecker) SetFeedConnected(connected bool) {
	h.feedConnected.Store(connected)
}

// SetSubscribed records the number of tokens currently subscribed.
func (h *HealthChecker) SetSubscribed(n int64) {
	h.subscribed.Store(n)
}

// SetHydrated records the number of tokens with a two-sided order book.
func (h *HealthChecker) SetHydrated(n int64) {
	h.hydrated.Store(n)
}

// SetPendingWrites records the Persistence Writer's queue depth.
func (h *HealthChecker) SetPendingWrites(n int64) {
	h.pendingWrites.Store(n)
}

// SetP99LatencyUs records the Detector's current p99 decision latency.
func (h *HealthChecker) SetP99LatencyUs(us int64) {
	h.p99LatencyUs.Store(us)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Message       string `json:"message,omitempty"`
	FeedConnected bool   `json:"feed_connected"`
	Subscribed    int64  `json:"subscribed"`
	Hydrated      int64  `json:"hydrated"`
	PendingWrites int64  `json:"pending_writes"`
	P99LatencyUs  int64  `json:"p99_latency_us"`
}

func (h *HealthChecker) snapshot(status string) HealthResponse {
	return HealthResponse{
		Status:        status,
		Uptime:        time.Since(h.startTime).String(),
		FeedConnected: h.feedConnected.Load(),
		Subscribed:    h.subscribed.Load(),
		Hydrated:      h.hydrated.Load(),
		PendingWrites: h.pendingWrites.Load(),
		P99LatencyUs:  h.p99LatencyUs.Load(),
	}
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.snapshot("healthy")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			resp := h.snapshot("not_ready")
			resp.Message = "application is starting"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}

		resp := h.snapshot("ready")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
