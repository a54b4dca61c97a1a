package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Reader is the downstream query surface's read dependency (§6): list
// markets with stats, list windows per market, list recent closed windows,
// list currently-open windows. *persistence.PostgresBackend satisfies this.
type Reader interface {
	ListMarketsWithStats(ctx context.Context) ([]*types.MarketStats, error)
	ListWindowsForMarket(ctx context.Context, marketID string, limit int) ([]*types.ClosedWindow, error)
	ListRecentClosedWindows(ctx context.Context, limit int) ([]*types.ClosedWindow, error)
	ListOpenWindows(ctx context.Context) ([]*types.ClosedWindow, error)
}

// LatencyReporter exposes the Detector's exact-quantile latency snapshot.
type LatencyReporter interface {
	LatencySnapshot() (p50, p95, p99 int64)
}

const defaultWindowLimit = 100

// QueryHandler serves the query surface's market/window/latency endpoints.
type QueryHandler struct {
	reader  Reader
	latency LatencyReporter
	logger  *zap.Logger
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(reader Reader, latency LatencyReporter, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{reader: reader, latency: latency, logger: logger}
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LatencyResponse is the §6 latency histogram snapshot.
type LatencyResponse struct {
	P50Us int64 `json:"p50_us"`
	P95Us int64 `json:"p95_us"`
	P99Us int64 `json:"p99_us"`
}

// HandleMarkets serves GET /api/markets: every market with its current
// Aggregator rollup.
func (h *QueryHandler) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reader.ListMarketsWithStats(r.Context())
	if err != nil {
		h.logger.Error("list-markets-with-stats-failed", zap.Error(err))
		h.writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, stats)
}

// HandleMarketWindows serves GET /api/markets/{marketID}/windows?limit=N.
func (h *QueryHandler) HandleMarketWindows(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	if marketID == "" {
		h.writeError(w, "missing market id", http.StatusBadRequest)
		return
	}

	windows, err := h.reader.ListWindowsForMarket(r.Context(), marketID, parseLimit(r, defaultWindowLimit))
	if err != nil {
		h.logger.Error("list-windows-for-market-failed", zap.String("market-id", marketID), zap.Error(err))
		h.writeError(w, "failed to list windows", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, windows)
}

// HandleRecentWindows serves GET /api/windows/recent?limit=N.
func (h *QueryHandler) HandleRecentWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.reader.ListRecentClosedWindows(r.Context(), parseLimit(r, defaultWindowLimit))
	if err != nil {
		h.logger.Error("list-recent-closed-windows-failed", zap.Error(err))
		h.writeError(w, "failed to list recent windows", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, windows)
}

// HandleOpenWindows serves GET /api/windows/open: every window currently
// observably open (closed_at IS NULL).
func (h *QueryHandler) HandleOpenWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.reader.ListOpenWindows(r.Context())
	if err != nil {
		h.logger.Error("list-open-windows-failed", zap.Error(err))
		h.writeError(w, "failed to list open windows", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, windows)
}

// HandleLatency serves GET /api/latency: the Detector's exact p50/p95/p99
// detection-latency snapshot (§4.4, §6).
func (h *QueryHandler) HandleLatency(w http.ResponseWriter, r *http.Request) {
	if h.latency == nil {
		h.writeError(w, "latency reporter not configured", http.StatusServiceUnavailable)
		return
	}
	p50, p95, p99 := h.latency.LatencySnapshot()
	h.writeJSON(w, LatencyResponse{P50Us: p50, P95Us: p95, P99Us: p99})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h *QueryHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *QueryHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
