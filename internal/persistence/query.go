package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arbscan/spread-scanner/pkg/fixedpoint"
	"github.com/arbscan/spread-scanner/pkg/types"
	json "github.com/goccy/go-json"
)

func fixedPointFromInt64(v int64) fixedpoint.Price {
	return fixedpoint.Price(v)
}

// Reader is the read surface the HTTP server queries (§6). Only
// PostgresBackend implements it — console mode has nothing to read back.
type Reader interface {
	ListMarketsWithStats(ctx context.Context) ([]*types.MarketStats, error)
	ListWindowsForMarket(ctx context.Context, marketID string, limit int) ([]*types.ClosedWindow, error)
	ListRecentClosedWindows(ctx context.Context, limit int) ([]*types.ClosedWindow, error)
	ListOpenWindows(ctx context.Context) ([]*types.ClosedWindow, error)
	// ListClosedWindowsSince returns every window across all markets that
	// closed at or after sinceNs, for the Aggregator's (C9) rolling scan.
	ListClosedWindowsSince(ctx context.Context, sinceNs int64) ([]*types.ClosedWindow, error)
}

func marshalCountByClass(m map[types.OpportunityClass]int) ([]byte, error) {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[fmt.Sprintf("%d", int(k))] = v
	}
	return json.Marshal(out)
}

func unmarshalCountByClass(data []byte) (map[types.OpportunityClass]int, error) {
	if len(data) == 0 {
		return map[types.OpportunityClass]int{}, nil
	}
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[types.OpportunityClass]int, len(raw))
	for k, v := range raw {
		var cls int
		if _, err := fmt.Sscanf(k, "%d", &cls); err != nil {
			continue
		}
		out[types.OpportunityClass(cls)] = v
	}
	return out, nil
}

const windowColumns = `
	market_id, opened_at_ns, closed_at_ns, open_yes_ask, open_no_ask, open_combined,
	open_spread, close_yes_ask, close_no_ask, close_combined, close_spread,
	spread_category, open_duration_class, close_reason, opportunity_class, tick_count,
	trade_event_fired, volume_change_ticks, price_shift_ticks, detection_latency_us
`

func scanWindow(rows *sql.Rows) (*types.ClosedWindow, error) {
	var w types.ClosedWindow
	var closedAtNs, closeYesAsk, closeNoAsk, closeCombined, detectionLatencyUs sql.NullInt64
	var closeSpread sql.NullFloat64
	var spreadCategory, openDurationClass, closeReason sql.NullString
	var opportunityClass sql.NullInt64
	var openYesAsk, openNoAsk, openCombined int64

	err := rows.Scan(
		&w.MarketID, &w.OpenedAtNs, &closedAtNs, &openYesAsk, &openNoAsk, &openCombined,
		&w.OpenSpread, &closeYesAsk, &closeNoAsk, &closeCombined, &closeSpread,
		&spreadCategory, &openDurationClass, &closeReason, &opportunityClass, &w.TickCount,
		&w.TradeEventFired, &w.VolumeChangeTicks, &w.PriceShiftTicks, &detectionLatencyUs,
	)
	if err != nil {
		return nil, err
	}

	w.OpenYesAsk = fixedPointFromInt64(openYesAsk)
	w.OpenNoAsk = fixedPointFromInt64(openNoAsk)
	w.OpenCombined = fixedPointFromInt64(openCombined)
	w.ClosedAtNs = closedAtNs.Int64
	w.CloseYesAsk = fixedPointFromInt64(closeYesAsk.Int64)
	w.CloseNoAsk = fixedPointFromInt64(closeNoAsk.Int64)
	w.CloseCombined = fixedPointFromInt64(closeCombined.Int64)
	w.CloseSpread = closeSpread.Float64
	w.SpreadCategory = types.SpreadCategory(spreadCategory.String)
	w.OpenDurationClass = types.OpenDurationClass(openDurationClass.String)
	w.CloseReason = types.CloseReason(closeReason.String)
	w.OpportunityClass = types.OpportunityClass(opportunityClass.Int64)
	w.DetectionLatencyUs = detectionLatencyUs.Int64

	return &w, nil
}

// ListWindowsForMarket returns a market's most recent windows, newest first.
func (p *PostgresBackend) ListWindowsForMarket(ctx context.Context, marketID string, limit int) ([]*types.ClosedWindow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+windowColumns+`
		FROM spread_windows WHERE market_id = $1 ORDER BY opened_at_ns DESC LIMIT $2`, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("query windows for market: %w", err)
	}
	defer rows.Close()

	return collectWindows(rows)
}

// ListRecentClosedWindows returns the most recently closed windows across
// all markets, newest first.
func (p *PostgresBackend) ListRecentClosedWindows(ctx context.Context, limit int) ([]*types.ClosedWindow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+windowColumns+`
		FROM spread_windows WHERE closed_at_ns IS NOT NULL ORDER BY closed_at_ns DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent closed windows: %w", err)
	}
	defer rows.Close()

	return collectWindows(rows)
}

// ListOpenWindows returns every window currently observably open
// (closed_at IS NULL).
func (p *PostgresBackend) ListOpenWindows(ctx context.Context) ([]*types.ClosedWindow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+windowColumns+`
		FROM spread_windows WHERE closed_at_ns IS NULL ORDER BY opened_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query open windows: %w", err)
	}
	defer rows.Close()

	return collectWindows(rows)
}

// ListClosedWindowsSince returns every closed window across all markets
// that closed at or after sinceNs, for the Aggregator's (C9) rolling scan.
func (p *PostgresBackend) ListClosedWindowsSince(ctx context.Context, sinceNs int64) ([]*types.ClosedWindow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+windowColumns+`
		FROM spread_windows WHERE closed_at_ns IS NOT NULL AND closed_at_ns >= $1
		ORDER BY market_id, opened_at_ns`, sinceNs)
	if err != nil {
		return nil, fmt.Errorf("query closed windows since: %w", err)
	}
	defer rows.Close()

	return collectWindows(rows)
}

func collectWindows(rows *sql.Rows) ([]*types.ClosedWindow, error) {
	var out []*types.ClosedWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListMarketsWithStats returns every market's current Aggregator rollup,
// joined with its catalog metadata (slug/question/category/expiry) from the
// markets table (§4.1). A market with no rollup yet (nothing closed in the
// Aggregator's window) still appears, with zeroed stats — the join is
// markets-driven, not stats-driven.
func (p *PostgresBackend) ListMarketsWithStats(ctx context.Context) ([]*types.MarketStats, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT m.market_id, m.slug, m.question, m.category, m.end_date,
			COALESCE(s.window_count, 0), s.count_by_class, COALESCE(s.avg_duration_ms, 0),
			COALESCE(s.avg_spread, 0), COALESCE(s.max_spread, 0), COALESCE(s.noise_ratio, 0),
			COALESCE(s.composite_score, 0), s.computed_at
		FROM markets m
		LEFT JOIN market_stats s ON s.market_id = m.market_id
		ORDER BY COALESCE(s.composite_score, 0) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query market stats: %w", err)
	}
	defer rows.Close()

	var out []*types.MarketStats
	for rows.Next() {
		var s types.MarketStats
		var endDate, computedAt sql.NullTime
		var countByClass []byte
		if err := rows.Scan(&s.MarketID, &s.Slug, &s.Question, &s.Category, &endDate,
			&s.WindowCount, &countByClass, &s.AvgDurationMs,
			&s.AvgSpread, &s.MaxSpread, &s.NoiseRatio, &s.CompositeScore, &computedAt); err != nil {
			return nil, fmt.Errorf("scan market stats: %w", err)
		}
		cbc, err := unmarshalCountByClass(countByClass)
		if err != nil {
			return nil, fmt.Errorf("unmarshal count_by_class: %w", err)
		}
		s.EndDate = endDate.Time
		s.ComputedAt = computedAt.Time
		s.CountByClass = cbc
		out = append(out, &s)
	}
	return out, rows.Err()
}
