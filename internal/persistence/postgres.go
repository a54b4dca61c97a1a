package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// PostgresBackend implements Backend using PostgreSQL.
type PostgresBackend struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresBackend opens a PostgreSQL connection and ensures the schema
// exists.
func NewPostgresBackend(cfg *PostgresConfig) (*PostgresBackend, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	b := &PostgresBackend{db: db, logger: cfg.Logger}
	if err := b.migrate(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	cfg.Logger.Info("postgres-backend-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return b, nil
}

func (p *PostgresBackend) migrate() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS markets (
			market_id      TEXT PRIMARY KEY,
			slug           TEXT NOT NULL,
			question       TEXT NOT NULL,
			category       TEXT NOT NULL,
			end_date       TIMESTAMPTZ,
			yes_token_id   TEXT NOT NULL,
			no_token_id    TEXT NOT NULL,
			admitted_at    TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS spread_windows (
			market_id              TEXT NOT NULL,
			opened_at_ns           BIGINT NOT NULL,
			closed_at_ns           BIGINT,
			open_yes_ask           BIGINT NOT NULL,
			open_no_ask            BIGINT NOT NULL,
			open_combined          BIGINT NOT NULL,
			open_spread            DOUBLE PRECISION NOT NULL,
			close_yes_ask          BIGINT,
			close_no_ask           BIGINT,
			close_combined         BIGINT,
			close_spread           DOUBLE PRECISION,
			spread_category        TEXT,
			open_duration_class    TEXT,
			close_reason           TEXT,
			opportunity_class      SMALLINT,
			tick_count             INTEGER NOT NULL DEFAULT 0,
			trade_event_fired      BOOLEAN NOT NULL DEFAULT FALSE,
			volume_change_ticks    INTEGER NOT NULL DEFAULT 0,
			price_shift_ticks      INTEGER NOT NULL DEFAULT 0,
			detection_latency_us   BIGINT,
			PRIMARY KEY (market_id, opened_at_ns)
		);

		CREATE INDEX IF NOT EXISTS idx_spread_windows_closed_at ON spread_windows (closed_at_ns);
		CREATE INDEX IF NOT EXISTS idx_spread_windows_market_id ON spread_windows (market_id, opened_at_ns DESC);

		CREATE TABLE IF NOT EXISTS market_stats (
			market_id        TEXT PRIMARY KEY,
			window_count     INTEGER NOT NULL,
			count_by_class   JSONB NOT NULL,
			avg_duration_ms  DOUBLE PRECISION NOT NULL,
			avg_spread       DOUBLE PRECISION NOT NULL,
			max_spread       DOUBLE PRECISION NOT NULL,
			noise_ratio      DOUBLE PRECISION NOT NULL,
			composite_score  DOUBLE PRECISION NOT NULL,
			computed_at      TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

// UpsertMarket persists a market's catalog metadata on admission (§4.1,
// §4.8), so the query surface and a restarted process both retain
// question/category/slug/expiry beyond the Catalog Fetcher's in-memory
// cache.
func (p *PostgresBackend) UpsertMarket(ctx context.Context, m *types.WatchedMarket) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO markets (
			market_id, slug, question, category, end_date, yes_token_id,
			no_token_id, admitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id) DO UPDATE SET
			slug = EXCLUDED.slug,
			question = EXCLUDED.question,
			category = EXCLUDED.category,
			end_date = EXCLUDED.end_date,
			yes_token_id = EXCLUDED.yes_token_id,
			no_token_id = EXCLUDED.no_token_id
	`, m.MarketID, m.Slug, m.Question, m.Category, m.EndDate, m.YesTokenID, m.NoTokenID, m.SubscribedAt)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}

// InsertOpen inserts a new window row with closed_at NULL (§4.7).
func (p *PostgresBackend) InsertOpen(ctx context.Context, w *types.ClosedWindow) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO spread_windows (
			market_id, opened_at_ns, open_yes_ask, open_no_ask, open_combined,
			open_spread, spread_category
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id, opened_at_ns) DO NOTHING
	`, w.MarketID, w.OpenedAtNs, int64(w.OpenYesAsk), int64(w.OpenNoAsk), int64(w.OpenCombined),
		w.OpenSpread, string(w.SpreadCategory))
	if err != nil {
		return fmt.Errorf("insert open: %w", err)
	}
	return nil
}

// UpsertClose implements §4.7's UPDATE-then-fallback-INSERT.
func (p *PostgresBackend) UpsertClose(ctx context.Context, w *types.ClosedWindow) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE spread_windows SET
			closed_at_ns = $3, close_yes_ask = $4, close_no_ask = $5,
			close_combined = $6, close_spread = $7, open_duration_class = $8,
			close_reason = $9, opportunity_class = $10, tick_count = $11,
			trade_event_fired = $12, volume_change_ticks = $13,
			price_shift_ticks = $14, detection_latency_us = $15
		WHERE market_id = $1 AND opened_at_ns = $2 AND closed_at_ns IS NULL
	`, w.MarketID, w.OpenedAtNs, w.ClosedAtNs, int64(w.CloseYesAsk), int64(w.CloseNoAsk),
		int64(w.CloseCombined), w.CloseSpread, string(w.OpenDurationClass), string(w.CloseReason),
		int(w.OpportunityClass), w.TickCount, w.TradeEventFired, w.VolumeChangeTicks,
		w.PriceShiftTicks, w.DetectionLatencyUs)
	if err != nil {
		return fmt.Errorf("update close: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// No open row to close: either the close beat its open, or the open
	// was dropped on queue overflow. Insert the complete row (§4.7).
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO spread_windows (
			market_id, opened_at_ns, closed_at_ns, open_yes_ask, open_no_ask,
			open_combined, open_spread, close_yes_ask, close_no_ask,
			close_combined, close_spread, spread_category, open_duration_class,
			close_reason, opportunity_class, tick_count, trade_event_fired,
			volume_change_ticks, price_shift_ticks, detection_latency_us
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (market_id, opened_at_ns) DO UPDATE SET
			closed_at_ns = EXCLUDED.closed_at_ns,
			close_yes_ask = EXCLUDED.close_yes_ask,
			close_no_ask = EXCLUDED.close_no_ask,
			close_combined = EXCLUDED.close_combined,
			close_spread = EXCLUDED.close_spread,
			open_duration_class = EXCLUDED.open_duration_class,
			close_reason = EXCLUDED.close_reason,
			opportunity_class = EXCLUDED.opportunity_class,
			tick_count = EXCLUDED.tick_count,
			trade_event_fired = EXCLUDED.trade_event_fired,
			volume_change_ticks = EXCLUDED.volume_change_ticks,
			price_shift_ticks = EXCLUDED.price_shift_ticks,
			detection_latency_us = EXCLUDED.detection_latency_us
	`, w.MarketID, w.OpenedAtNs, w.ClosedAtNs, int64(w.OpenYesAsk), int64(w.OpenNoAsk),
		int64(w.OpenCombined), w.OpenSpread, int64(w.CloseYesAsk), int64(w.CloseNoAsk),
		int64(w.CloseCombined), w.CloseSpread, string(w.SpreadCategory), string(w.OpenDurationClass),
		string(w.CloseReason), int(w.OpportunityClass), w.TickCount, w.TradeEventFired,
		w.VolumeChangeTicks, w.PriceShiftTicks, w.DetectionLatencyUs)
	if err != nil {
		return fmt.Errorf("fallback insert close: %w", err)
	}

	p.logger.Debug("close-fallback-inserted", zap.String("market-id", w.MarketID), zap.Int64("opened-at-ns", w.OpenedAtNs))
	return nil
}

// UpsertMarketStats persists one Aggregator (C9) rollup.
func (p *PostgresBackend) UpsertMarketStats(ctx context.Context, stats *types.MarketStats) error {
	countByClass, err := marshalCountByClass(stats.CountByClass)
	if err != nil {
		return fmt.Errorf("marshal count_by_class: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO market_stats (
			market_id, window_count, count_by_class, avg_duration_ms,
			avg_spread, max_spread, noise_ratio, composite_score, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (market_id) DO UPDATE SET
			window_count = EXCLUDED.window_count,
			count_by_class = EXCLUDED.count_by_class,
			avg_duration_ms = EXCLUDED.avg_duration_ms,
			avg_spread = EXCLUDED.avg_spread,
			max_spread = EXCLUDED.max_spread,
			noise_ratio = EXCLUDED.noise_ratio,
			composite_score = EXCLUDED.composite_score,
			computed_at = EXCLUDED.computed_at
	`, stats.MarketID, stats.WindowCount, countByClass, stats.AvgDurationMs,
		stats.AvgSpread, stats.MaxSpread, stats.NoiseRatio, stats.CompositeScore, stats.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert market stats: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (p *PostgresBackend) Close() error {
	p.logger.Info("closing-postgres-backend")
	return p.db.Close()
}
