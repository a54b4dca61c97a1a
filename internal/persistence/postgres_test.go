package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/arbscan/spread-scanner/pkg/fixedpoint"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

func testWindow() *types.ClosedWindow {
	return &types.ClosedWindow{
		MarketID:          "market-123",
		OpenedAtNs:        1000,
		ClosedAtNs:        2000,
		OpenYesAsk:        fixedpoint.Price(4800),
		OpenNoAsk:         fixedpoint.Price(5100),
		OpenCombined:      fixedpoint.Price(9900),
		OpenSpread:        0.01,
		CloseYesAsk:       fixedpoint.Price(5000),
		CloseNoAsk:        fixedpoint.Price(5000),
		CloseCombined:     fixedpoint.Price(10000),
		CloseSpread:       0.0,
		SpreadCategory:    types.SpreadSmall,
		OpenDurationClass: types.DurationMultiTick,
		CloseReason:       types.CloseReasonVolumeSpikeGradual,
		OpportunityClass:  types.OpportunityBest,
		TickCount:         4,
		TradeEventFired:   true,
		VolumeChangeTicks: 3,
		PriceShiftTicks:   0,
		DetectionLatencyUs: 120,
	}
}

func TestPostgresBackend_InsertOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}
	w := testWindow()

	mock.ExpectExec("INSERT INTO spread_windows").
		WithArgs(w.MarketID, w.OpenedAtNs, int64(w.OpenYesAsk), int64(w.OpenNoAsk), int64(w.OpenCombined),
			w.OpenSpread, string(w.SpreadCategory)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := b.InsertOpen(context.Background(), w); err != nil {
		t.Fatalf("insert open: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_UpsertClose_UpdatesExistingOpenRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}
	w := testWindow()

	mock.ExpectExec("UPDATE spread_windows SET").
		WithArgs(w.MarketID, w.OpenedAtNs, w.ClosedAtNs, int64(w.CloseYesAsk), int64(w.CloseNoAsk),
			int64(w.CloseCombined), w.CloseSpread, string(w.OpenDurationClass), string(w.CloseReason),
			int(w.OpportunityClass), w.TickCount, w.TradeEventFired, w.VolumeChangeTicks,
			w.PriceShiftTicks, w.DetectionLatencyUs).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := b.UpsertClose(context.Background(), w); err != nil {
		t.Fatalf("upsert close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_UpsertClose_FallsBackToInsertWhenNoOpenRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}
	w := testWindow()

	mock.ExpectExec("UPDATE spread_windows SET").
		WithArgs(w.MarketID, w.OpenedAtNs, w.ClosedAtNs, int64(w.CloseYesAsk), int64(w.CloseNoAsk),
			int64(w.CloseCombined), w.CloseSpread, string(w.OpenDurationClass), string(w.CloseReason),
			int(w.OpportunityClass), w.TickCount, w.TradeEventFired, w.VolumeChangeTicks,
			w.PriceShiftTicks, w.DetectionLatencyUs).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec("INSERT INTO spread_windows").
		WithArgs(w.MarketID, w.OpenedAtNs, w.ClosedAtNs, int64(w.OpenYesAsk), int64(w.OpenNoAsk),
			int64(w.OpenCombined), w.OpenSpread, int64(w.CloseYesAsk), int64(w.CloseNoAsk),
			int64(w.CloseCombined), w.CloseSpread, string(w.SpreadCategory), string(w.OpenDurationClass),
			string(w.CloseReason), int(w.OpportunityClass), w.TickCount, w.TradeEventFired,
			w.VolumeChangeTicks, w.PriceShiftTicks, w.DetectionLatencyUs).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := b.UpsertClose(context.Background(), w); err != nil {
		t.Fatalf("upsert close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_UpsertClose_UpdateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}
	w := testWindow()

	mock.ExpectExec("UPDATE spread_windows SET").
		WillReturnError(sqlmock.ErrCancelled)

	if err := b.UpsertClose(context.Background(), w); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPostgresBackend_UpsertMarketStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}
	stats := &types.MarketStats{
		MarketID:       "market-123",
		WindowCount:    5,
		CountByClass:   map[types.OpportunityClass]int{types.OpportunityBest: 5},
		AvgDurationMs:  500,
		AvgSpread:      0.03,
		MaxSpread:      0.08,
		NoiseRatio:     0.2,
		CompositeScore: 0.75,
	}

	mock.ExpectExec("INSERT INTO market_stats").
		WithArgs(stats.MarketID, stats.WindowCount, sqlmock.AnyArg(), stats.AvgDurationMs,
			stats.AvgSpread, stats.MaxSpread, stats.NoiseRatio, stats.CompositeScore, stats.ComputedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := b.UpsertMarketStats(context.Background(), stats); err != nil {
		t.Fatalf("upsert market stats: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_UpsertMarket(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}
	m := &types.WatchedMarket{
		MarketID:   "market-123",
		Slug:       "will-x-happen",
		Question:   "Will X happen?",
		Category:   "politics",
		YesTokenID: "yes-token",
		NoTokenID:  "no-token",
	}

	mock.ExpectExec("INSERT INTO markets").
		WithArgs(m.MarketID, m.Slug, m.Question, m.Category, m.EndDate, m.YesTokenID, m.NoTokenID, m.SubscribedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := b.UpsertMarket(context.Background(), m); err != nil {
		t.Fatalf("upsert market: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_ListWindowsForMarket(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}

	cols := []string{
		"market_id", "opened_at_ns", "closed_at_ns", "open_yes_ask", "open_no_ask", "open_combined",
		"open_spread", "close_yes_ask", "close_no_ask", "close_combined", "close_spread",
		"spread_category", "open_duration_class", "close_reason", "opportunity_class", "tick_count",
		"trade_event_fired", "volume_change_ticks", "price_shift_ticks", "detection_latency_us",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"market-123", int64(1000), int64(2000), int64(4800), int64(5100), int64(9900),
		0.01, int64(5000), int64(5000), int64(10000), 0.0,
		"small", "multi_tick", "volume_spike_gradual", int64(1), 4,
		true, 3, 0, int64(120),
	)

	mock.ExpectQuery("SELECT (.|\n)* FROM spread_windows WHERE market_id").
		WithArgs("market-123", 10).
		WillReturnRows(rows)

	windows, err := b.ListWindowsForMarket(context.Background(), "market-123", 10)
	if err != nil {
		t.Fatalf("list windows: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if windows[0].MarketID != "market-123" || windows[0].OpportunityClass != types.OpportunityBest {
		t.Errorf("unexpected window: %+v", windows[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_ListMarketsWithStats_JoinsMarketMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	b := &PostgresBackend{db: db, logger: testLogger()}

	cols := []string{
		"market_id", "slug", "question", "category", "end_date",
		"window_count", "count_by_class", "avg_duration_ms",
		"avg_spread", "max_spread", "noise_ratio", "composite_score", "computed_at",
	}
	rows := sqlmock.NewRows(cols).
		AddRow("market-123", "will-x-happen", "Will X happen?", "politics", nil,
			5, []byte(`{"1":5}`), 500.0, 0.03, 0.08, 0.2, 0.75, nil).
		AddRow("market-456", "will-y-happen", "Will Y happen?", "sports", nil,
			0, nil, 0.0, 0.0, 0.0, 0.0, 0.0, nil)

	mock.ExpectQuery("SELECT (.|\n)* FROM markets").WillReturnRows(rows)

	stats, err := b.ListMarketsWithStats(context.Background())
	if err != nil {
		t.Fatalf("list markets with stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(stats))
	}
	if stats[0].Slug != "will-x-happen" || stats[0].WindowCount != 5 {
		t.Errorf("unexpected first market: %+v", stats[0])
	}
	if stats[1].Slug != "will-y-happen" || stats[1].WindowCount != 0 || len(stats[1].CountByClass) != 0 {
		t.Errorf("expected zeroed stats for market with no rollup yet, got %+v", stats[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresBackend_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	b := &PostgresBackend{db: db, logger: testLogger()}
	mock.ExpectClose()

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestBackend_Interface(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	var _ Backend = NewConsoleBackend(logger)

	db, _, _ := sqlmock.New()
	defer db.Close()
	var _ Backend = &PostgresBackend{db: db, logger: logger}
}
