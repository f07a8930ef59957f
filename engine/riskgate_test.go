package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"trade-engine/models"

	"github.com/shopspring/decimal"
)

func buyIntent(symbol string) models.OrderIntent {
	return models.OrderIntent{Symbol: symbol, Side: models.SideBuy, OrderType: models.OrderTypeMarket}
}

func expectLimit(t *testing.T, err error, limit string) {
	t.Helper()
	riskErr, ok := AsRiskError(err)
	if !ok {
		t.Fatalf("expected RiskError, got %v", err)
	}
	if riskErr.Limit != limit {
		t.Errorf("expected limit %s, got %s", limit, riskErr.Limit)
	}
}

func TestEvaluateMaxPositionSize(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	_, _, book, risk := newTestEngine(broker, testConfig())
	_ = book

	// 200000 * 100 = 20M > 10M cap
	err := risk.Evaluate(context.Background(), buyIntent("AAPL"), 200_000, decimal.NewFromInt(100))
	expectLimit(t, err, LimitMaxPositionSize)
}

func TestEvaluatePerSymbolExposureBoundary(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	_, _, book, risk := newTestEngine(broker, testConfig())
	ctx := context.Background()

	// Existing exposure: 48000 * 100 = 4800000 of the 5000000 cap.
	if _, err := book.ApplyFill("AAPL", models.SideBuy, 48_000, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("setup fill failed: %v", err)
	}

	// 4800000 + 300000 = 5100000 > 5000000
	err := risk.Evaluate(ctx, buyIntent("AAPL"), 3_000, decimal.NewFromInt(100))
	expectLimit(t, err, LimitMaxPositionPerSymbol)

	// 4800000 + 150000 = 4950000 <= 5000000
	if err := risk.Evaluate(ctx, buyIntent("AAPL"), 1_500, decimal.NewFromInt(100)); err != nil {
		t.Errorf("expected 150000 order to pass, got %v", err)
	}
}

func TestEvaluateMaxOpenPositions(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	cfg := testConfig()
	cfg.Risk.MaxOpenPositions = 3
	_, _, book, risk := newTestEngine(broker, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		book.ApplyFill(fmt.Sprintf("SYM%d", i), models.SideBuy, 1, decimal.NewFromInt(100))
	}

	err := risk.Evaluate(ctx, buyIntent("NEW"), 10, decimal.NewFromInt(100))
	expectLimit(t, err, LimitMaxOpenPositions)

	// Adding to a held symbol is not a new position.
	if err := risk.Evaluate(ctx, buyIntent("SYM0"), 10, decimal.NewFromInt(100)); err != nil {
		t.Errorf("expected buy into held symbol to pass, got %v", err)
	}
}

func TestEvaluatePerSymbolExposureBeforeOpenPositions(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	cfg := testConfig()
	cfg.Risk.MaxOpenPositions = 3
	_, _, book, risk := newTestEngine(broker, cfg)

	for i := 0; i < 3; i++ {
		book.ApplyFill(fmt.Sprintf("SYM%d", i), models.SideBuy, 1, decimal.NewFromInt(100))
	}

	// A new symbol that breaches both limits reports the per-symbol
	// cap, not the position count.
	err := risk.Evaluate(context.Background(), buyIntent("NEW"), 60_000, decimal.NewFromInt(100))
	expectLimit(t, err, LimitMaxPositionPerSymbol)
}

func TestEvaluateDailyRiskBudget(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	cfg := testConfig()
	cfg.Risk.MaxDailyRisk = 10_000
	_, _, _, risk := newTestEngine(broker, cfg)
	ctx := context.Background()

	// Consume 400000 * 0.02 = 8000 of the 10000 budget.
	risk.UpdateAfterTrade(models.NewTrade("AAPL", models.SideBuy, 4_000, decimal.NewFromInt(100), decimal.Zero, "s1"))

	// 150000 * 0.02 = 3000; 8000 + 3000 > 10000
	err := risk.Evaluate(ctx, buyIntent("MSFT"), 1_500, decimal.NewFromInt(100))
	expectLimit(t, err, LimitMaxDailyRisk)

	// 50000 * 0.02 = 1000; 8000 + 1000 <= 10000
	if err := risk.Evaluate(ctx, buyIntent("MSFT"), 500, decimal.NewFromInt(100)); err != nil {
		t.Errorf("expected order within budget to pass, got %v", err)
	}
}

func TestEvaluateVolatilityCeiling(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	// Alternating large swings produce annualized volatility far above 0.5.
	for i := 0; i < 15; i++ {
		if i%2 == 0 {
			broker.closes = append(broker.closes, decimal.NewFromInt(100))
		} else {
			broker.closes = append(broker.closes, decimal.NewFromInt(140))
		}
	}
	_, _, _, risk := newTestEngine(broker, testConfig())

	err := risk.Evaluate(context.Background(), buyIntent("WILD"), 10, decimal.NewFromInt(100))
	expectLimit(t, err, LimitMaxVolatility)
}

func TestEvaluateSellAlwaysPasses(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	_, _, _, risk := newTestEngine(broker, testConfig())

	intent := models.OrderIntent{Symbol: "AAPL", Side: models.SideSell}
	if err := risk.Evaluate(context.Background(), intent, 1_000_000, decimal.NewFromInt(100)); err != nil {
		t.Errorf("sell orders must not be risk gated, got %v", err)
	}
}

func TestSizePositionDefaults(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	_, _, _, risk := newTestEngine(broker, testConfig())

	// base 1000000 * 0.1 = 100000; vol factor 1.0 (default vol 0.02 below
	// base 0.10); signal 5 -> 0.6; strategy default 0.8; symbol default 1.0.
	// 100000 * 0.6 * 0.8 = 48000 -> 480 shares at 100.
	quantity, amount := risk.SizePosition(context.Background(), "AAPL", "s1", 5, decimal.NewFromInt(100), decimal.NewFromInt(1_000_000))
	if quantity != 480 {
		t.Errorf("expected quantity 480, got %d", quantity)
	}
	if amount.Sub(decimal.NewFromInt(48_000)).Abs().GreaterThan(mustDecimal(t, "0.01")) {
		t.Errorf("expected amount near 48000, got %s", amount)
	}
}

func TestSizePositionZeroSignal(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	_, _, _, risk := newTestEngine(broker, testConfig())

	quantity, _ := risk.SizePosition(context.Background(), "AAPL", "s1", 0, decimal.NewFromInt(100), decimal.NewFromInt(1_000_000))
	if quantity != 0 {
		t.Errorf("expected zero quantity for non-positive signal, got %d", quantity)
	}
}

func TestSizePositionClampedToSymbolHeadroom(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	cfg := testConfig()
	cfg.Risk.MaxPositionPerSymbol = 50_000
	_, _, book, risk := newTestEngine(broker, cfg)

	// 450 held at 100 leaves 5000 headroom.
	book.ApplyFill("AAPL", models.SideBuy, 450, decimal.NewFromInt(100))

	quantity, amount := risk.SizePosition(context.Background(), "AAPL", "s1", 10, decimal.NewFromInt(100), decimal.NewFromInt(1_000_000))
	if quantity != 50 {
		t.Errorf("expected quantity clamped to 50, got %d", quantity)
	}
	if amount.GreaterThan(decimal.NewFromInt(5_000)) {
		t.Errorf("expected amount within headroom, got %s", amount)
	}
}

func TestSizePositionExhaustedRiskBudget(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	cfg := testConfig()
	cfg.Risk.MaxDailyRisk = 1_000
	_, _, _, risk := newTestEngine(broker, cfg)

	// 50000 * 0.02 = 1000 uses the whole budget.
	risk.UpdateAfterTrade(models.NewTrade("AAPL", models.SideBuy, 500, decimal.NewFromInt(100), decimal.Zero, "s1"))

	quantity, _ := risk.SizePosition(context.Background(), "MSFT", "s1", 10, decimal.NewFromInt(100), decimal.NewFromInt(1_000_000))
	if quantity != 0 {
		t.Errorf("expected zero quantity with no risk budget left, got %d", quantity)
	}
}

func TestPerformanceFactorsShiftSizing(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	broker.closesErr = errors.New("no data")
	_, _, _, risk := newTestEngine(broker, testConfig())
	ctx := context.Background()

	baselineQty, _ := risk.SizePosition(ctx, "AAPL", "hot", 5, decimal.NewFromInt(100), decimal.NewFromInt(1_000_000))

	// A winning streak lifts both the strategy and symbol factors.
	for i := 0; i < 10; i++ {
		risk.UpdateAfterTrade(models.NewTrade("AAPL", models.SideSell, 10, decimal.NewFromInt(100), decimal.NewFromInt(500), "hot"))
	}

	winnerQty, _ := risk.SizePosition(ctx, "AAPL", "hot", 5, decimal.NewFromInt(100), decimal.NewFromInt(1_000_000))
	if winnerQty <= baselineQty {
		t.Errorf("expected winning history to size up: baseline %d, winner %d", baselineQty, winnerQty)
	}

	// A losing streak on another symbol sizes down.
	for i := 0; i < 10; i++ {
		risk.UpdateAfterTrade(models.NewTrade("MSFT", models.SideSell, 10, decimal.NewFromInt(100), decimal.NewFromInt(-500), "cold"))
	}

	loserQty, _ := risk.SizePosition(ctx, "MSFT", "cold", 5, decimal.NewFromInt(100), decimal.NewFromInt(1_000_000))
	if loserQty >= baselineQty {
		t.Errorf("expected losing history to size down: baseline %d, loser %d", baselineQty, loserQty)
	}
}

func TestMetricsAndDailyCounters(t *testing.T) {
	broker := newFakeBroker(1_000_000)
	_, _, _, risk := newTestEngine(broker, testConfig())

	risk.UpdateAfterTrade(models.NewTrade("AAPL", models.SideBuy, 100, decimal.NewFromInt(100), decimal.Zero, "s1"))
	risk.UpdateAfterTrade(models.NewTrade("AAPL", models.SideSell, 50, decimal.NewFromInt(110), decimal.NewFromInt(500), "s1"))
	risk.UpdateAfterTrade(models.NewTrade("AAPL", models.SideSell, 50, decimal.NewFromInt(90), decimal.NewFromInt(-500), "s1"))

	metrics := risk.Metrics()
	if metrics.DailyTrades != 3 {
		t.Errorf("expected 3 daily trades, got %d", metrics.DailyTrades)
	}
	if metrics.WinCount != 1 || metrics.LossCount != 1 {
		t.Errorf("expected 1 win and 1 loss, got %d/%d", metrics.WinCount, metrics.LossCount)
	}
	if metrics.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %f", metrics.WinRate)
	}
	if !metrics.DailyPnL.IsZero() {
		t.Errorf("expected flat daily pnl, got %s", metrics.DailyPnL)
	}
	// 100 * 100 * 0.02 = 200 risk consumed by the buy.
	if !metrics.DailyRiskUsed.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected daily risk used 200, got %s", metrics.DailyRiskUsed)
	}

	risk.ResetDaily()
	metrics = risk.Metrics()
	if metrics.DailyTrades != 0 || !metrics.DailyRiskUsed.IsZero() {
		t.Errorf("expected counters cleared, got trades=%d risk=%s", metrics.DailyTrades, metrics.DailyRiskUsed)
	}
}

func TestVolatilityComputation(t *testing.T) {
	flat := make([]decimal.Decimal, 10)
	for i := range flat {
		flat[i] = decimal.NewFromInt(100)
	}
	if vol, ok := annualizedVolatility(flat); !ok || vol != 0 {
		t.Errorf("expected zero volatility for flat closes, got %f (ok=%v)", vol, ok)
	}

	if _, ok := annualizedVolatility(flat[:3]); ok {
		t.Error("expected short history to be rejected")
	}

	swings := []decimal.Decimal{
		decimal.NewFromInt(100), decimal.NewFromInt(110), decimal.NewFromInt(99),
		decimal.NewFromInt(112), decimal.NewFromInt(101), decimal.NewFromInt(115),
	}
	vol, ok := annualizedVolatility(swings)
	if !ok {
		t.Fatal("expected volatility to be computed")
	}
	if vol <= 0.5 {
		t.Errorf("expected high volatility for 10%% daily swings, got %f", vol)
	}
}
