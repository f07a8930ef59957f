package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"trade-engine/config"
	"trade-engine/models"
	"trade-engine/observability"
	"trade-engine/services"

	"github.com/shopspring/decimal"
)

const (
	// annualizationFactor converts daily return stddev to annualized
	// volatility (252 trading days).
	annualizationFactor = 252

	defaultVolatility      = 0.02
	volatilityCacheTTL     = 10 * time.Minute
	volatilityLookbackDays = 30

	strategyWindowSize = 20
	symbolWindowSize   = 10

	// maxBaseAllocation caps the base sizing fraction regardless of config.
	maxBaseAllocation = 0.2
)

type volatilityEntry struct {
	value     float64
	fetchedAt time.Time
}

// RiskGate sizes candidate orders and enforces the hard limits. Limits are
// immutable at runtime; rolling state (daily PnL, risk usage, performance
// windows) resets at the date boundary.
type RiskGate struct {
	config config.RiskConfig
	broker services.Broker
	book   *PositionBook

	mu              sync.Mutex
	day             time.Time
	dailyPnL        decimal.Decimal
	dailyRiskUsed   decimal.Decimal
	dailyTrades     int
	winCount        int
	lossCount       int
	strategyResults map[string][]decimal.Decimal
	symbolResults   map[string][]decimal.Decimal

	volMu    sync.Mutex
	volCache map[string]volatilityEntry
}

// NewRiskGate creates a risk gate reading exposure from the given book.
func NewRiskGate(broker services.Broker, book *PositionBook, cfg config.RiskConfig) *RiskGate {
	return &RiskGate{
		config:          cfg,
		broker:          broker,
		book:            book,
		day:             today(),
		dailyPnL:        decimal.Zero,
		dailyRiskUsed:   decimal.Zero,
		strategyResults: make(map[string][]decimal.Decimal),
		symbolResults:   make(map[string][]decimal.Decimal),
		volCache:        make(map[string]volatilityEntry),
	}
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// maybeRollDayLocked resets daily counters at the date boundary. The
// performance windows roll across days and are not reset.
func (g *RiskGate) maybeRollDayLocked() {
	if current := today(); !current.Equal(g.day) {
		observability.Info("daily risk counters reset",
			"previous_day", g.day.Format("2006-01-02"),
			"daily_pnl", g.dailyPnL,
			"daily_trades", g.dailyTrades)
		g.resetDailyLocked(current)
	}
}

func (g *RiskGate) resetDailyLocked(day time.Time) {
	g.day = day
	g.dailyPnL = decimal.Zero
	g.dailyRiskUsed = decimal.Zero
	g.dailyTrades = 0
	g.winCount = 0
	g.lossCount = 0
	observability.GetMetrics().SetDailyRiskUsed(0)
}

// ResetDaily clears the daily counters immediately.
func (g *RiskGate) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyLocked(today())
}

// Evaluate checks a sized order against every configured limit, in order:
// absolute order value, per-symbol exposure, open position count, daily
// risk budget, symbol volatility. SELL orders only reduce exposure and
// pass unconditionally. A breach comes back as a RiskError naming the
// limit; it is terminal and never retried.
func (g *RiskGate) Evaluate(ctx context.Context, intent models.OrderIntent, quantity int64, price decimal.Decimal) error {
	if intent.Side == models.SideSell {
		return nil
	}

	value := price.Mul(decimal.NewFromInt(quantity))

	g.mu.Lock()
	g.maybeRollDayLocked()

	if maxSize := decimal.NewFromInt(g.config.MaxPositionSize); value.GreaterThan(maxSize) {
		g.mu.Unlock()
		return g.reject(LimitMaxPositionSize,
			fmt.Sprintf("order value %s exceeds max position size %s", value, maxSize))
	}

	exposure := value
	position, held := g.book.Get(intent.Symbol)
	if held {
		exposure = exposure.Add(price.Mul(decimal.NewFromInt(position.Quantity)))
	}
	if maxPerSymbol := decimal.NewFromInt(g.config.MaxPositionPerSymbol); exposure.GreaterThan(maxPerSymbol) {
		g.mu.Unlock()
		return g.reject(LimitMaxPositionPerSymbol,
			fmt.Sprintf("resulting %s exposure %s exceeds per-symbol max %s", intent.Symbol, exposure, maxPerSymbol))
	}
	if !held && g.book.Count() >= g.config.MaxOpenPositions {
		g.mu.Unlock()
		return g.reject(LimitMaxOpenPositions,
			fmt.Sprintf("already holding %d positions, max %d", g.book.Count(), g.config.MaxOpenPositions))
	}

	projectedRisk := g.dailyRiskUsed.Add(value.Mul(decimal.NewFromFloat(g.config.MaxLossRate)))
	if maxDaily := decimal.NewFromInt(g.config.MaxDailyRisk); projectedRisk.GreaterThan(maxDaily) {
		g.mu.Unlock()
		return g.reject(LimitMaxDailyRisk,
			fmt.Sprintf("projected daily risk %s exceeds budget %s", projectedRisk, maxDaily))
	}
	g.mu.Unlock()

	if vol := g.volatility(ctx, intent.Symbol); vol > g.config.MaxVolatility {
		return g.reject(LimitMaxVolatility,
			fmt.Sprintf("%s volatility %.3f exceeds ceiling %.3f", intent.Symbol, vol, g.config.MaxVolatility))
	}

	return nil
}

func (g *RiskGate) reject(limit, message string) error {
	observability.GetMetrics().RecordRiskRejection(limit)
	observability.Warn("risk limit rejection", "limit", limit, "detail", message)
	return &RiskError{Limit: limit, Message: message}
}

// SizePosition derives an order quantity for a BUY from available cash and
// four bounded factors: symbol volatility, signal strength, strategy
// performance, and symbol performance. The sized amount is clipped to the
// position and daily-risk limits. A zero quantity means nothing affordable
// or a non-positive signal.
func (g *RiskGate) SizePosition(ctx context.Context, symbol, strategyID string, signalStrength float64, price, availableCash decimal.Decimal) (int64, decimal.Decimal) {
	if !price.IsPositive() || !availableCash.IsPositive() {
		return 0, decimal.Zero
	}
	if signalStrength <= 0 {
		return 0, decimal.Zero
	}

	ratio := g.config.PositionSizeRatio
	if ratio > maxBaseAllocation {
		ratio = maxBaseAllocation
	}
	base := availableCash.Mul(decimal.NewFromFloat(ratio))

	volFactor := g.volatilityFactor(g.volatility(ctx, symbol))
	signalFactor := signalFactor(signalStrength)

	g.mu.Lock()
	g.maybeRollDayLocked()
	strategyFactor := g.strategyFactorLocked(strategyID)
	symbolFactor := g.symbolFactorLocked(symbol)
	remainingRisk := decimal.NewFromInt(g.config.MaxDailyRisk).Sub(g.dailyRiskUsed)
	g.mu.Unlock()

	amount := base.
		Mul(decimal.NewFromFloat(volFactor)).
		Mul(decimal.NewFromFloat(signalFactor)).
		Mul(decimal.NewFromFloat(strategyFactor)).
		Mul(decimal.NewFromFloat(symbolFactor))

	if maxSize := decimal.NewFromInt(g.config.MaxPositionSize); amount.GreaterThan(maxSize) {
		amount = maxSize
	}

	headroom := decimal.NewFromInt(g.config.MaxPositionPerSymbol)
	if position, exists := g.book.Get(symbol); exists {
		headroom = headroom.Sub(price.Mul(decimal.NewFromInt(position.Quantity)))
	}
	if amount.GreaterThan(headroom) {
		amount = headroom
	}

	if g.config.MaxLossRate > 0 {
		riskCapacity := remainingRisk.Div(decimal.NewFromFloat(g.config.MaxLossRate))
		if amount.GreaterThan(riskCapacity) {
			amount = riskCapacity
		}
	}

	if !amount.IsPositive() {
		return 0, decimal.Zero
	}

	quantity := amount.Div(price).IntPart()
	if quantity <= 0 {
		return 0, decimal.Zero
	}

	observability.Debug("position sized",
		"symbol", symbol,
		"strategy", strategyID,
		"quantity", quantity,
		"amount", amount,
		"vol_factor", volFactor,
		"signal_factor", signalFactor,
		"strategy_factor", strategyFactor,
		"symbol_factor", symbolFactor)

	return quantity, amount
}

// volatilityFactor scales allocation down as volatility rises above the
// base level, floored at 0.1.
func (g *RiskGate) volatilityFactor(vol float64) float64 {
	if vol >= g.config.MaxVolatility {
		return 0.1
	}
	if vol <= 0 {
		return 1.0
	}
	factor := g.config.BaseVolatility / vol
	if factor > 1.0 {
		return 1.0
	}
	if factor < 0.1 {
		return 0.1
	}
	return factor
}

// signalFactor maps signal strength [0,10] linearly onto [0.2,1.0].
func signalFactor(strength float64) float64 {
	if strength > 10 {
		strength = 10
	}
	return 0.2 + (strength/10)*0.8
}

// strategyFactorLocked scores a strategy by its recent realized outcomes.
// Fewer than five data points yields the conservative default 0.8.
func (g *RiskGate) strategyFactorLocked(strategyID string) float64 {
	results := g.strategyResults[strategyID]
	if len(results) < 5 {
		return 0.8
	}

	wins := 0
	sum := decimal.Zero
	for _, pnl := range results {
		if pnl.IsPositive() {
			wins++
		}
		sum = sum.Add(pnl)
	}
	winRate := float64(wins) / float64(len(results))

	factor := 0.5 + winRate
	if sum.IsPositive() {
		factor += 0.3
	} else if sum.IsNegative() {
		factor -= 0.2
	}

	if factor < 0.3 {
		return 0.3
	}
	if factor > 2.0 {
		return 2.0
	}
	return factor
}

// symbolFactorLocked tiers a symbol by its recent win rate. Fewer than
// three data points yields the neutral 1.0.
func (g *RiskGate) symbolFactorLocked(symbol string) float64 {
	results := g.symbolResults[symbol]
	if len(results) < 3 {
		return 1.0
	}

	wins := 0
	for _, pnl := range results {
		if pnl.IsPositive() {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(results))

	switch {
	case winRate >= 0.6:
		return 1.2
	case winRate >= 0.4:
		return 1.0
	case winRate >= 0.2:
		return 0.8
	default:
		return 0.5
	}
}

// UpdateAfterTrade folds a confirmed fill into the rolling risk state.
// Buys consume daily risk budget; sells book realized PnL into the daily
// counters and the performance windows.
func (g *RiskGate) UpdateAfterTrade(trade *models.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeRollDayLocked()

	g.dailyTrades++

	if trade.Side == models.SideBuy {
		g.dailyRiskUsed = g.dailyRiskUsed.Add(trade.Value().Mul(decimal.NewFromFloat(g.config.MaxLossRate)))
		used, _ := g.dailyRiskUsed.Float64()
		observability.GetMetrics().SetDailyRiskUsed(used)
		return
	}

	g.dailyPnL = g.dailyPnL.Add(trade.PnL)
	if trade.PnL.IsPositive() {
		g.winCount++
	} else if trade.PnL.IsNegative() {
		g.lossCount++
	}

	if trade.StrategyID != "" {
		g.strategyResults[trade.StrategyID] = appendWindow(g.strategyResults[trade.StrategyID], trade.PnL, strategyWindowSize)
	}
	g.symbolResults[trade.Symbol] = appendWindow(g.symbolResults[trade.Symbol], trade.PnL, symbolWindowSize)
}

func appendWindow(window []decimal.Decimal, value decimal.Decimal, size int) []decimal.Decimal {
	window = append(window, value)
	if len(window) > size {
		window = window[len(window)-size:]
	}
	return window
}

// Metrics returns a read-only view of the rolling risk state.
func (g *RiskGate) Metrics() models.RiskMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeRollDayLocked()

	limit := decimal.NewFromInt(g.config.MaxDailyRisk)
	metrics := models.RiskMetrics{
		DailyPnL:       g.dailyPnL,
		DailyTrades:    g.dailyTrades,
		WinCount:       g.winCount,
		LossCount:      g.lossCount,
		OpenPositions:  g.book.Count(),
		DailyRiskUsed:  g.dailyRiskUsed,
		DailyRiskLimit: limit,
	}
	if total := g.winCount + g.lossCount; total > 0 {
		metrics.WinRate = float64(g.winCount) / float64(total)
	}
	if limit.IsPositive() {
		usage, _ := g.dailyRiskUsed.Div(limit).Float64()
		metrics.RiskUsagePct = usage * 100
	}
	return metrics
}

// volatility returns the annualized volatility of the symbol's daily
// returns, cached per symbol. Missing or short price history falls back
// to the conservative default.
func (g *RiskGate) volatility(ctx context.Context, symbol string) float64 {
	g.volMu.Lock()
	if entry, exists := g.volCache[symbol]; exists && time.Since(entry.fetchedAt) < volatilityCacheTTL {
		g.volMu.Unlock()
		return entry.value
	}
	g.volMu.Unlock()

	value := defaultVolatility
	closes, err := g.broker.GetDailyCloses(ctx, symbol, volatilityLookbackDays)
	if err != nil {
		observability.Warn("volatility lookup failed, using default",
			"symbol", symbol, "default", defaultVolatility, "error", err)
	} else if computed, ok := annualizedVolatility(closes); ok {
		value = computed
	}

	g.volMu.Lock()
	g.volCache[symbol] = volatilityEntry{value: value, fetchedAt: time.Now()}
	g.volMu.Unlock()

	return value
}

// annualizedVolatility computes stddev of daily returns scaled by the
// square root of the trading-day count. Needs at least five closes.
func annualizedVolatility(closes []decimal.Decimal) (float64, bool) {
	if len(closes) < 5 {
		return 0, false
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, _ := closes[i-1].Float64()
		current, _ := closes[i].Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (current-prev)/prev)
	}
	if len(returns) < 2 {
		return 0, false
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(annualizationFactor), true
}
