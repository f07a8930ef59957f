package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trade-engine/config"
	"trade-engine/models"
	"trade-engine/observability"
	"trade-engine/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// Recorder persists order and trade records. Persistence is best effort:
// a recorder failure is logged and never fails the order itself.
type Recorder interface {
	SaveOrder(ctx context.Context, order *models.OrderRecord) error
	SaveTrade(ctx context.Context, trade *models.Trade) error
	SavePosition(ctx context.Context, position *models.Position) error
}

var errTokenRefreshFailed = errors.New("broker token refresh failed")

// pendingOrder tracks a submitted order that has not yet resolved, so a
// later cancel can release its reservation.
type pendingOrder struct {
	record        *models.OrderRecord
	reservationID uuid.UUID
	hasReserve    bool
}

// OrderExecutor drives one order's lifecycle:
//
//	Requested -> Validated -> Reserved -> Submitted -> {Filled|Rejected|Failed} -> Released
//
// Business rejections come back inside OrderResult; only setup failures
// return an error. A single bad intent can never crash the caller's loop.
type OrderExecutor struct {
	broker   services.Broker
	ledger   *AccountLedger
	book     *PositionBook
	risk     *RiskGate
	breakers *services.SymbolBreakers
	recorder Recorder
	config   *config.Config

	paused  atomic.Bool
	mu      sync.Mutex
	pending map[string]*pendingOrder
}

// NewOrderExecutor wires the executor. recorder may be nil, in which case
// nothing is persisted.
func NewOrderExecutor(broker services.Broker, ledger *AccountLedger, book *PositionBook, risk *RiskGate, recorder Recorder, cfg *config.Config) *OrderExecutor {
	return &OrderExecutor{
		broker: broker,
		ledger: ledger,
		book:   book,
		risk:   risk,
		breakers: services.NewSymbolBreakers(services.SymbolBreakerConfig{
			FailureThreshold: uint32(cfg.Executor.FailureThreshold),
			Cooldown:         cfg.Executor.BlacklistCooldown,
		}),
		recorder: recorder,
		config:   cfg,
		pending:  make(map[string]*pendingOrder),
	}
}

// PauseTrading blocks new orders until ResumeTrading. Stop-loss and
// take-profit intents bypass the pause.
func (e *OrderExecutor) PauseTrading() bool {
	e.paused.Store(true)
	observability.Warn("trading paused")
	return true
}

// ResumeTrading lifts the pause.
func (e *OrderExecutor) ResumeTrading() bool {
	e.paused.Store(false)
	observability.Info("trading resumed")
	return true
}

// Paused reports whether trading is currently paused.
func (e *OrderExecutor) Paused() bool {
	return e.paused.Load()
}

// GetPositions returns copies of all open positions.
func (e *OrderExecutor) GetPositions() []models.Position {
	return e.book.All()
}

// GetAccountInfo returns the ledger's combined account view.
func (e *OrderExecutor) GetAccountInfo(ctx context.Context) (models.AccountInfo, error) {
	return e.ledger.Snapshot(ctx)
}

// GetRiskMetrics returns the risk gate's rolling state.
func (e *OrderExecutor) GetRiskMetrics() models.RiskMetrics {
	return e.risk.Metrics()
}

// BreakerStatus returns the per-symbol circuit breaker states.
func (e *OrderExecutor) BreakerStatus() map[string]services.SymbolBreakerStatus {
	return e.breakers.Status()
}

// PlaceOrder runs one intent through the full state machine. All business
// outcomes, including every rejection, come back in the result.
func (e *OrderExecutor) PlaceOrder(ctx context.Context, intent models.OrderIntent) *models.OrderResult {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	side := strings.ToLower(string(intent.Side))

	logger := observability.WithSymbol(intent.Symbol)
	logger.Info("order requested",
		"side", intent.Side,
		"quantity", intent.Quantity,
		"strategy", intent.StrategyID,
		"reason", intent.Reason)

	// Blacklisted symbols are refused before anything is reserved.
	if open, remaining := e.breakers.Open(intent.Symbol); open {
		metrics.RecordOrderRejection(models.ReasonCircuitOpen)
		logger.Warn("order refused, circuit open", "cooldown_remaining", remaining)
		return &models.OrderResult{
			Status:            models.OrderStatusRejected,
			Reason:            models.ReasonCircuitOpen,
			CooldownRemaining: remaining,
		}
	}

	if e.paused.Load() && !intent.BypassPause {
		metrics.RecordOrderRejection(models.ReasonTradingPaused)
		logger.Warn("order refused, trading paused")
		return &models.OrderResult{
			Status: models.OrderStatusRejected,
			Reason: models.ReasonTradingPaused,
		}
	}

	price, err := e.resolvePrice(ctx, intent)
	if err != nil {
		metrics.RecordOrderRejection(models.ReasonPriceUnavailable)
		logger.Error("price resolution failed", "error", err)
		return &models.OrderResult{
			Status: models.OrderStatusFailed,
			Reason: models.ReasonPriceUnavailable,
		}
	}

	quantity, result := e.resolveQuantity(ctx, intent, price)
	if result != nil {
		metrics.RecordOrderRejection(result.Reason)
		logger.Warn("order rejected during validation", "reason", result.Reason)
		return result
	}

	record := models.NewOrderRecord(intent, quantity, price)
	record.SetStatus(models.OrderStatusValidated)

	if err := e.risk.Evaluate(ctx, intent, quantity, price); err != nil {
		reason := models.ReasonInvalidQuantity
		if riskErr, ok := AsRiskError(err); ok {
			reason = riskErr.Limit
		}
		record.SetStatus(models.OrderStatusRejected)
		record.Reason = reason
		e.persistOrder(ctx, record)
		metrics.RecordOrderRejection(reason)
		return &models.OrderResult{
			Status:   models.OrderStatusRejected,
			Reason:   reason,
			Quantity: quantity,
			Price:    price,
		}
	}

	// Only buys hold cash; sells were already validated against holdings.
	var reservationID uuid.UUID
	hasReserve := false
	if intent.Side == models.SideBuy {
		amount := price.Mul(decimal.NewFromInt(quantity))
		reservationID, err = e.ledger.Reserve(ctx, intent.Symbol, amount)
		if err != nil {
			reason := reserveFailureReason(err)
			record.SetStatus(models.OrderStatusRejected)
			record.Reason = reason
			e.persistOrder(ctx, record)
			metrics.RecordOrderRejection(reason)
			logger.Warn("reservation failed", "reason", reason, "error", err)
			return &models.OrderResult{
				Status:   models.OrderStatusRejected,
				Reason:   reason,
				Quantity: quantity,
				Price:    price,
			}
		}
		hasReserve = true
		record.SetStatus(models.OrderStatusReserved)
	}

	response, err := e.submitWithRetries(ctx, record)
	if err != nil {
		if hasReserve {
			e.ledger.Confirm(ctx, reservationID, false)
		}
		reason := submitFailureReason(err)
		record.SetStatus(models.OrderStatusFailed)
		record.Reason = reason
		record.SetStatus(models.OrderStatusReleased)
		e.persistOrder(ctx, record)
		metrics.RecordOrder(side, string(models.OrderStatusFailed), timer.Duration())
		logger.Error("order submission failed", "reason", reason, "error", err)
		return &models.OrderResult{
			Status:   models.OrderStatusFailed,
			Reason:   reason,
			Quantity: quantity,
			Price:    price,
		}
	}

	record.OrderID = response.OrderID
	record.SetStatus(models.OrderStatusSubmitted)

	if intent.OrderType == models.OrderTypeLimit {
		// Limit orders rest at the broker; hold the reservation until the
		// fill or a cancel resolves it.
		e.trackPending(record, reservationID, hasReserve)
		e.persistOrder(ctx, record)
		metrics.RecordOrder(side, string(models.OrderStatusSubmitted), timer.Duration())
		logger.Info("limit order submitted", "order_id", response.OrderID, "quantity", quantity, "price", price)
		return &models.OrderResult{
			Status:   models.OrderStatusSubmitted,
			OrderID:  response.OrderID,
			Quantity: quantity,
			Price:    price,
		}
	}

	return e.settleFill(ctx, record, reservationID, hasReserve, timer)
}

// settleFill books a filled market order: position update, reservation
// confirmation, risk state, persistence.
func (e *OrderExecutor) settleFill(ctx context.Context, record *models.OrderRecord, reservationID uuid.UUID, hasReserve bool, timer *observability.Timer) *models.OrderResult {
	metrics := observability.GetMetrics()
	side := strings.ToLower(string(record.Side))

	realized, err := e.book.ApplyFill(record.Symbol, record.Side, record.Quantity, record.Price)
	if err != nil {
		// The order is live at the broker; the book refusing it means
		// holdings changed mid-flight. Log loudly, keep going.
		observability.Error("fill could not be applied to position book",
			"symbol", record.Symbol, "order_id", record.OrderID, "error", err)
	}
	if hasReserve {
		e.ledger.Confirm(ctx, reservationID, true)
	}

	trade := models.NewTrade(record.Symbol, record.Side, record.Quantity, record.Price, realized, record.StrategyID)
	e.risk.UpdateAfterTrade(trade)

	record.SetStatus(models.OrderStatusFilled)
	e.persistOrder(ctx, record)
	e.persistTrade(ctx, trade)
	if position, exists := e.book.Get(record.Symbol); exists {
		e.persistPosition(ctx, &position)
	}

	value, _ := trade.Value().Float64()
	metrics.RecordOrderValue(side, value)
	metrics.RecordOrder(side, string(models.OrderStatusFilled), timer.Duration())

	observability.WithSymbol(record.Symbol).Info("order filled",
		"order_id", record.OrderID,
		"side", record.Side,
		"quantity", record.Quantity,
		"price", record.Price,
		"realized_pnl", realized)

	return &models.OrderResult{
		Status:   models.OrderStatusFilled,
		OrderID:  record.OrderID,
		Quantity: record.Quantity,
		Price:    record.Price,
	}
}

// resolvePrice uses the intent's hint or falls back to the live quote.
func (e *OrderExecutor) resolvePrice(ctx context.Context, intent models.OrderIntent) (decimal.Decimal, error) {
	if intent.PriceHint.IsPositive() {
		return intent.PriceHint, nil
	}
	cctx, cancel := context.WithTimeout(ctx, e.config.Executor.RequestTimeout)
	defer cancel()
	return e.broker.GetCurrentPrice(cctx, intent.Symbol)
}

// resolveQuantity normalizes the intent's quantity: sizing when absent,
// lot alignment, SELL holding clamp, BUY affordability clamp. A non-nil
// result is a terminal rejection.
func (e *OrderExecutor) resolveQuantity(ctx context.Context, intent models.OrderIntent, price decimal.Decimal) (int64, *models.OrderResult) {
	lotSize := int64(1)
	if info, err := e.broker.GetInstrumentInfo(ctx, intent.Symbol); err == nil && info.LotSize > 0 {
		lotSize = info.LotSize
	} else if err != nil {
		observability.Warn("instrument lookup failed, assuming lot size 1",
			"symbol", intent.Symbol, "error", err)
	}

	quantity := intent.Quantity

	if intent.Side == models.SideSell {
		held := e.book.Quantity(intent.Symbol)
		if held <= 0 {
			return 0, &models.OrderResult{
				Status: models.OrderStatusRejected,
				Reason: models.ReasonInsufficientPosition,
			}
		}
		if quantity <= 0 || quantity > held {
			quantity = held
		}
		quantity -= quantity % lotSize
		if quantity <= 0 {
			return 0, &models.OrderResult{
				Status: models.OrderStatusRejected,
				Reason: models.ReasonInvalidQuantity,
			}
		}
		return quantity, nil
	}

	info, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return 0, &models.OrderResult{
			Status: models.OrderStatusRejected,
			Reason: models.ReasonInsufficientFunds,
		}
	}

	if quantity <= 0 {
		quantity, _ = e.risk.SizePosition(ctx, intent.Symbol, intent.StrategyID, intent.SignalStrength, price, info.InternalAvailable)
		if quantity <= 0 {
			return 0, &models.OrderResult{
				Status: models.OrderStatusRejected,
				Reason: models.ReasonInvalidQuantity,
			}
		}
	}

	// Clamp to what the margin-adjusted cash affords rather than reject,
	// unless even one lot is out of reach.
	spendable := info.InternalAvailable.Mul(decimal.NewFromFloat(e.config.Ledger.SafetyMargin))
	affordable := spendable.Div(price).IntPart()
	affordable -= affordable % lotSize
	if affordable < lotSize {
		return 0, &models.OrderResult{
			Status: models.OrderStatusRejected,
			Reason: models.ReasonInsufficientFunds,
		}
	}
	if quantity > affordable {
		observability.WithSymbol(intent.Symbol).Info("buy quantity clamped to affordable",
			"requested", quantity, "affordable", affordable)
		quantity = affordable
	}

	quantity -= quantity % lotSize
	if quantity <= 0 {
		return 0, &models.OrderResult{
			Status: models.OrderStatusRejected,
			Reason: models.ReasonInvalidQuantity,
		}
	}
	return quantity, nil
}

// submitWithRetries sends the order through the symbol's circuit breaker
// with bounded exponential backoff for transient failures and a bounded
// token-refresh loop for auth failures.
func (e *OrderExecutor) submitWithRetries(ctx context.Context, record *models.OrderRecord) (*services.SubmitOrderResponse, error) {
	request := services.SubmitOrderRequest{
		Symbol:   record.Symbol,
		Side:     record.Side,
		Quantity: record.Quantity,
		Type:     record.OrderType,
	}
	if record.OrderType == models.OrderTypeLimit {
		request.Price = record.Price
	}

	retryConfig := services.RetryConfig{
		MaxRetries:     e.config.Executor.SubmitRetries,
		InitialBackoff: e.config.Executor.RetryInitialBackoff,
		MaxBackoff:     e.config.Executor.RetryMaxBackoff,
	}

	attempt := func() (*services.SubmitOrderResponse, error) {
		cctx, cancel := context.WithTimeout(ctx, e.config.Executor.RequestTimeout)
		defer cancel()
		return e.broker.SubmitOrder(cctx, request)
	}

	// The breaker wraps the whole retry loop so it sees one outcome per
	// order, not per attempt: a symbol is blacklisted only after
	// FailureThreshold failed orders, however many retries each one burned.
	return e.breakers.Execute(record.Symbol, func() (*services.SubmitOrderResponse, error) {
		var response *services.SubmitOrderResponse
		refreshes := 0
		err := services.WithRetry(ctx, retryConfig, func() error {
			resp, err := attempt()
			for services.IsAuthError(err) && refreshes < e.config.Executor.TokenRefreshRetries {
				refreshes++
				observability.Warn("refreshing broker token after auth failure",
					"symbol", record.Symbol, "attempt", refreshes)
				if refreshErr := e.broker.RefreshToken(ctx); refreshErr != nil {
					return fmt.Errorf("%w: %v", errTokenRefreshFailed, refreshErr)
				}
				resp, err = attempt()
			}
			if err != nil {
				return err
			}
			response = resp
			return nil
		})
		if err != nil {
			return nil, err
		}
		return response, nil
	})
}

func reserveFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrLockTimeout):
		return models.ReasonLockTimeout
	case errors.Is(err, ErrInsufficientFunds):
		return models.ReasonInsufficientFunds
	default:
		return models.ReasonInsufficientFunds
	}
}

func submitFailureReason(err error) string {
	switch {
	case errors.Is(err, errTokenRefreshFailed), services.IsAuthError(err):
		return models.ReasonTokenRefreshFailed
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return models.ReasonCircuitOpen
	case services.IsTransient(err):
		return models.ReasonMaxRetriesExceeded
	default:
		// The broker rejected the order outright; retrying would not help.
		return models.ReasonBrokerRejected
	}
}

func (e *OrderExecutor) trackPending(record *models.OrderRecord, reservationID uuid.UUID, hasReserve bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[record.OrderID] = &pendingOrder{
		record:        record,
		reservationID: reservationID,
		hasReserve:    hasReserve,
	}
}

// CancelOrder cancels a pending order at the broker and releases its
// reservation.
func (e *OrderExecutor) CancelOrder(ctx context.Context, orderID string) *models.OrderResult {
	e.mu.Lock()
	pending, exists := e.pending[orderID]
	e.mu.Unlock()

	if !exists {
		return &models.OrderResult{
			Status: models.OrderStatusRejected,
			Reason: models.ReasonOrderNotFound,
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.config.Executor.RequestTimeout)
	defer cancel()
	if err := e.broker.CancelOrder(cctx, orderID); err != nil {
		observability.Error("broker cancel failed", "order_id", orderID, "error", err)
		return &models.OrderResult{
			Status:  models.OrderStatusFailed,
			OrderID: orderID,
			Reason:  models.ReasonMaxRetriesExceeded,
		}
	}

	e.mu.Lock()
	delete(e.pending, orderID)
	e.mu.Unlock()

	if pending.hasReserve {
		e.ledger.Cancel(ctx, pending.reservationID)
	}
	pending.record.SetStatus(models.OrderStatusReleased)
	e.persistOrder(ctx, pending.record)

	observability.WithSymbol(pending.record.Symbol).Info("order cancelled",
		"order_id", orderID)

	return &models.OrderResult{
		Status:  models.OrderStatusReleased,
		OrderID: orderID,
	}
}

// CheckPositions marks every open position against the live price and
// fires stop-loss or take-profit sells. These exits bypass the pause gate.
func (e *OrderExecutor) CheckPositions(ctx context.Context) {
	for _, position := range e.book.All() {
		cctx, cancel := context.WithTimeout(ctx, e.config.Executor.RequestTimeout)
		price, err := e.broker.GetCurrentPrice(cctx, position.Symbol)
		cancel()
		if err != nil {
			observability.Warn("position check price lookup failed",
				"symbol", position.Symbol, "error", err)
			continue
		}

		e.book.UpdateMark(position.Symbol, price)

		rate, _ := position.PnLRate(price).Float64()
		var reason string
		switch {
		case rate <= -e.config.Risk.MaxLossRate:
			reason = "stop_loss"
		case rate >= e.config.Risk.MaxProfitRate:
			reason = "take_profit"
		default:
			continue
		}

		observability.WithSymbol(position.Symbol).Warn("position exit triggered",
			"trigger", reason,
			"pnl_rate", rate,
			"quantity", position.Quantity)

		result := e.PlaceOrder(ctx, models.OrderIntent{
			Symbol:      position.Symbol,
			Side:        models.SideSell,
			Quantity:    position.Quantity,
			PriceHint:   price,
			OrderType:   models.OrderTypeMarket,
			Reason:      reason,
			BypassPause: true,
		})
		if result.Status != models.OrderStatusFilled {
			observability.Error("position exit order did not fill",
				"symbol", position.Symbol,
				"trigger", reason,
				"status", result.Status,
				"reason", result.Reason)
		}
	}
}

// RunPositionChecks scans positions on an interval until ctx is done.
func (e *OrderExecutor) RunPositionChecks(ctx context.Context) {
	ticker := time.NewTicker(e.config.Executor.PositionCheckEvery)
	defer ticker.Stop()

	observability.Info("position check loop started",
		"interval", e.config.Executor.PositionCheckEvery)

	for {
		select {
		case <-ctx.Done():
			observability.Info("position check loop stopped")
			return
		case <-ticker.C:
			e.CheckPositions(ctx)
		}
	}
}

func (e *OrderExecutor) persistOrder(ctx context.Context, record *models.OrderRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.SaveOrder(ctx, record); err != nil {
		observability.Error("order persistence failed",
			"order_id", record.OrderID, "error", err)
	}
}

func (e *OrderExecutor) persistTrade(ctx context.Context, trade *models.Trade) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.SaveTrade(ctx, trade); err != nil {
		observability.Error("trade persistence failed",
			"trade_id", trade.ID, "error", err)
	}
}

func (e *OrderExecutor) persistPosition(ctx context.Context, position *models.Position) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.SavePosition(ctx, position); err != nil {
		observability.Error("position persistence failed",
			"symbol", position.Symbol, "error", err)
	}
}
