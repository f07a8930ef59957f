package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks an order through its lifecycle:
// Requested -> Validated -> Reserved -> Submitted -> {Filled|Rejected|Failed} -> Released.
type OrderStatus string

const (
	OrderStatusRequested OrderStatus = "requested"
	OrderStatusValidated OrderStatus = "validated"
	OrderStatusReserved  OrderStatus = "reserved"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusReleased  OrderStatus = "released"
)

// Rejection reasons surfaced in OrderResult.Reason.
const (
	ReasonCircuitOpen          = "circuit_open"
	ReasonTradingPaused        = "trading_paused"
	ReasonInvalidQuantity      = "invalid_quantity"
	ReasonInsufficientFunds    = "insufficient_funds"
	ReasonInsufficientPosition = "insufficient_position"
	ReasonLockTimeout          = "lock_timeout"
	ReasonMaxRetriesExceeded   = "max_retries_exceeded"
	ReasonBrokerRejected       = "broker_rejected"
	ReasonTokenRefreshFailed   = "token_refresh_failed"
	ReasonOrderNotFound        = "order_not_found"
	ReasonPriceUnavailable     = "price_unavailable"
)

// OrderIntent is what a strategy asks the executor to do. Quantity may be
// zero, in which case the risk gate derives it from the signal. PriceHint
// may be zero for market orders.
type OrderIntent struct {
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       int64           `json:"quantity,omitempty"`
	PriceHint      decimal.Decimal `json:"price_hint,omitempty"`
	OrderType      OrderType       `json:"order_type"`
	StrategyID     string          `json:"strategy_id,omitempty"`
	SignalStrength float64         `json:"signal_strength,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	BypassPause    bool            `json:"bypass_pause,omitempty"`
}

// OrderRecord is the persisted trail of one order placement.
type OrderRecord struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    string          `json:"order_id,omitempty"` // broker-assigned, empty until submitted
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	OrderType  OrderType       `json:"order_type"`
	StrategyID string          `json:"strategy_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Commission decimal.Decimal `json:"commission"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewOrderRecord snapshots an intent at the start of the order lifecycle.
func NewOrderRecord(intent OrderIntent, quantity int64, price decimal.Decimal) *OrderRecord {
	now := time.Now()
	return &OrderRecord{
		ID:         uuid.New(),
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Quantity:   quantity,
		Price:      price,
		OrderType:  intent.OrderType,
		StrategyID: intent.StrategyID,
		Reason:     intent.Reason,
		Commission: decimal.Zero,
		Status:     OrderStatusRequested,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SetStatus advances the order record's lifecycle state.
func (o *OrderRecord) SetStatus(status OrderStatus) {
	o.Status = status
	o.UpdatedAt = time.Now()
}

// OrderResult is the structured outcome returned to callers. Business
// rejections come back here, never as errors.
type OrderResult struct {
	Status            OrderStatus     `json:"status"`
	OrderID           string          `json:"order_id,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Quantity          int64           `json:"quantity,omitempty"`
	Price             decimal.Decimal `json:"price,omitempty"`
	CooldownRemaining time.Duration   `json:"cooldown_remaining,omitempty"`
}

// Rejected reports whether the order never reached the broker.
func (r OrderResult) Rejected() bool {
	return r.Status == OrderStatusRejected
}
