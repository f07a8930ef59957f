package services

import (
	"context"

	"trade-engine/models"

	"github.com/shopspring/decimal"
)

// Broker abstracts the brokerage API the engine trades through. Implementations
// normalize whatever response shapes the wire protocol produces into these
// types; the engine never inspects raw broker payloads.
type Broker interface {
	// GetAccountBalance returns the broker-reported cash figures.
	GetAccountBalance(ctx context.Context) (*BrokerBalance, error)

	// GetInstrumentInfo returns instrument metadata, including lot size.
	GetInstrumentInfo(ctx context.Context, symbol string) (*models.InstrumentInfo, error)

	// GetCurrentPrice returns the latest traded price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetDailyCloses returns up to days recent daily closing prices,
	// oldest first.
	GetDailyCloses(ctx context.Context, symbol string, days int) ([]decimal.Decimal, error)

	// SubmitOrder sends an order for execution.
	SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResponse, error)

	// CancelOrder requests cancellation of an open order.
	CancelOrder(ctx context.Context, orderID string) error

	// RefreshToken renews the broker session after an auth failure.
	// Brokers with static key auth may implement this as a no-op.
	RefreshToken(ctx context.Context) error
}

// BrokerBalance is the normalized account balance response.
type BrokerBalance struct {
	AvailableCash decimal.Decimal
	OrderableCash decimal.Decimal
	TotalBalance  decimal.Decimal
}

// SubmitOrderRequest describes one order submission. A zero Price means
// a market order.
type SubmitOrderRequest struct {
	Symbol   string
	Side     models.Side
	Quantity int64
	Price    decimal.Decimal
	Type     models.OrderType
}

// SubmitOrderResponse is the normalized submission result.
type SubmitOrderResponse struct {
	OrderID string
	Status  string
}
