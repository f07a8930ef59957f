package services

import (
	"context"
	"fmt"
	"sync"

	"trade-engine/models"

	"github.com/shopspring/decimal"
)

// SimBroker is an in-memory Broker for local development and end-to-end
// tests. Orders are accepted instantly, prices are scripted, and no
// network is involved. It is safe for concurrent use.
type SimBroker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	prices    map[string]decimal.Decimal
	submitErr error
	nextID    int
	open      map[string]SubmitOrderRequest
	cancelled []string
}

const simDefaultPrice = 100

// NewSimBroker creates a simulated broker with the given starting cash.
func NewSimBroker(cash decimal.Decimal) *SimBroker {
	return &SimBroker{
		cash:   cash,
		prices: make(map[string]decimal.Decimal),
		open:   make(map[string]SubmitOrderRequest),
	}
}

// SetPrice scripts the current price for a symbol.
func (b *SimBroker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// SetCash overrides the reported cash balance.
func (b *SimBroker) SetCash(cash decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cash = cash
}

// SetSubmitError makes subsequent submissions fail with err. Pass nil
// to restore normal behavior.
func (b *SimBroker) SetSubmitError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitErr = err
}

// Cancelled returns the order ids cancelled so far.
func (b *SimBroker) Cancelled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.cancelled))
	copy(out, b.cancelled)
	return out
}

func (b *SimBroker) priceLocked(symbol string) decimal.Decimal {
	if price, ok := b.prices[symbol]; ok {
		return price
	}
	return decimal.NewFromInt(simDefaultPrice)
}

func (b *SimBroker) GetAccountBalance(ctx context.Context) (*BrokerBalance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &BrokerBalance{
		AvailableCash: b.cash,
		OrderableCash: b.cash,
		TotalBalance:  b.cash,
	}, nil
}

func (b *SimBroker) GetInstrumentInfo(ctx context.Context, symbol string) (*models.InstrumentInfo, error) {
	return &models.InstrumentInfo{Symbol: symbol, LotSize: 1}, nil
}

func (b *SimBroker) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.priceLocked(symbol), nil
}

// GetDailyCloses synthesizes a mildly oscillating close series around the
// scripted price, oldest first.
func (b *SimBroker) GetDailyCloses(ctx context.Context, symbol string, days int) ([]decimal.Decimal, error) {
	b.mu.Lock()
	price := b.priceLocked(symbol)
	b.mu.Unlock()

	wiggle := price.Div(decimal.NewFromInt(200))
	closes := make([]decimal.Decimal, days)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = price.Sub(wiggle)
		} else {
			closes[i] = price.Add(wiggle)
		}
	}
	return closes, nil
}

func (b *SimBroker) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.submitErr != nil {
		return nil, b.submitErr
	}

	b.nextID++
	orderID := fmt.Sprintf("sim-%d", b.nextID)
	if req.Type == models.OrderTypeLimit {
		b.open[orderID] = req
	}
	return &SubmitOrderResponse{OrderID: orderID, Status: "accepted"}, nil
}

func (b *SimBroker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.open, orderID)
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

func (b *SimBroker) RefreshToken(ctx context.Context) error {
	return nil
}
