package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TradeStatus string

const (
	TradeStatusExecuted  TradeStatus = "executed"
	TradeStatusCancelled TradeStatus = "cancelled"
)

// Trade is a confirmed fill. PnL is realized profit on SELL fills and
// zero on BUY fills.
type Trade struct {
	ID         uuid.UUID       `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	PnL        decimal.Decimal `json:"pnl"`
	StrategyID string          `json:"strategy_id,omitempty"`
	Status     TradeStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Value returns the notional value of the trade.
func (t *Trade) Value() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

func NewTrade(symbol string, side Side, quantity int64, price, pnl decimal.Decimal, strategyID string) *Trade {
	return &Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		PnL:        pnl,
		StrategyID: strategyID,
		Status:     TradeStatusExecuted,
		CreatedAt:  time.Now(),
	}
}
