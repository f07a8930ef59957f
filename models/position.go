package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a per-symbol holding. Quantity never goes negative; the
// entry is removed from the book when it reaches zero.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarketValue returns quantity at the given price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// CalculateUnrealizedPnL marks the position against CurrentPrice.
func (p *Position) CalculateUnrealizedPnL() decimal.Decimal {
	if p.CurrentPrice.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// PnLRate returns the fractional gain or loss against average cost,
// e.g. 0.05 for +5%. Zero when the position has no cost basis.
func (p *Position) PnLRate(price decimal.Decimal) decimal.Decimal {
	if p.AvgPrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.AvgPrice).Div(p.AvgPrice)
}
