package engine

import (
	"sort"
	"sync"
	"time"

	"trade-engine/models"
	"trade-engine/observability"

	"github.com/shopspring/decimal"
)

// PositionBook tracks per-symbol holdings, mutated only by confirmed
// fills. Quantity never goes negative; an entry is removed when it
// reaches zero.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions: make(map[string]*models.Position),
	}
}

// ApplyFill applies a confirmed fill to the book and returns the realized
// PnL (zero for buys). A BUY folds the fill into the weighted-average
// cost; a SELL books quantity * (price - avgPrice), clamped to the held
// quantity. Selling a symbol with no position is an error.
func (b *PositionBook) ApplyFill(symbol string, side models.Side, quantity int64, price decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, ErrInsufficientPosition
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	position, exists := b.positions[symbol]

	if side == models.SideBuy {
		if !exists {
			b.positions[symbol] = &models.Position{
				Symbol:       symbol,
				Quantity:     quantity,
				AvgPrice:     price,
				RealizedPnL:  decimal.Zero,
				CurrentPrice: price,
				UpdatedAt:    time.Now(),
			}
			return decimal.Zero, nil
		}

		oldQty := decimal.NewFromInt(position.Quantity)
		newQty := decimal.NewFromInt(position.Quantity + quantity)
		cost := oldQty.Mul(position.AvgPrice).Add(decimal.NewFromInt(quantity).Mul(price))
		position.AvgPrice = cost.Div(newQty)
		position.Quantity += quantity
		position.CurrentPrice = price
		position.UpdatedAt = time.Now()
		return decimal.Zero, nil
	}

	if !exists || position.Quantity == 0 {
		return decimal.Zero, ErrInsufficientPosition
	}

	sellQty := quantity
	if sellQty > position.Quantity {
		observability.Warn("sell clamped to held quantity",
			"symbol", symbol,
			"requested", quantity,
			"held", position.Quantity)
		sellQty = position.Quantity
	}

	realized := price.Sub(position.AvgPrice).Mul(decimal.NewFromInt(sellQty))
	position.Quantity -= sellQty
	position.RealizedPnL = position.RealizedPnL.Add(realized)
	position.CurrentPrice = price
	position.UpdatedAt = time.Now()

	if position.Quantity == 0 {
		delete(b.positions, symbol)
	}

	return realized, nil
}

// Restore seeds the book from persisted positions at startup. Entries
// with zero quantity are skipped.
func (b *PositionBook) Restore(positions []models.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, position := range positions {
		if position.Quantity <= 0 {
			continue
		}
		restored := position
		b.positions[position.Symbol] = &restored
	}
}

// UpdateMark sets the symbol's current price and refreshes unrealized PnL.
func (b *PositionBook) UpdateMark(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	position, exists := b.positions[symbol]
	if !exists {
		return
	}
	position.CurrentPrice = price
	position.UnrealizedPnL = position.CalculateUnrealizedPnL()
	position.UpdatedAt = time.Now()
}

// Get returns a copy of the symbol's position.
func (b *PositionBook) Get(symbol string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	position, exists := b.positions[symbol]
	if !exists {
		return models.Position{}, false
	}
	return *position, true
}

// Quantity returns the held quantity for a symbol, zero when none.
func (b *PositionBook) Quantity(symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if position, exists := b.positions[symbol]; exists {
		return position.Quantity
	}
	return 0
}

// All returns copies of every open position, sorted by symbol.
func (b *PositionBook) All() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	positions := make([]models.Position, 0, len(b.positions))
	for _, position := range b.positions {
		positions = append(positions, *position)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions
}

// Count returns the number of open positions.
func (b *PositionBook) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
