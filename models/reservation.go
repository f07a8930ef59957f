package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reservation is a provisional hold against available cash for an order
// that has not yet been confirmed filled or failed. Owned exclusively by
// the account ledger.
type Reservation struct {
	ID        uuid.UUID       `json:"id"`
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
