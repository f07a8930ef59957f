package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the last account state fetched from the broker.
type AccountSnapshot struct {
	AvailableCash decimal.Decimal `json:"available_cash"`
	OrderableCash decimal.Decimal `json:"orderable_cash"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	LastSyncTime  time.Time       `json:"last_sync_time"`
}

// AccountInfo combines the cached broker snapshot with live reservation
// totals. InternalAvailable is the amount the ledger will actually let new
// orders spend.
type AccountInfo struct {
	AvailableCash       decimal.Decimal `json:"available_cash"`
	OrderableCash       decimal.Decimal `json:"orderable_cash"`
	TotalBalance        decimal.Decimal `json:"total_balance"`
	InternalAvailable   decimal.Decimal `json:"internal_available"`
	OrderedAmount       decimal.Decimal `json:"ordered_amount"`
	PendingReservations int             `json:"pending_reservations"`
	LastSyncTime        time.Time       `json:"last_sync_time"`
}
