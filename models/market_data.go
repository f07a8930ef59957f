package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote represents real-time quote data for a symbol
type Quote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// InstrumentInfo is instrument metadata from the broker. LotSize is the
// minimum tradable increment; order quantities must be multiples of it.
type InstrumentInfo struct {
	Symbol  string `json:"symbol"`
	Name    string `json:"name,omitempty"`
	LotSize int64  `json:"lot_size"`
}
