package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrLockTimeout means the ledger lock could not be acquired in time.
	// The default policy is to reject the reservation rather than proceed
	// unsynchronized.
	ErrLockTimeout = errors.New("ledger lock acquisition timed out")

	// ErrInsufficientFunds means the requested reservation exceeds the
	// margin-adjusted internal available cash.
	ErrInsufficientFunds = errors.New("insufficient available cash")

	// ErrInsufficientPosition means a SELL asked for more than is held.
	ErrInsufficientPosition = errors.New("insufficient position quantity")

	// ErrNoSnapshot means the ledger has never successfully synced and has
	// no cash figures to reserve against.
	ErrNoSnapshot = errors.New("no account snapshot available")
)

// Risk limit identifiers, surfaced as rejection reasons.
const (
	LimitMaxPositionSize      = "max_position_size"
	LimitMaxPositionPerSymbol = "max_position_per_symbol"
	LimitMaxOpenPositions     = "max_open_positions"
	LimitMaxDailyRisk         = "max_daily_risk"
	LimitMaxVolatility        = "max_volatility"
)

// RiskError is a structured risk gate rejection naming the limit that
// triggered it. It is a terminal business outcome, never retried.
type RiskError struct {
	Limit   string
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk limit %s: %s", e.Limit, e.Message)
}

// AsRiskError unwraps err into a RiskError if it is one.
func AsRiskError(err error) (*RiskError, bool) {
	var re *RiskError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
