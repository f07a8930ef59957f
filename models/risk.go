package models

import "github.com/shopspring/decimal"

// RiskMetrics is the read-only view of the risk gate's rolling state.
type RiskMetrics struct {
	DailyPnL       decimal.Decimal `json:"daily_pnl"`
	DailyTrades    int             `json:"daily_trades"`
	WinCount       int             `json:"win_count"`
	LossCount      int             `json:"loss_count"`
	WinRate        float64         `json:"win_rate"`
	OpenPositions  int             `json:"open_positions"`
	DailyRiskUsed  decimal.Decimal `json:"daily_risk_used"`
	DailyRiskLimit decimal.Decimal `json:"daily_risk_limit"`
	RiskUsagePct   float64         `json:"risk_usage_pct"`
}
