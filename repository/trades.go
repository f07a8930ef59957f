package repository

import (
	"context"
	"fmt"
	"time"

	"trade-engine/models"
	"trade-engine/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SaveTrade creates a new trade record
func (r *Repository) SaveTrade(ctx context.Context, trade *models.Trade) error {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "trades")

	_, err := r.db.Exec(ctx, `
		INSERT INTO trades (id, symbol, side, quantity, price, pnl, strategy_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, trade.ID, trade.Symbol, trade.Side, trade.Quantity, trade.Price, trade.PnL,
		trade.StrategyID, trade.Status, trade.CreatedAt)

	if err != nil {
		metrics.RecordDBError("insert", "trades")
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// GetTrades returns trades with optional limit
func (r *Repository) GetTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, symbol, side, quantity, price, pnl, strategy_id, status, created_at
		FROM trades
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetTrade returns a single trade by ID
func (r *Repository) GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	var t models.Trade
	err := r.db.QueryRow(ctx, `
		SELECT id, symbol, side, quantity, price, pnl, strategy_id, status, created_at
		FROM trades WHERE id = $1
	`, id).Scan(&t.ID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.PnL, &t.StrategyID, &t.Status, &t.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade: %w", err)
	}

	return &t, nil
}

// GetTradesBySymbol returns trades for a specific symbol
func (r *Repository) GetTradesBySymbol(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, symbol, side, quantity, price, pnl, strategy_id, status, created_at
		FROM trades
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetDailyPnL sums realized PnL for trades executed since the given day
// boundary.
func (r *Repository) GetDailyPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var pnl decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE created_at >= $1
	`, since).Scan(&pnl)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum daily pnl: %w", err)
	}
	return pnl, nil
}

func scanTrades(rows pgx.Rows) ([]models.Trade, error) {
	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.PnL, &t.StrategyID, &t.Status, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}
