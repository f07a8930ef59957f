package repository

import (
	"context"
	"fmt"

	"trade-engine/models"
	"trade-engine/observability"

	"github.com/jackc/pgx/v5"
)

// SavePosition upserts the current state of a position by symbol. A zero
// quantity removes the row; the book drops closed positions the same way.
func (r *Repository) SavePosition(ctx context.Context, pos *models.Position) error {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("upsert", "positions")

	if pos.Quantity == 0 {
		if _, err := r.db.Exec(ctx, `DELETE FROM positions WHERE symbol = $1`, pos.Symbol); err != nil {
			metrics.RecordDBError("delete", "positions")
			return fmt.Errorf("failed to delete closed position: %w", err)
		}
		return nil
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO positions (symbol, quantity, avg_price, realized_pnl, current_price, unrealized_pnl, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol) DO UPDATE
		SET quantity = EXCLUDED.quantity, avg_price = EXCLUDED.avg_price,
		    realized_pnl = EXCLUDED.realized_pnl, current_price = EXCLUDED.current_price,
		    unrealized_pnl = EXCLUDED.unrealized_pnl, updated_at = EXCLUDED.updated_at
	`, pos.Symbol, pos.Quantity, pos.AvgPrice, pos.RealizedPnL, pos.CurrentPrice, pos.UnrealizedPnL, pos.UpdatedAt)

	if err != nil {
		metrics.RecordDBError("upsert", "positions")
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// GetPositions returns all persisted positions
func (r *Repository) GetPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := r.db.Query(ctx, `
		SELECT symbol, quantity, avg_price, realized_pnl, current_price, unrealized_pnl, updated_at
		FROM positions
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		err := rows.Scan(&p.Symbol, &p.Quantity, &p.AvgPrice, &p.RealizedPnL, &p.CurrentPrice, &p.UnrealizedPnL, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	return positions, nil
}

// GetPositionBySymbol returns a persisted position by symbol
func (r *Repository) GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error) {
	var p models.Position
	err := r.db.QueryRow(ctx, `
		SELECT symbol, quantity, avg_price, realized_pnl, current_price, unrealized_pnl, updated_at
		FROM positions WHERE symbol = $1
	`, symbol).Scan(&p.Symbol, &p.Quantity, &p.AvgPrice, &p.RealizedPnL, &p.CurrentPrice, &p.UnrealizedPnL, &p.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query position: %w", err)
	}

	return &p, nil
}
