package repository

import (
	"context"
	"fmt"

	"trade-engine/models"
	"trade-engine/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveOrder inserts or updates an order record. The executor calls this at
// every lifecycle transition, so the row converges on the terminal status.
func (r *Repository) SaveOrder(ctx context.Context, order *models.OrderRecord) error {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("upsert", "orders")

	_, err := r.db.Exec(ctx, `
		INSERT INTO orders (id, order_id, symbol, side, quantity, price, order_type, strategy_id, reason, commission, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE
		SET order_id = EXCLUDED.order_id, quantity = EXCLUDED.quantity, price = EXCLUDED.price,
		    reason = EXCLUDED.reason, commission = EXCLUDED.commission, status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
	`, order.ID, order.OrderID, order.Symbol, order.Side, order.Quantity, order.Price,
		order.OrderType, order.StrategyID, order.Reason, order.Commission, order.Status,
		order.CreatedAt, order.UpdatedAt)

	if err != nil {
		metrics.RecordDBError("upsert", "orders")
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetOrders returns order records with optional limit
func (r *Repository) GetOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "orders")

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, symbol, side, quantity, price, order_type, strategy_id, reason, commission, status, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		metrics.RecordDBError("select", "orders")
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetOrder returns a single order record by internal ID
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*models.OrderRecord, error) {
	var o models.OrderRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, symbol, side, quantity, price, order_type, strategy_id, reason, commission, status, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.OrderID, &o.Symbol, &o.Side, &o.Quantity, &o.Price, &o.OrderType,
		&o.StrategyID, &o.Reason, &o.Commission, &o.Status, &o.CreatedAt, &o.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	return &o, nil
}

// GetOrdersBySymbol returns order records for a specific symbol
func (r *Repository) GetOrdersBySymbol(ctx context.Context, symbol string, limit int) ([]models.OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, symbol, side, quantity, price, order_type, strategy_id, reason, commission, status, created_at, updated_at
		FROM orders
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]models.OrderRecord, error) {
	var orders []models.OrderRecord
	for rows.Next() {
		var o models.OrderRecord
		err := rows.Scan(&o.ID, &o.OrderID, &o.Symbol, &o.Side, &o.Quantity, &o.Price, &o.OrderType,
			&o.StrategyID, &o.Reason, &o.Commission, &o.Status, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}
