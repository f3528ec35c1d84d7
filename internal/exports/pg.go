package exports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dropified/suredone-adapter/pkg/model"
)

// PGOrderQuerier resolves export configs against the local order tables.
type PGOrderQuerier struct {
	pool *pgxpool.Pool
}

func NewPGOrderQuerier(pool *pgxpool.Pool) *PGOrderQuerier {
	return &PGOrderQuerier{pool: pool}
}

// MatchingOrders returns the orders selected by the config's filters,
// ordered by order ID.
func (q *PGOrderQuerier) MatchingOrders(ctx context.Context, cfg model.ExportConfig) ([]model.Order, error) {
	query, args := BuildOrderQuery(cfg)
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	orderRows, err := q.pool.Query(ctx, `
		SELECT tenant_id, order_id, status, tracking_number, total::text, created_at, updated_at
		FROM suredone.orders
		WHERE tenant_id = $1 AND order_id = ANY($2)
		ORDER BY order_id
	`, cfg.TenantID, ids)
	if err != nil {
		return nil, err
	}
	defer orderRows.Close()

	var orders []model.Order
	for orderRows.Next() {
		var o model.Order
		var total string
		if err := orderRows.Scan(&o.TenantID, &o.OrderID, &o.Status, &o.TrackingNumber,
			&total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Total, _ = decimal.NewFromString(total)
		orders = append(orders, o)
	}
	return orders, orderRows.Err()
}
