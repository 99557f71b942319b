package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/order"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository reads orders owned by the order service.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	o := &order.Order{}
	var status, currency string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, status, currency, delivered_at FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &status, &currency, &o.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = order.Status(status)
	o.Currency = payout.Currency(currency)

	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, seller_id, amount_due::text, commission::text
		 FROM order_items WHERE order_id = $1 ORDER BY position, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it order.Item
		var amount, commission string
		if err := rows.Scan(&it.ID, &it.SellerID, &amount, &commission); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.AmountDue, err = numericStringToDecimal(amount); err != nil {
			return nil, err
		}
		if it.Commission, err = numericStringToDecimal(commission); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}
