package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-desk/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, customer_name, customer_address, customer_mobile1,
		customer_mobile2, items, subtotal, discount_amount, total_amount, coupon_code, agent_id, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	listOrdersSQL = `SELECT id, customer_name, customer_address, customer_mobile1, customer_mobile2,
		items, subtotal, discount_amount, total_amount, coupon_code, agent_id, date
		FROM orders ORDER BY date, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert persists o under a freshly generated id and returns it. The order
// items are serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Insert(ctx context.Context, o order.Order) (string, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return "", fmt.Errorf("marshaling order items: %w", err)
	}

	id := uuid.New().String()
	_, err = r.pool.Exec(ctx, insertOrderSQL,
		id, o.CustomerName, o.CustomerAddress, o.CustomerMobile1, o.CustomerMobile2,
		itemsJSON, o.Subtotal, o.DiscountAmount, o.TotalAmount, o.CouponCode, o.AgentID, o.Date,
	)
	if err != nil {
		return "", fmt.Errorf("inserting order: %w", err)
	}
	return id, nil
}

// List returns all orders, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.CustomerName, &o.CustomerAddress, &o.CustomerMobile1, &o.CustomerMobile2,
		&itemsJSON, &o.Subtotal, &o.DiscountAmount, &o.TotalAmount, &o.CouponCode, &o.AgentID, &o.Date,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	o.Date = o.Date.UTC()
	return o, nil
}
