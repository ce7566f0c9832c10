package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/commerce-engine/internal/domain/order"
)

const (
	orderColumns = `id, number, user_id, address_id, status, subtotal, shipping_cost, discount, total,
		coupon_code, shipping_method, created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT order_id, id, product_id, product_name, quantity, unit_price, total_price, variant
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	insertOrderSQL = `INSERT INTO orders (id, number, user_id, address_id, status, subtotal, shipping_cost,
		discount, total, coupon_code, shipping_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, position, product_id, product_name, quantity,
		unit_price, total_price, variant)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3, paid_at = $4, shipped_at = $5,
		delivered_at = $6, cancelled_at = $7
		WHERE id = $1`
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

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderSQL, id)
}

// ListByUser returns the orders of a buyer, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ptrs := make([]*order.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := loadItems(ctx, r.pool, ptrs...); err != nil {
		return nil, err
	}
	return orders, nil
}

func getOrder(ctx context.Context, q querier, query, id string) (*order.Order, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	if err := loadItems(ctx, q, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// loadItems fills Items of every given order with one query.
func loadItems(ctx context.Context, q querier, orders ...*order.Order) error {
	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = nil
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.TotalPrice, &it.Variant); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	return nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	_, err := tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, o.AddressID, string(o.Status), o.Subtotal, o.ShippingCost,
		o.Discount, o.Total, o.CouponCode, o.ShippingMethod, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateNumber
		}
		return fmt.Errorf("inserting order %q: %w", o.Number, err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(insertOrderItemSQL,
			it.ID, o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice, it.Variant)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting items of order %q: %w", o.Number, err)
	}
	return nil
}

func updateOrderStatus(ctx context.Context, q querier, o *order.Order) error {
	tag, err := q.Exec(ctx, updateOrderStatusSQL,
		o.ID, string(o.Status), o.UpdatedAt, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.AddressID, &status, &o.Subtotal, &o.ShippingCost, &o.Discount,
		&o.Total, &o.CouponCode, &o.ShippingMethod, &o.CreatedAt, &o.UpdatedAt,
		&o.PaidAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	o.Status = order.Status(status)
	return o, err
}
