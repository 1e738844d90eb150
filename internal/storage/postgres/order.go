package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coursehub/internal/domain/order"
)

const (
	orderColumns = `id, amount, currency, status, provider, owner_id, note, customer_email, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	renameOrderSQL = `UPDATE orders SET id = $2, updated_at = now() WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE status = ANY($1) AND created_at < $2
	ORDER BY created_at, id
	LIMIT $3`
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

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Amount, o.Currency, o.Status, o.Provider, o.OwnerID,
		o.Note, o.CustomerEmail, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order by its identifier.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
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
	return &o, nil
}

// UpdateStatus overwrites the status of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.execOne(ctx, updateOrderStatusSQL, id, status)
}

// Rename changes the primary key of an order. Enrollments referencing it
// follow through ON UPDATE CASCADE.
func (r *OrderRepository) Rename(ctx context.Context, oldID, newID string) error {
	return r.execOne(ctx, renameOrderSQL, oldID, newID)
}

// Delete removes an order.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, deleteOrderSQL, id)
}

// ListByStatus returns up to limit orders in one of statuses created before
// the given time, oldest first.
func (r *OrderRepository) ListByStatus(ctx context.Context, statuses []string, createdBefore time.Time, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByStatusSQL, statuses, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// execOne runs a statement keyed by order id and maps "no row" to
// order.ErrNotFound.
func (r *OrderRepository) execOne(ctx context.Context, sql, id string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Amount, &o.Currency, &o.Status, &o.Provider, &o.OwnerID,
		&o.Note, &o.CustomerEmail, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
