package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/commerce-engine/internal/domain/order"
)

var (
	_ order.UnitOfWork = (*UnitOfWork)(nil)
	_ order.Tx         = (*txStore)(nil)
)

// UnitOfWork runs order writes in a single read-committed transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that uses the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Do runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise, returning fn's error unchanged.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) (err error) {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := s.tx.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOutOfStock
	}
	return nil
}

func (s *txStore) IncrementStock(ctx context.Context, productID string, qty int) error {
	if _, err := s.tx.Exec(ctx, incrementStockSQL, productID, qty); err != nil {
		return fmt.Errorf("restoring stock of %q: %w", productID, err)
	}
	return nil
}

func (s *txStore) RedeemCoupon(ctx context.Context, code string) error {
	return redeemCoupon(ctx, s.tx, code)
}

func (s *txStore) ReleaseCoupon(ctx context.Context, code string) error {
	return releaseCoupon(ctx, s.tx, code)
}

func (s *txStore) InsertOrder(ctx context.Context, o *order.Order) error {
	return insertOrder(ctx, s.tx, o)
}

func (s *txStore) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	o, err := getOrder(ctx, s.tx, getOrderForUpdateSQL, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("locking order: %w", err)
	}
	return o, nil
}

func (s *txStore) UpdateStatus(ctx context.Context, o *order.Order) error {
	return updateOrderStatus(ctx, s.tx, o)
}
