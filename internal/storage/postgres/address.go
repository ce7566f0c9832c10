package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/commerce-engine/internal/domain/address"
)

const (
	findOwnedAddressSQL = `SELECT id, user_id, recipient, line1, line2, city, state, postal_code, country
		FROM addresses WHERE id = $1 AND user_id = $2`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, recipient, line1, line2, city, state, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, recipient = EXCLUDED.recipient, line1 = EXCLUDED.line1,
			line2 = EXCLUDED.line2, city = EXCLUDED.city, state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code, country = EXCLUDED.country`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// FindOwnedByUser returns the address only if userID owns it.
func (r *AddressRepository) FindOwnedByUser(ctx context.Context, id, userID string) (*address.Address, error) {
	var a address.Address
	err := r.pool.QueryRow(ctx, findOwnedAddressSQL, id, userID).Scan(
		&a.ID, &a.UserID, &a.Recipient, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("finding address %q: %w", id, err)
	}
	return &a, nil
}

// Upsert inserts or replaces an address. Used by seeding.
func (r *AddressRepository) Upsert(ctx context.Context, a *address.Address) error {
	_, err := r.pool.Exec(ctx, upsertAddressSQL,
		a.ID, a.UserID, a.Recipient, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country)
	if err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}
