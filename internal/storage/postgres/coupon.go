package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, value, min_order_value, max_discount, usage_limit, usage_count,
		starts_at, expires_at, active, description, created_at, updated_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = UPPER($1)`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, code`

	insertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_order_value, max_discount,
		usage_limit, starts_at, expires_at, active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateCouponSQL = `UPDATE coupons SET discount_type = $2, value = $3, min_order_value = $4,
		max_discount = $5, usage_limit = $6, starts_at = $7, expires_at = $8, active = $9,
		description = $10, updated_at = $11
		WHERE code = $1`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_order_value, max_discount,
		usage_limit, starts_at, expires_at, active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			min_order_value = EXCLUDED.min_order_value, max_discount = EXCLUDED.max_discount,
			usage_limit = EXCLUDED.usage_limit, starts_at = EXCLUDED.starts_at,
			expires_at = EXCLUDED.expires_at, active = EXCLUDED.active,
			description = EXCLUDED.description, updated_at = EXCLUDED.updated_at`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`

	// A single conditional UPDATE so concurrent redemptions can never push
	// usage_count past usage_limit.
	redeemCouponSQL = `UPDATE coupons SET usage_count = usage_count + 1, updated_at = now()
		WHERE code = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`

	releaseCouponSQL = `UPDATE coupons SET usage_count = usage_count - 1, updated_at = now()
		WHERE code = $1 AND usage_count > 0`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrNotFound when no coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, r.pool, code)
}

func findCoupon(ctx context.Context, q querier, code string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create inserts a new coupon. Returns coupon.ErrDuplicateCode if the code
// is taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL, couponArgs(c)...)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Upsert inserts or replaces a coupon, keeping its usage count. Used by the
// bulk importer.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update replaces the editable fields of an existing coupon.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.Code, string(c.DiscountType), c.Value, nullDecimal(c.MinOrderValue), nullDecimal(c.MaxDiscount),
		nullInt(c.UsageLimit), c.StartsAt, c.ExpiresAt, c.Active, c.Description, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// redeemCoupon counts one use of code.
func redeemCoupon(ctx context.Context, q querier, code string) error {
	tag, err := q.Exec(ctx, redeemCouponSQL, code)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := findCoupon(ctx, q, code); err != nil {
			return err
		}
		return &coupon.InvalidError{Code: code, Reason: coupon.ReasonUsageLimit}
	}
	return nil
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.Code, string(c.DiscountType), c.Value, nullDecimal(c.MinOrderValue), nullDecimal(c.MaxDiscount),
		nullInt(c.UsageLimit), c.StartsAt, c.ExpiresAt, c.Active, c.Description, c.CreatedAt, c.UpdatedAt,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		minOrder     decimal.NullDecimal
		maxDiscount  decimal.NullDecimal
		usageLimit   *int32
		usageCount   int32
		startsAt     *time.Time
		expiresAt    *time.Time
	)
	err := row.Scan(
		&c.Code, &discountType, &c.Value, &minOrder, &maxDiscount, &usageLimit, &usageCount,
		&startsAt, &expiresAt, &c.Active, &c.Description, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.MinOrderValue = decimalPtr(minOrder)
	c.MaxDiscount = decimalPtr(maxDiscount)
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	c.UsageCount = int(usageCount)
	c.StartsAt = startsAt
	c.ExpiresAt = expiresAt
	return c, err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

func nullInt(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

// releaseCoupon gives back one use of code.
func releaseCoupon(ctx context.Context, q querier, code string) error {
	if _, err := q.Exec(ctx, releaseCouponSQL, code); err != nil {
		return fmt.Errorf("releasing coupon %q: %w", code, err)
	}
	return nil
}
