package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the cart total, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, never more than the cart total.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when no coupon has the requested code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInvalidCoupon matches every *InvalidError.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrDuplicateCode is returned when creating a coupon whose code exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Reason explains why an existing coupon cannot be used.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonNotYetValid  Reason = "not yet valid"
	ReasonExpired      Reason = "expired"
	ReasonUsageLimit   Reason = "usage limit reached"
	ReasonBelowMinimum Reason = "below minimum"
)

// InvalidError is returned when a coupon exists but cannot be applied.
type InvalidError struct {
	Code   string
	Reason Reason
	// Minimum is set for ReasonBelowMinimum.
	Minimum decimal.Decimal
}

func (e *InvalidError) Error() string {
	if e.Reason == ReasonBelowMinimum {
		return fmt.Sprintf("coupon %s requires a minimum order of %s", e.Code, e.Minimum.StringFixed(2))
	}
	return fmt.Sprintf("coupon %s is %s", e.Code, e.Reason)
}

// Is reports whether target is ErrInvalidCoupon.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalidCoupon
}

// Coupon is a discount code and its eligibility rules.
type Coupon struct {
	Code          string
	DiscountType  DiscountType
	Value         decimal.Decimal
	MinOrderValue *decimal.Decimal
	MaxDiscount   *decimal.Decimal
	UsageLimit    *int
	UsageCount    int
	StartsAt      *time.Time
	ExpiresAt     *time.Time
	Active        bool
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeCode returns the canonical (upper-case, trimmed) form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository persists coupons. Lookups are case-insensitive.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
}
