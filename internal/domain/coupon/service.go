package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ValidationError reports an invalid coupon definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Input is the admin-editable part of a coupon.
type Input struct {
	Code          string
	DiscountType  DiscountType
	Value         decimal.Decimal
	MinOrderValue *decimal.Decimal
	MaxDiscount   *decimal.Decimal
	UsageLimit    *int
	StartsAt      *time.Time
	ExpiresAt     *time.Time
	Active        bool
	Description   string
}

// Service validates coupons at checkout and manages them for admins.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Validate looks code up and evaluates it against cartTotal. It never
// changes the usage counter.
func (s *Service) Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (*Result, error) {
	c, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return Evaluate(c, cartTotal, s.now())
}

// Get returns a coupon by code, case-insensitively.
func (s *Service) Get(ctx context.Context, code string) (*Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	return c, nil
}

// List returns every coupon.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}

// Create stores a new coupon with a zero usage count.
func (s *Service) Create(ctx context.Context, in Input) (*Coupon, error) {
	in.Code = NormalizeCode(in.Code)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	c := &Coupon{CreatedAt: now, UpdatedAt: now}
	in.Apply(c)
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Update replaces the editable fields of the coupon identified by code.
// The code itself and the usage count are not editable.
func (s *Service) Update(ctx context.Context, code string, in Input) (*Coupon, error) {
	c, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	in.Code = c.Code
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.Apply(c)
	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Delete removes a coupon.
func (s *Service) Delete(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if err := s.repo.Delete(ctx, code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}

// Apply copies the editable fields of in onto c.
func (in Input) Apply(c *Coupon) {
	c.Code = in.Code
	c.DiscountType = in.DiscountType
	c.Value = in.Value
	c.MinOrderValue = in.MinOrderValue
	c.MaxDiscount = in.MaxDiscount
	c.UsageLimit = in.UsageLimit
	c.StartsAt = in.StartsAt
	c.ExpiresAt = in.ExpiresAt
	c.Active = in.Active
	c.Description = in.Description
}

// Validate checks in for internal consistency. Codes are expected to be
// normalized already.
func (in Input) Validate() error {
	if in.Code == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	if !in.Value.IsPositive() {
		return &ValidationError{Field: "value", Reason: "must be positive"}
	}
	switch in.DiscountType {
	case DiscountPercentage:
		if in.Value.GreaterThan(hundred) {
			return &ValidationError{Field: "value", Reason: "percentage cannot exceed 100"}
		}
		if in.MaxDiscount != nil && !in.MaxDiscount.IsPositive() {
			return &ValidationError{Field: "maxDiscount", Reason: "must be positive"}
		}
	case DiscountFixed:
		if in.MaxDiscount != nil {
			return &ValidationError{Field: "maxDiscount", Reason: "only applies to percentage coupons"}
		}
	default:
		return &ValidationError{Field: "discountType", Reason: "must be percentage or fixed"}
	}
	if in.MinOrderValue != nil && in.MinOrderValue.IsNegative() {
		return &ValidationError{Field: "minOrderValue", Reason: "must not be negative"}
	}
	if in.UsageLimit != nil && *in.UsageLimit < 1 {
		return &ValidationError{Field: "usageLimit", Reason: "must be at least 1"}
	}
	if in.StartsAt != nil && in.ExpiresAt != nil && !in.StartsAt.Before(*in.ExpiresAt) {
		return &ValidationError{Field: "expiresAt", Reason: "must be after startsAt"}
	}
	return nil
}
