package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result is a successful validation against a cart total.
type Result struct {
	Code       string
	Discount   decimal.Decimal
	FinalTotal decimal.Decimal
}

// Check runs the eligibility rules in order and returns the first failure:
// inactive, not yet valid, expired, usage limit reached, below minimum.
func Check(c *Coupon, total decimal.Decimal, now time.Time) error {
	fail := func(r Reason) error {
		return &InvalidError{Code: c.Code, Reason: r}
	}
	if !c.Active {
		return fail(ReasonInactive)
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return fail(ReasonNotYetValid)
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return fail(ReasonExpired)
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return fail(ReasonUsageLimit)
	}
	if c.MinOrderValue != nil && total.LessThan(*c.MinOrderValue) {
		return &InvalidError{Code: c.Code, Reason: ReasonBelowMinimum, Minimum: *c.MinOrderValue}
	}
	return nil
}

// Evaluate checks c against total and computes the discount.
func Evaluate(c *Coupon, total decimal.Decimal, now time.Time) (*Result, error) {
	if err := Check(c, total, now); err != nil {
		return nil, err
	}
	discount, err := Discount(c, total)
	if err != nil {
		return nil, err
	}
	// FinalTotal comes from the rounded discount so the two add up to total.
	discount = discount.Round(2)
	return &Result{
		Code:       c.Code,
		Discount:   discount,
		FinalTotal: total.Sub(discount).Round(2),
	}, nil
}
