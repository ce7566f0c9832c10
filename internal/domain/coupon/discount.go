package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the amount c takes off total. The result is never
// negative and never exceeds total.
func Discount(c *Coupon, total decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = total.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
			amount = *c.MaxDiscount
		}
	case DiscountFixed:
		amount = decimal.Min(c.Value, total)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
	amount = decimal.Max(amount, decimal.Zero)
	return decimal.Min(amount, decimal.Max(total, decimal.Zero)), nil
}
