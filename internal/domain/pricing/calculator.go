package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/currency"
	"github.com/xenking/commerce-engine/internal/domain/settings"
)

// SettingsSource loads the current store settings.
type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// RateSource resolves the exchange rate.
type RateSource interface {
	GetRate(ctx context.Context) currency.Rate
}

// Request is a price simulation request. Percentages are human percentages.
type Request struct {
	CostPrice       *decimal.Decimal
	PriceInDollar   *decimal.Decimal
	ProfitPercent   *decimal.Decimal
	DiscountPercent decimal.Decimal
	Installments    int
}

// Result is a Breakdown plus the rate used, if any.
type Result struct {
	Breakdown Breakdown
	Rate      *currency.Rate
}

// Calculator prices products using the current settings and rate.
type Calculator struct {
	settings SettingsSource
	rates    RateSource
}

// NewCalculator creates a Calculator.
func NewCalculator(s SettingsSource, r RateSource) *Calculator {
	return &Calculator{settings: s, rates: r}
}

// Calculate resolves the base price and runs Compute. The dollar price takes
// precedence over the cost price; with neither, the base is zero.
func (c *Calculator) Calculate(ctx context.Context, req Request) (*Result, error) {
	st, err := c.settings.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}

	var (
		res Result
		in  Input
	)
	switch {
	case req.PriceInDollar != nil:
		if req.PriceInDollar.IsNegative() {
			return nil, ErrNegativeInput
		}
		rate := c.rates.GetRate(ctx)
		res.Rate = &rate
		in.Base = req.PriceInDollar.Mul(rate.Value)
	case req.CostPrice != nil:
		in.Base = *req.CostPrice
	default:
		in.Base = decimal.Zero
	}
	if req.ProfitPercent != nil {
		m := req.ProfitPercent.Div(hundred)
		in.Margin = &m
	}
	in.Discount = req.DiscountPercent.Div(hundred)
	in.MaxInstallments = req.Installments

	b, err := Compute(ParamsFrom(st), in)
	if err != nil {
		return nil, err
	}
	res.Breakdown = b
	return &res, nil
}
