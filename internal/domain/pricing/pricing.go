// Package pricing derives sale prices from cost, margin, tax and payment
// processor fees, and builds installment schedules.
//
// All arithmetic runs at full decimal precision; Breakdown.Rounded rounds to
// cents for presentation.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/settings"
)

var (
	// ErrInvalidFeeRate is returned when the processor fee is 100% or more,
	// which makes fee pass-through impossible.
	ErrInvalidFeeRate = errors.New("processor fee rate must be below 100%")
	// ErrNegativeInput is returned for negative prices or percentages.
	ErrNegativeInput = errors.New("prices and percentages must not be negative")
	// ErrDiscountTooLarge is returned for a discount above 100%.
	ErrDiscountTooLarge = errors.New("discount must not exceed 100%")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Params are the store-wide knobs, as fractions (0.15 for 15%).
type Params struct {
	TaxRate             decimal.Decimal
	FeeRate             decimal.Decimal
	FixedFee            decimal.Decimal
	DefaultMargin       decimal.Decimal
	MaxInstallments     int
	NoFeeInstallments   int
	MinInstallmentValue decimal.Decimal
}

// ParamsFrom converts percent-based settings into Params.
func ParamsFrom(s *settings.Settings) Params {
	return Params{
		TaxRate:             s.TaxRate.Div(hundred),
		FeeRate:             s.ProcessorFeePercent.Div(hundred),
		FixedFee:            s.ProcessorFixedFee,
		DefaultMargin:       s.DefaultProfitMargin.Div(hundred),
		MaxInstallments:     s.MaxInstallments,
		NoFeeInstallments:   s.NoFeeInstallments,
		MinInstallmentValue: s.MinInstallmentValue,
	}
}

// Input describes one product to price.
type Input struct {
	// Base is the landed cost in local currency.
	Base decimal.Decimal
	// Margin overrides Params.DefaultMargin when set (fraction).
	Margin *decimal.Decimal
	// Discount is a fraction taken off the final price.
	Discount decimal.Decimal
	// MaxInstallments overrides Params.MaxInstallments when positive.
	MaxInstallments int
}

// Installment is one entry of a payment schedule.
type Installment struct {
	Count int
	Value decimal.Decimal
	Total decimal.Decimal
	NoFee bool
}

// Breakdown is every intermediate price of a calculation.
type Breakdown struct {
	Base              decimal.Decimal
	PriceWithProfit   decimal.Decimal
	PriceWithTax      decimal.Decimal
	FinalPrice        decimal.Decimal
	DiscountedPrice   decimal.Decimal
	ProcessorFee      decimal.Decimal
	RealProfit        decimal.Decimal
	RealProfitPercent decimal.Decimal
	Installments      []Installment
}

// Compute runs the pricing pipeline.
func Compute(p Params, in Input) (Breakdown, error) {
	if p.FeeRate.GreaterThanOrEqual(one) || p.FeeRate.IsNegative() {
		return Breakdown{}, ErrInvalidFeeRate
	}
	margin := p.DefaultMargin
	if in.Margin != nil {
		margin = *in.Margin
	}
	if in.Base.IsNegative() || margin.IsNegative() || in.Discount.IsNegative() {
		return Breakdown{}, ErrNegativeInput
	}
	if in.Discount.GreaterThan(one) {
		return Breakdown{}, ErrDiscountTooLarge
	}

	var b Breakdown
	b.Base = in.Base
	b.PriceWithProfit = b.Base.Mul(one.Add(margin))
	b.PriceWithTax = b.PriceWithProfit.Mul(one.Add(p.TaxRate))
	b.FinalPrice = FinalPrice(b.PriceWithTax, p.FeeRate, p.FixedFee)
	b.DiscountedPrice = b.FinalPrice.Mul(one.Sub(in.Discount))
	b.ProcessorFee = ProcessorFee(b.DiscountedPrice, p.FeeRate, p.FixedFee)
	b.RealProfit = b.DiscountedPrice.Sub(b.ProcessorFee).Sub(b.Base)
	if b.Base.IsPositive() {
		b.RealProfitPercent = b.RealProfit.Div(b.Base).Mul(hundred)
	}

	maxN := p.MaxInstallments
	if in.MaxInstallments > 0 {
		maxN = in.MaxInstallments
	}
	b.Installments = Installments(b.DiscountedPrice, maxN, p.NoFeeInstallments, p.MinInstallmentValue)
	return b, nil
}

// FinalPrice grosses net up so the merchant still receives net after the
// processor takes its percentage of the sale plus the fixed fee.
func FinalPrice(net, feeRate, fixedFee decimal.Decimal) decimal.Decimal {
	return net.Add(fixedFee).DivRound(one.Sub(feeRate), 16)
}

// ProcessorFee is what the processor charges on a sale of price.
func ProcessorFee(price, feeRate, fixedFee decimal.Decimal) decimal.Decimal {
	return price.Mul(feeRate).Add(fixedFee)
}

// Installments lists splits 1..maxN of price. A split is offered when each
// payment is at least minValue; paying in full is always offered.
func Installments(price decimal.Decimal, maxN, noFee int, minValue decimal.Decimal) []Installment {
	out := make([]Installment, 0, maxN)
	for i := 1; i <= maxN; i++ {
		value := price.DivRound(decimal.NewFromInt(int64(i)), 16)
		if i > 1 && value.LessThan(minValue) {
			continue
		}
		out = append(out, Installment{
			Count: i,
			Value: value,
			Total: price,
			NoFee: i <= noFee,
		})
	}
	return out
}

// Rounded returns a copy with every amount rounded to cents.
func (b Breakdown) Rounded() Breakdown {
	r := Breakdown{
		Base:              b.Base.Round(2),
		PriceWithProfit:   b.PriceWithProfit.Round(2),
		PriceWithTax:      b.PriceWithTax.Round(2),
		FinalPrice:        b.FinalPrice.Round(2),
		DiscountedPrice:   b.DiscountedPrice.Round(2),
		ProcessorFee:      b.ProcessorFee.Round(2),
		RealProfit:        b.RealProfit.Round(2),
		RealProfitPercent: b.RealProfitPercent.Round(2),
		Installments:      make([]Installment, len(b.Installments)),
	}
	for i, in := range b.Installments {
		r.Installments[i] = Installment{
			Count: in.Count,
			Value: in.Value.Round(2),
			Total: in.Total.Round(2),
			NoFee: in.NoFee,
		}
	}
	return r
}
