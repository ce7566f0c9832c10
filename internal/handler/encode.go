package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/currency"
	"github.com/xenking/commerce-engine/internal/domain/order"
	"github.com/xenking/commerce-engine/internal/domain/pricing"
	"github.com/xenking/commerce-engine/internal/domain/product"
	"github.com/xenking/commerce-engine/internal/domain/settings"
)

// writeJSON encodes the body with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// Money is always sent as a string with two decimals.
func money(e *jx.Encoder, field string, d decimal.Decimal) {
	e.FieldStart(field)
	e.Str(d.StringFixed(2))
}

func optMoney(e *jx.Encoder, field string, d *decimal.Decimal) {
	if d != nil {
		money(e, field, *d)
	}
}

func timestamp(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339))
}

func optTimestamp(e *jx.Encoder, field string, t *time.Time) {
	if t != nil {
		timestamp(e, field, *t)
	}
}

func optString(e *jx.Encoder, field, v string) {
	if v != "" {
		e.FieldStart(field)
		e.Str(v)
	}
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("category")
	e.Str(p.Category)
	money(e, "price", p.Price)
	e.FieldStart("active")
	e.Bool(p.Active)
	e.FieldStart("track_stock")
	e.Bool(p.TrackStock)
	if p.TrackStock {
		e.FieldStart("stock")
		e.Int(p.Stock)
	}
	optString(e, "image", p.Image)
	e.ObjEnd()
}

func encodeRate(e *jx.Encoder, r currency.Rate) {
	e.ObjStart()
	e.FieldStart("value")
	e.Str(r.Value.StringFixed(4))
	e.FieldStart("source")
	e.Str(string(r.Source))
	optTimestamp(e, "updated_at", r.UpdatedAt)
	e.ObjEnd()
}

func encodeBreakdown(e *jx.Encoder, res *pricing.Result) {
	b := res.Breakdown.Rounded()
	e.ObjStart()
	money(e, "base", b.Base)
	money(e, "price_with_profit", b.PriceWithProfit)
	money(e, "price_with_tax", b.PriceWithTax)
	money(e, "final_price", b.FinalPrice)
	money(e, "discounted_price", b.DiscountedPrice)
	money(e, "processor_fee", b.ProcessorFee)
	money(e, "real_profit", b.RealProfit)
	money(e, "real_profit_percent", b.RealProfitPercent)
	e.FieldStart("installments")
	e.ArrStart()
	for _, in := range b.Installments {
		e.ObjStart()
		e.FieldStart("count")
		e.Int(in.Count)
		money(e, "value", in.Value)
		money(e, "total", in.Total)
		e.FieldStart("no_fee")
		e.Bool(in.NoFee)
		e.ObjEnd()
	}
	e.ArrEnd()
	if res.Rate != nil {
		e.FieldStart("rate")
		encodeRate(e, *res.Rate)
	}
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discount_type")
	e.Str(string(c.DiscountType))
	money(e, "value", c.Value)
	optMoney(e, "min_order_value", c.MinOrderValue)
	optMoney(e, "max_discount", c.MaxDiscount)
	if c.UsageLimit != nil {
		e.FieldStart("usage_limit")
		e.Int(*c.UsageLimit)
	}
	e.FieldStart("usage_count")
	e.Int(c.UsageCount)
	optTimestamp(e, "starts_at", c.StartsAt)
	optTimestamp(e, "expires_at", c.ExpiresAt)
	e.FieldStart("active")
	e.Bool(c.Active)
	e.FieldStart("description")
	e.Str(c.Description)
	timestamp(e, "created_at", c.CreatedAt)
	timestamp(e, "updated_at", c.UpdatedAt)
	e.ObjEnd()
}

func encodeCouponResult(e *jx.Encoder, r *coupon.Result) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(true)
	e.FieldStart("code")
	e.Str(r.Code)
	money(e, "discount", r.Discount)
	money(e, "final_total", r.FinalTotal)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("address_id")
	e.Str(o.AddressID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("product_name")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		money(e, "unit_price", it.UnitPrice)
		money(e, "total_price", it.TotalPrice)
		optString(e, "variant", it.Variant)
		e.ObjEnd()
	}
	e.ArrEnd()
	money(e, "subtotal", o.Subtotal)
	money(e, "shipping_cost", o.ShippingCost)
	money(e, "discount", o.Discount)
	money(e, "total", o.Total)
	optString(e, "coupon_code", o.CouponCode)
	optString(e, "shipping_method", o.ShippingMethod)
	timestamp(e, "created_at", o.CreatedAt)
	timestamp(e, "updated_at", o.UpdatedAt)
	optTimestamp(e, "paid_at", o.PaidAt)
	optTimestamp(e, "shipped_at", o.ShippedAt)
	optTimestamp(e, "delivered_at", o.DeliveredAt)
	optTimestamp(e, "cancelled_at", o.CancelledAt)
	e.ObjEnd()
}

func encodeSecret(e *jx.Encoder, field string, s settings.Secret) {
	e.FieldStart(field)
	e.ObjStart()
	e.FieldStart("value")
	e.Str(s.Value)
	e.FieldStart("is_configured")
	e.Bool(s.IsConfigured)
	e.ObjEnd()
}

// Percentages and rates keep their stored precision.
func number(e *jx.Encoder, field string, d decimal.Decimal) {
	e.FieldStart(field)
	e.Str(d.String())
}

func encodeSettings(e *jx.Encoder, v *settings.View) {
	s := v.Settings
	e.ObjStart()
	number(e, "tax_rate", s.TaxRate)
	number(e, "processor_fee_percent", s.ProcessorFeePercent)
	money(e, "processor_fixed_fee", s.ProcessorFixedFee)
	number(e, "default_profit_margin", s.DefaultProfitMargin)
	e.FieldStart("max_installments")
	e.Int(s.MaxInstallments)
	e.FieldStart("no_fee_installments")
	e.Int(s.NoFeeInstallments)
	money(e, "min_installment_value", s.MinInstallmentValue)
	number(e, "last_rate", s.LastRate)
	optTimestamp(e, "last_rate_at", s.LastRateAt)
	e.FieldStart("use_manual_rate")
	e.Bool(s.UseManualRate)
	number(e, "manual_rate", s.ManualRate)
	number(e, "rate_spread", s.RateSpread)
	e.FieldStart("payment_public_key")
	e.Str(s.PaymentPublicKey)
	e.FieldStart("smtp_host")
	e.Str(s.SMTPHost)
	e.FieldStart("smtp_user")
	e.Str(s.SMTPUser)
	encodeSecret(e, "payment_access_token", v.PaymentAccessToken)
	encodeSecret(e, "smtp_password", v.SMTPPassword)
	encodeSecret(e, "webhook_secret", v.WebhookSecret)
	if !s.UpdatedAt.IsZero() {
		timestamp(e, "updated_at", s.UpdatedAt)
	}
	e.ObjEnd()
}
