package coupon

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	byCode  map[string]*Coupon
	findErr error
	created []*Coupon
}

func newMockRepo(coupons ...Coupon) *mockCouponRepo {
	m := &mockCouponRepo{byCode: map[string]*Coupon{}}
	for i := range coupons {
		m.byCode[coupons[i].Code] = &coupons[i]
	}
	return m
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCouponRepo) List(_ context.Context) ([]Coupon, error) {
	out := make([]Coupon, 0, len(m.byCode))
	for _, c := range m.byCode {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCouponRepo) Create(_ context.Context, c *Coupon) error {
	if _, ok := m.byCode[c.Code]; ok {
		return ErrDuplicateCode
	}
	cp := *c
	m.byCode[c.Code] = &cp
	m.created = append(m.created, c)
	return nil
}

func (m *mockCouponRepo) Update(_ context.Context, c *Coupon) error {
	if _, ok := m.byCode[c.Code]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.byCode[c.Code] = &cp
	return nil
}

func (m *mockCouponRepo) Delete(_ context.Context, code string) error {
	if _, ok := m.byCode[code]; !ok {
		return ErrNotFound
	}
	delete(m.byCode, code)
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func ip(v int) *int { return &v }

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func tp(offset time.Duration) *time.Time {
	v := fixedNow.Add(offset)
	return &v
}

func TestService_Validate(t *testing.T) {
	tests := []struct {
		name         string
		coupon       Coupon
		code         string
		total        string
		wantDiscount string
		wantFinal    string
		wantReason   Reason
		wantNotFound bool
	}{
		{
			name:         "percentage, case-insensitive lookup",
			coupon:       Coupon{Code: "DESCONTO10", DiscountType: DiscountPercentage, Value: d("10"), Active: true},
			code:         "desconto10",
			total:        "199.90",
			wantDiscount: "19.99",
			wantFinal:    "179.91",
		},
		{
			name:         "percentage on a half cent",
			coupon:       Coupon{Code: "DESCONTO10", DiscountType: DiscountPercentage, Value: d("10"), Active: true},
			code:         "DESCONTO10",
			total:        "199.95",
			wantDiscount: "20.00",
			wantFinal:    "179.95",
		},
		{
			name:         "percentage capped by max discount",
			coupon:       Coupon{Code: "HALF", DiscountType: DiscountPercentage, Value: d("50"), MaxDiscount: dp("30"), Active: true},
			code:         "HALF",
			total:        "100",
			wantDiscount: "30",
			wantFinal:    "70",
		},
		{
			name:         "fixed clamped to total",
			coupon:       Coupon{Code: "FIFTY", DiscountType: DiscountFixed, Value: d("50"), Active: true},
			code:         "FIFTY",
			total:        "30",
			wantDiscount: "30",
			wantFinal:    "0",
		},
		{
			name:         "fixed below total",
			coupon:       Coupon{Code: "TEN", DiscountType: DiscountFixed, Value: d("10"), Active: true},
			code:         "TEN",
			total:        "30",
			wantDiscount: "10",
			wantFinal:    "20",
		},
		{
			name:         "unknown code",
			code:         "BOGUS",
			total:        "10",
			wantNotFound: true,
		},
		{
			name:       "inactive wins over expired",
			coupon:     Coupon{Code: "OFF", DiscountType: DiscountFixed, Value: d("5"), ExpiresAt: tp(-time.Hour)},
			code:       "OFF",
			total:      "10",
			wantReason: ReasonInactive,
		},
		{
			name:       "not yet valid",
			coupon:     Coupon{Code: "SOON", DiscountType: DiscountFixed, Value: d("5"), StartsAt: tp(time.Hour), Active: true},
			code:       "SOON",
			total:      "10",
			wantReason: ReasonNotYetValid,
		},
		{
			name:       "expired",
			coupon:     Coupon{Code: "OLD", DiscountType: DiscountFixed, Value: d("5"), ExpiresAt: tp(-time.Hour), Active: true},
			code:       "OLD",
			total:      "10",
			wantReason: ReasonExpired,
		},
		{
			name:       "usage limit reached",
			coupon:     Coupon{Code: "LIMITED", DiscountType: DiscountFixed, Value: d("5"), UsageLimit: ip(100), UsageCount: 100, Active: true},
			code:       "LIMITED",
			total:      "10",
			wantReason: ReasonUsageLimit,
		},
		{
			name:       "usage limit checked before minimum",
			coupon:     Coupon{Code: "BOTH", DiscountType: DiscountFixed, Value: d("5"), UsageLimit: ip(1), UsageCount: 1, MinOrderValue: dp("100"), Active: true},
			code:       "BOTH",
			total:      "10",
			wantReason: ReasonUsageLimit,
		},
		{
			name:       "below minimum",
			coupon:     Coupon{Code: "MIN", DiscountType: DiscountFixed, Value: d("5"), MinOrderValue: dp("100"), Active: true},
			code:       "MIN",
			total:      "99.99",
			wantReason: ReasonBelowMinimum,
		},
		{
			name:         "inside window and under limit",
			coupon:       Coupon{Code: "OK", DiscountType: DiscountPercentage, Value: d("10"), StartsAt: tp(-time.Hour), ExpiresAt: tp(time.Hour), UsageLimit: ip(10), UsageCount: 9, MinOrderValue: dp("100"), Active: true},
			code:         "OK",
			total:        "100",
			wantDiscount: "10",
			wantFinal:    "90",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			if tt.coupon.Code != "" {
				repo = newMockRepo(tt.coupon)
			}
			svc := NewService(repo)
			svc.now = func() time.Time { return fixedNow }

			got, err := svc.Validate(context.Background(), tt.code, d(tt.total))

			switch {
			case tt.wantNotFound:
				require.ErrorIs(t, err, ErrNotFound)
				assert.Nil(t, got)
			case tt.wantReason != "":
				require.ErrorIs(t, err, ErrInvalidCoupon)
				var invErr *InvalidError
				require.ErrorAs(t, err, &invErr)
				assert.Equal(t, tt.wantReason, invErr.Reason)
				assert.Nil(t, got)
			default:
				require.NoError(t, err)
				assert.True(t, d(tt.wantDiscount).Equal(got.Discount), "discount %s", got.Discount)
				assert.True(t, d(tt.wantFinal).Equal(got.FinalTotal), "final %s", got.FinalTotal)
				assert.True(t, d(tt.total).Equal(got.Discount.Add(got.FinalTotal)), "discount and final total must add up")
				assert.Equal(t, tt.coupon.Code, got.Code)
			}
		})
	}
}

func TestService_ValidateDoesNotChangeUsage(t *testing.T) {
	repo := newMockRepo(Coupon{Code: "X", DiscountType: DiscountFixed, Value: d("1"), Active: true})
	svc := NewService(repo)

	_, err := svc.Validate(context.Background(), "x", d("10"))
	require.NoError(t, err)
	assert.Zero(t, repo.byCode["X"].UsageCount)
}

func TestInvalidError_BelowMinimumMessage(t *testing.T) {
	err := Check(&Coupon{Code: "MIN", DiscountType: DiscountFixed, Value: d("5"), MinOrderValue: dp("150"), Active: true}, d("10"), fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "150.00")
}

func TestService_ValidateRepoError(t *testing.T) {
	repo := newMockRepo()
	repo.findErr = errors.New("db error")
	svc := NewService(repo)

	_, err := svc.Validate(context.Background(), "ANY", d("10"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestDiscount_Bounds(t *testing.T) {
	for _, total := range []string{"0", "0.01", "5", "199.90", "10000"} {
		for _, c := range []Coupon{
			{DiscountType: DiscountPercentage, Value: d("100")},
			{DiscountType: DiscountPercentage, Value: d("15"), MaxDiscount: dp("7.5")},
			{DiscountType: DiscountFixed, Value: d("20")},
		} {
			got, err := Discount(&c, d(total))
			require.NoError(t, err)
			assert.True(t, got.GreaterThanOrEqual(decimal.Zero))
			assert.True(t, got.LessThanOrEqual(d(total)))
			if c.MaxDiscount != nil {
				assert.True(t, got.LessThanOrEqual(*c.MaxDiscount))
			}
		}
	}
}

func TestEvaluate_PartsAddUpToTotal(t *testing.T) {
	for _, total := range []string{"0.05", "0.15", "19.95", "199.95", "333.33", "1000.05"} {
		for _, c := range []Coupon{
			{Code: "P10", DiscountType: DiscountPercentage, Value: d("10"), Active: true},
			{Code: "P15", DiscountType: DiscountPercentage, Value: d("15"), MaxDiscount: dp("7.5"), Active: true},
			{Code: "P333", DiscountType: DiscountPercentage, Value: d("33.3"), Active: true},
			{Code: "F", DiscountType: DiscountFixed, Value: d("0.125"), Active: true},
		} {
			res, err := Evaluate(&c, d(total), fixedNow)
			require.NoError(t, err)
			assert.True(t, d(total).Equal(res.Discount.Add(res.FinalTotal)),
				"%s on %s: %s + %s", c.Code, total, res.Discount, res.FinalTotal)
			assert.True(t, res.Discount.Equal(res.Discount.Round(2)))
		}
	}
}
