// Package settings holds the store-wide pricing, currency and integration
// configuration. There is a single settings record, identified by DefaultID,
// which the repository creates with Defaults on first read.
package settings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultID identifies the singleton settings record.
const DefaultID = "default"

// Settings is the store configuration consulted by pricing and the rate cache.
// Percentages are human percentages: 15 means 15%.
type Settings struct {
	TaxRate             decimal.Decimal
	ProcessorFeePercent decimal.Decimal
	ProcessorFixedFee   decimal.Decimal
	DefaultProfitMargin decimal.Decimal

	MaxInstallments     int
	NoFeeInstallments   int
	MinInstallmentValue decimal.Decimal

	LastRate      decimal.Decimal
	LastRateAt    *time.Time
	UseManualRate bool
	ManualRate    decimal.Decimal
	RateSpread    decimal.Decimal

	PaymentPublicKey string
	SMTPHost         string
	SMTPUser         string

	// Encrypted blobs, see vault.
	PaymentAccessToken string
	SMTPPassword       string
	WebhookSecret      string

	UpdatedAt time.Time
}

// Defaults returns the settings a fresh store starts with.
func Defaults() Settings {
	return Settings{
		TaxRate:             decimal.Zero,
		ProcessorFeePercent: decimal.RequireFromString("3.99"),
		ProcessorFixedFee:   decimal.RequireFromString("0.50"),
		DefaultProfitMargin: decimal.NewFromInt(20),
		MaxInstallments:     12,
		NoFeeInstallments:   3,
		MinInstallmentValue: decimal.NewFromInt(5),
		RateSpread:          decimal.Zero,
	}
}

// HasCachedRate reports whether a provider rate was ever stored.
func (s *Settings) HasCachedRate() bool {
	return s.LastRateAt != nil && s.LastRate.IsPositive()
}

// Repository persists the singleton settings record.
type Repository interface {
	// Get returns the settings, creating the record with Defaults if absent.
	Get(ctx context.Context) (*Settings, error)
	// SaveRate stores the latest provider rate and when it was fetched.
	SaveRate(ctx context.Context, rate decimal.Decimal, at time.Time) error
	// Update replaces all editable fields.
	Update(ctx context.Context, s *Settings) error
}
