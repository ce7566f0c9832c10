// Package currency resolves the USD to local currency rate used for pricing.
package currency

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/settings"
)

// Source tells where a resolved rate came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceCached   Source = "api-cached"
	SourceFresh    Source = "api-fresh"
	SourceFallback Source = "fallback"
	SourceDefault  Source = "default"
)

// Rate is a resolved exchange rate.
type Rate struct {
	Value decimal.Decimal
	// UpdatedAt is when the provider quote was fetched; nil for manual and
	// default rates.
	UpdatedAt *time.Time
	Source    Source
}

// Provider fetches the current quote from an external FX service.
type Provider interface {
	FetchUSDToLocal(ctx context.Context) (decimal.Decimal, error)
}

// Store is the subset of the settings repository the cache needs.
type Store interface {
	Get(ctx context.Context) (*settings.Settings, error)
	SaveRate(ctx context.Context, rate decimal.Decimal, at time.Time) error
}
