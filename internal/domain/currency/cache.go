package currency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultFreshness is how long a provider quote is served from the cache.
const DefaultFreshness = time.Hour

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Freshness is the maximum age of a cached quote. Defaults to DefaultFreshness.
	Freshness time.Duration
	// DefaultRate is returned when neither the provider nor the cache can answer.
	DefaultRate decimal.Decimal
	// MeterProvider records resolutions by source. Optional.
	MeterProvider metric.MeterProvider
}

// Cache resolves the current rate, preferring a manual override, then a
// fresh cached quote, then the provider. It never fails.
type Cache struct {
	store       Store
	provider    Provider
	freshness   time.Duration
	defaultRate decimal.Decimal
	now         func() time.Time

	group       singleflight.Group
	resolutions metric.Int64Counter
}

// NewCache creates a Cache.
func NewCache(store Store, provider Provider, cfg CacheConfig) (*Cache, error) {
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if !cfg.DefaultRate.IsPositive() {
		return nil, errors.New("default rate must be positive")
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	counter, err := mp.Meter("currency").Int64Counter("currency.rate.resolutions",
		metric.WithDescription("Exchange rate resolutions by source"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	return &Cache{
		store:       store,
		provider:    provider,
		freshness:   cfg.Freshness,
		defaultRate: cfg.DefaultRate,
		now:         time.Now,
		resolutions: counter,
	}, nil
}

// GetRate returns the rate to use for pricing right now.
func (c *Cache) GetRate(ctx context.Context) Rate {
	r := c.resolve(ctx)
	c.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(r.Source))))
	return r
}

func (c *Cache) resolve(ctx context.Context) Rate {
	lg := zctx.From(ctx)

	st, err := c.store.Get(ctx)
	if err != nil {
		lg.Warn("Load settings for rate", zap.Error(err))
		st = nil
	}

	if st != nil {
		if st.UseManualRate && st.ManualRate.IsPositive() {
			return Rate{Value: st.ManualRate, Source: SourceManual}
		}
		if st.HasCachedRate() && c.now().Sub(*st.LastRateAt) < c.freshness {
			at := *st.LastRateAt
			return Rate{Value: withSpread(st.LastRate, st.RateSpread), UpdatedAt: &at, Source: SourceCached}
		}
	}

	v, err, _ := c.group.Do("fetch", func() (any, error) {
		return c.fetch(ctx)
	})
	if err == nil {
		fetched := v.(Rate)
		spread := decimal.Zero
		if st != nil {
			spread = st.RateSpread
		}
		fetched.Value = withSpread(fetched.Value, spread)
		return fetched
	}
	lg.Warn("Fetch exchange rate", zap.Error(err))

	if st != nil && st.HasCachedRate() {
		at := *st.LastRateAt
		return Rate{Value: st.LastRate, UpdatedAt: &at, Source: SourceFallback}
	}
	return Rate{Value: c.defaultRate, Source: SourceDefault}
}

// fetch asks the provider and persists the raw quote.
func (c *Cache) fetch(ctx context.Context) (Rate, error) {
	rate, err := c.provider.FetchUSDToLocal(ctx)
	if err != nil {
		return Rate{}, err
	}
	if !rate.IsPositive() {
		return Rate{}, errors.Errorf("provider returned non-positive rate %s", rate)
	}
	at := c.now()
	if err := c.store.SaveRate(ctx, rate, at); err != nil {
		zctx.From(ctx).Warn("Persist exchange rate", zap.Error(err))
	}
	return Rate{Value: rate, UpdatedAt: &at, Source: SourceFresh}, nil
}

var hundred = decimal.NewFromInt(100)

func withSpread(rate, spread decimal.Decimal) decimal.Decimal {
	if spread.IsZero() {
		return rate
	}
	return rate.Mul(decimal.NewFromInt(1).Add(spread.Div(hundred)))
}
