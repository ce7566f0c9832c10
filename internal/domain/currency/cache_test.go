package currency

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/commerce-engine/internal/domain/settings"
)

type mockStore struct {
	st      settings.Settings
	getErr  error
	saveErr error
	saved   []decimal.Decimal
}

func (m *mockStore) Get(_ context.Context) (*settings.Settings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	cp := m.st
	return &cp, nil
}

func (m *mockStore) SaveRate(_ context.Context, rate decimal.Decimal, at time.Time) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, rate)
	m.st.LastRate = rate
	m.st.LastRateAt = &at
	return nil
}

type mockProvider struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (m *mockProvider) FetchUSDToLocal(_ context.Context) (decimal.Decimal, error) {
	m.calls++
	return m.rate, m.err
}

var (
	fixedNow   = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	defaultFX  = decimal.RequireFromString("5.00")
	errTimeout = errors.New("context deadline exceeded")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestCache(t *testing.T, store Store, p Provider) *Cache {
	t.Helper()
	c, err := NewCache(store, p, CacheConfig{DefaultRate: defaultFX})
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func at(ago time.Duration) *time.Time {
	v := fixedNow.Add(-ago)
	return &v
}

func TestCache_GetRate(t *testing.T) {
	tests := []struct {
		name       string
		st         settings.Settings
		provider   *mockProvider
		wantValue  string
		wantSource Source
		wantCalls  int
		wantSaved  bool
	}{
		{
			name:       "manual rate wins",
			st:         settings.Settings{UseManualRate: true, ManualRate: d("5.50"), LastRate: d("5.10"), LastRateAt: at(time.Minute), RateSpread: d("2")},
			provider:   &mockProvider{rate: d("5.20")},
			wantValue:  "5.50",
			wantSource: SourceManual,
		},
		{
			name:       "manual mode without a rate falls through",
			st:         settings.Settings{UseManualRate: true, LastRate: d("5.10"), LastRateAt: at(time.Minute)},
			provider:   &mockProvider{rate: d("5.20")},
			wantValue:  "5.10",
			wantSource: SourceCached,
		},
		{
			name:       "fresh cache with spread",
			st:         settings.Settings{LastRate: d("5.00"), LastRateAt: at(30 * time.Minute), RateSpread: d("2")},
			provider:   &mockProvider{rate: d("9.99")},
			wantValue:  "5.10",
			wantSource: SourceCached,
		},
		{
			name:       "stale cache triggers fetch",
			st:         settings.Settings{LastRate: d("5.00"), LastRateAt: at(2 * time.Hour), RateSpread: d("1")},
			provider:   &mockProvider{rate: d("5.20")},
			wantValue:  "5.252",
			wantSource: SourceFresh,
			wantCalls:  1,
			wantSaved:  true,
		},
		{
			name:       "no cache triggers fetch",
			provider:   &mockProvider{rate: d("5.20")},
			wantValue:  "5.20",
			wantSource: SourceFresh,
			wantCalls:  1,
			wantSaved:  true,
		},
		{
			name:       "fetch failure falls back to stale cache",
			st:         settings.Settings{LastRate: d("4.90"), LastRateAt: at(72 * time.Hour), RateSpread: d("3")},
			provider:   &mockProvider{err: errTimeout},
			wantValue:  "4.90",
			wantSource: SourceFallback,
			wantCalls:  1,
		},
		{
			name:       "fetch failure without cache uses default",
			provider:   &mockProvider{err: errTimeout},
			wantValue:  "5.00",
			wantSource: SourceDefault,
			wantCalls:  1,
		},
		{
			name:       "non-positive quote is a failure",
			provider:   &mockProvider{rate: decimal.Zero},
			wantValue:  "5.00",
			wantSource: SourceDefault,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{st: tt.st}
			c := newTestCache(t, store, tt.provider)

			got := c.GetRate(context.Background())

			assert.True(t, d(tt.wantValue).Equal(got.Value), "want %s, got %s", tt.wantValue, got.Value)
			assert.Equal(t, tt.wantSource, got.Source)
			assert.Equal(t, tt.wantCalls, tt.provider.calls)
			if tt.wantSaved {
				require.Len(t, store.saved, 1)
				assert.True(t, tt.provider.rate.Equal(store.saved[0]), "raw quote is persisted")
			} else {
				assert.Empty(t, store.saved)
			}
			if tt.wantSource == SourceManual || tt.wantSource == SourceDefault {
				assert.Nil(t, got.UpdatedAt)
			} else {
				assert.NotNil(t, got.UpdatedAt)
			}
		})
	}
}

func TestCache_FreshRateThenCached(t *testing.T) {
	store := &mockStore{}
	p := &mockProvider{rate: d("5.20")}
	c := newTestCache(t, store, p)
	ctx := context.Background()

	first := c.GetRate(ctx)
	second := c.GetRate(ctx)

	assert.Equal(t, SourceFresh, first.Source)
	assert.Equal(t, SourceCached, second.Source)
	assert.True(t, first.Value.Equal(second.Value))
	assert.Equal(t, 1, p.calls)
}

func TestCache_PersistFailureStillReturnsFresh(t *testing.T) {
	store := &mockStore{saveErr: errors.New("db down")}
	c := newTestCache(t, store, &mockProvider{rate: d("5.20")})

	got := c.GetRate(context.Background())
	assert.Equal(t, SourceFresh, got.Source)
	assert.True(t, d("5.20").Equal(got.Value))
}

func TestCache_SettingsUnavailable(t *testing.T) {
	store := &mockStore{getErr: errors.New("db down")}
	c := newTestCache(t, store, &mockProvider{err: errTimeout})

	got := c.GetRate(context.Background())
	assert.Equal(t, SourceDefault, got.Source)
	assert.True(t, defaultFX.Equal(got.Value))
}

func TestNewCache_RequiresDefaultRate(t *testing.T) {
	_, err := NewCache(&mockStore{}, &mockProvider{}, CacheConfig{})
	require.Error(t, err)
}
