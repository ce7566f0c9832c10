package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/settings"
)

const (
	settingsColumns = `tax_rate, processor_fee_percent, processor_fixed_fee, default_profit_margin,
		max_installments, no_fee_installments, min_installment_value,
		last_rate, last_rate_at, use_manual_rate, manual_rate, rate_spread,
		payment_public_key, smtp_host, smtp_user, payment_access_token, smtp_password, webhook_secret,
		updated_at`

	ensureSettingsSQL = `INSERT INTO system_settings (id, tax_rate, processor_fee_percent, processor_fixed_fee,
		default_profit_margin, max_installments, no_fee_installments, min_installment_value, rate_spread)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	getSettingsSQL = `SELECT ` + settingsColumns + ` FROM system_settings WHERE id = $1`

	saveRateSQL = `UPDATE system_settings SET last_rate = $2, last_rate_at = $3 WHERE id = $1`

	updateSettingsSQL = `UPDATE system_settings SET tax_rate = $2, processor_fee_percent = $3,
		processor_fixed_fee = $4, default_profit_margin = $5, max_installments = $6,
		no_fee_installments = $7, min_installment_value = $8, use_manual_rate = $9, manual_rate = $10,
		rate_spread = $11, payment_public_key = $12, smtp_host = $13, smtp_user = $14,
		payment_access_token = $15, smtp_password = $16, webhook_secret = $17, updated_at = $18
		WHERE id = $1`
)

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository stores the singleton settings row.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the settings, inserting the defaults on first use.
func (r *SettingsRepository) Get(ctx context.Context) (*settings.Settings, error) {
	d := settings.Defaults()
	if _, err := r.pool.Exec(ctx, ensureSettingsSQL,
		settings.DefaultID, d.TaxRate, d.ProcessorFeePercent, d.ProcessorFixedFee, d.DefaultProfitMargin,
		d.MaxInstallments, d.NoFeeInstallments, d.MinInstallmentValue, d.RateSpread,
	); err != nil {
		return nil, fmt.Errorf("ensuring settings: %w", err)
	}

	var s settings.Settings
	err := r.pool.QueryRow(ctx, getSettingsSQL, settings.DefaultID).Scan(
		&s.TaxRate, &s.ProcessorFeePercent, &s.ProcessorFixedFee, &s.DefaultProfitMargin,
		&s.MaxInstallments, &s.NoFeeInstallments, &s.MinInstallmentValue,
		&s.LastRate, &s.LastRateAt, &s.UseManualRate, &s.ManualRate, &s.RateSpread,
		&s.PaymentPublicKey, &s.SMTPHost, &s.SMTPUser, &s.PaymentAccessToken, &s.SMTPPassword, &s.WebhookSecret,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return &s, nil
}

// SaveRate records the latest provider rate.
func (r *SettingsRepository) SaveRate(ctx context.Context, rate decimal.Decimal, at time.Time) error {
	if _, err := r.Get(ctx); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, saveRateSQL, settings.DefaultID, rate, at); err != nil {
		return fmt.Errorf("saving rate: %w", err)
	}
	return nil
}

// Update replaces every editable field. The cached rate is left alone.
func (r *SettingsRepository) Update(ctx context.Context, s *settings.Settings) error {
	if _, err := r.Get(ctx); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, updateSettingsSQL, settings.DefaultID,
		s.TaxRate, s.ProcessorFeePercent, s.ProcessorFixedFee, s.DefaultProfitMargin,
		s.MaxInstallments, s.NoFeeInstallments, s.MinInstallmentValue, s.UseManualRate, s.ManualRate,
		s.RateSpread, s.PaymentPublicKey, s.SMTPHost, s.SMTPUser,
		s.PaymentAccessToken, s.SMTPPassword, s.WebhookSecret, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}
	return nil
}
