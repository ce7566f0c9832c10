package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/settings"
)

// updateSettingsRequest is a partial update; omitted fields are unchanged.
// Secrets sent back as the mask keep their stored value.
type updateSettingsRequest struct {
	TaxRate             *decimal.Decimal `json:"tax_rate"`
	ProcessorFeePercent *decimal.Decimal `json:"processor_fee_percent"`
	ProcessorFixedFee   *decimal.Decimal `json:"processor_fixed_fee"`
	DefaultProfitMargin *decimal.Decimal `json:"default_profit_margin"`
	MaxInstallments     *int             `json:"max_installments" validate:"omitnil,gte=1,lte=48"`
	NoFeeInstallments   *int             `json:"no_fee_installments" validate:"omitnil,gte=0,lte=48"`
	MinInstallmentValue *decimal.Decimal `json:"min_installment_value"`
	UseManualRate       *bool            `json:"use_manual_rate"`
	ManualRate          *decimal.Decimal `json:"manual_rate"`
	RateSpread          *decimal.Decimal `json:"rate_spread"`
	PaymentPublicKey    *string          `json:"payment_public_key" validate:"omitnil,max=500"`
	SMTPHost            *string          `json:"smtp_host" validate:"omitnil,max=255"`
	SMTPUser            *string          `json:"smtp_user" validate:"omitnil,max=255"`
	PaymentAccessToken  *string          `json:"payment_access_token" validate:"omitnil,max=1000"`
	SMTPPassword        *string          `json:"smtp_password" validate:"omitnil,max=1000"`
	WebhookSecret       *string          `json:"webhook_secret" validate:"omitnil,max=1000"`
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	v, err := h.settings.View(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSettings(e, v) })
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.settings.Update(r.Context(), settings.Patch{
		TaxRate:             req.TaxRate,
		ProcessorFeePercent: req.ProcessorFeePercent,
		ProcessorFixedFee:   req.ProcessorFixedFee,
		DefaultProfitMargin: req.DefaultProfitMargin,
		MaxInstallments:     req.MaxInstallments,
		NoFeeInstallments:   req.NoFeeInstallments,
		MinInstallmentValue: req.MinInstallmentValue,
		UseManualRate:       req.UseManualRate,
		ManualRate:          req.ManualRate,
		RateSpread:          req.RateSpread,
		PaymentPublicKey:    req.PaymentPublicKey,
		SMTPHost:            req.SMTPHost,
		SMTPUser:            req.SMTPUser,
		PaymentAccessToken:  req.PaymentAccessToken,
		SMTPPassword:        req.SMTPPassword,
		WebhookSecret:       req.WebhookSecret,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSettings(e, v) })
}
