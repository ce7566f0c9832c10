package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/pricing"
)

func (h *Handler) getRate(w http.ResponseWriter, r *http.Request) {
	rate := h.rates.GetRate(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRate(e, rate) })
}

type simulatePriceRequest struct {
	CostPrice       *decimal.Decimal `json:"cost_price"`
	PriceInDollar   *decimal.Decimal `json:"price_in_dollar"`
	ProfitPercent   *decimal.Decimal `json:"profit_percent"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	Installments    int              `json:"installments" validate:"gte=0,lte=48"`
}

func (h *Handler) simulatePrice(w http.ResponseWriter, r *http.Request) {
	var req simulatePriceRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.pricing.Calculate(r.Context(), pricing.Request{
		CostPrice:       req.CostPrice,
		PriceInDollar:   req.PriceInDollar,
		ProfitPercent:   req.ProfitPercent,
		DiscountPercent: req.DiscountPercent,
		Installments:    req.Installments,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeBreakdown(e, res) })
}
