package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code      string          `json:"code" validate:"required,max=64"`
	CartTotal decimal.Decimal `json:"cart_total"`
}

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CartTotal.IsNegative() {
		writeError(w, r, &coupon.ValidationError{Field: "cart_total", Reason: "must not be negative"})
		return
	}

	res, err := h.coupons.Validate(r.Context(), req.Code, req.CartTotal)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCouponResult(e, res) })
}

type couponRequest struct {
	Code          string           `json:"code" validate:"max=64"`
	DiscountType  string           `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value         decimal.Decimal  `json:"value"`
	MinOrderValue *decimal.Decimal `json:"min_order_value"`
	MaxDiscount   *decimal.Decimal `json:"max_discount"`
	UsageLimit    *int             `json:"usage_limit" validate:"omitnil,gte=1"`
	StartsAt      *time.Time       `json:"starts_at"`
	ExpiresAt     *time.Time       `json:"expires_at"`
	Active        *bool            `json:"active"`
	Description   string           `json:"description" validate:"max=500"`
}

func (req *couponRequest) input() coupon.Input {
	in := coupon.Input{
		Code:          req.Code,
		DiscountType:  coupon.DiscountType(req.DiscountType),
		Value:         req.Value,
		MinOrderValue: req.MinOrderValue,
		MaxDiscount:   req.MaxDiscount,
		UsageLimit:    req.UsageLimit,
		StartsAt:      req.StartsAt,
		ExpiresAt:     req.ExpiresAt,
		Active:        true,
		Description:   req.Description,
	}
	if req.Active != nil {
		in.Active = *req.Active
	}
	return in
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, &coupons[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// updateCoupon replaces the coupon's rules. The code in the path wins over
// the body.
func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), chi.URLParam(r, "code"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
