package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/order"
)

type orderLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Variant   string `json:"variant" validate:"max=100"`
}

type createOrderRequest struct {
	AddressID      string             `json:"address_id" validate:"required"`
	Items          []orderLineRequest `json:"items" validate:"required,min=1,max=100,dive"`
	ShippingMethod string             `json:"shipping_method" validate:"max=50"`
	CouponCode     string             `json:"coupon_code" validate:"max=64"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func tagOrder(r *http.Request, o *order.Order) {
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("order.number", o.Number),
		attribute.String("order.status", string(o.Status)),
	)
}

func writeOrder(w http.ResponseWriter, r *http.Request, status int, o *order.Order) {
	tagOrder(r, o)
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func buyer(r *http.Request) (order.Actor, error) {
	a := actor(r)
	if a.UserID == "" && !a.Admin {
		return a, errUserRequired
	}
	return a, nil
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, r, errUserRequired)
		return
	}
	var req createOrderRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	lines := make([]order.LineRequest, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity, Variant: it.Variant}
	}
	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID:         userID,
		AddressID:      req.AddressID,
		Items:          lines,
		ShippingMethod: req.ShippingMethod,
		CouponCode:     req.CouponCode,
	})
	if err != nil {
		// An unknown coupon is a problem with the order, not a missing resource.
		if errors.Is(err, coupon.ErrNotFound) {
			err = &unprocessableError{err: coupon.ErrNotFound}
		}
		writeError(w, r, err)
		return
	}
	writeOrder(w, r, http.StatusCreated, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, r, errUserRequired)
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	a, err := buyer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, r, http.StatusOK, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	a, err := buyer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, r, http.StatusOK, o)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, r, http.StatusOK, o)
}
