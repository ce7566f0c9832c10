// Package handler exposes the commerce services over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/auth"
	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/currency"
	"github.com/xenking/commerce-engine/internal/domain/order"
	"github.com/xenking/commerce-engine/internal/domain/pricing"
	"github.com/xenking/commerce-engine/internal/domain/product"
	"github.com/xenking/commerce-engine/internal/domain/settings"
)

// OrderService is the order lifecycle used by the handlers.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string, actor order.Actor) (*order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
	Cancel(ctx context.Context, id string, actor order.Actor) (*order.Order, error)
}

// CouponService validates and manages coupons.
type CouponService interface {
	Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (*coupon.Result, error)
	Get(ctx context.Context, code string) (*coupon.Coupon, error)
	List(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, in coupon.Input) (*coupon.Coupon, error)
	Update(ctx context.Context, code string, in coupon.Input) (*coupon.Coupon, error)
	Delete(ctx context.Context, code string) error
}

// PriceCalculator runs price simulations.
type PriceCalculator interface {
	Calculate(ctx context.Context, req pricing.Request) (*pricing.Result, error)
}

// RateSource resolves the current exchange rate.
type RateSource interface {
	GetRate(ctx context.Context) currency.Rate
}

// SettingsService reads and updates the store settings.
type SettingsService interface {
	View(ctx context.Context) (*settings.View, error)
	Update(ctx context.Context, p settings.Patch) (*settings.View, error)
}

// Deps are the services behind the API.
type Deps struct {
	Products product.Repository
	Rates    RateSource
	Pricing  PriceCalculator
	Coupons  CouponService
	Orders   OrderService
	Settings SettingsService
	APIKeys  auth.Repository
	// Pepper is the HMAC key API keys are hashed with.
	Pepper []byte
}

// Handler serves the /api routes.
type Handler struct {
	products product.Repository
	rates    RateSource
	pricing  PriceCalculator
	coupons  CouponService
	orders   OrderService
	settings SettingsService
	auth     *Authenticator
	validate *validator.Validate
}

// New creates a Handler.
func New(deps Deps) *Handler {
	return &Handler{
		products: deps.Products,
		rates:    deps.Rates,
		pricing:  deps.Pricing,
		coupons:  deps.Coupons,
		orders:   deps.Orders,
		settings: deps.Settings,
		auth:     NewAuthenticator(deps.APIKeys, deps.Pepper),
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes builds the router. Middlewares are installed on the router itself,
// so they see the matched route pattern.
func (h *Handler) Routes(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/currency/rate", h.getRate)
		r.Post("/coupons/validate", h.validateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Require(auth.ScopeCheckout))
			r.Post("/orders", h.createOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Post("/orders/{id}/cancel", h.cancelOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Require(auth.ScopeAdmin))
			r.Post("/pricing/simulate", h.simulatePrice)
			r.Route("/admin", func(r chi.Router) {
				r.Get("/coupons", h.listCoupons)
				r.Post("/coupons", h.createCoupon)
				r.Get("/coupons/{code}", h.getCoupon)
				r.Put("/coupons/{code}", h.updateCoupon)
				r.Delete("/coupons/{code}", h.deleteCoupon)
				r.Patch("/orders/{id}/status", h.updateOrderStatus)
				r.Get("/settings", h.getSettings)
				r.Put("/settings", h.updateSettings)
			})
		})
	})
	return r
}
