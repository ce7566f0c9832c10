package order

import (
	"context"
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/commerce-engine/internal/domain/address"
	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/product"
)

// maxNumberAttempts bounds retries after an order number collision.
const maxNumberAttempts = 3

// ShippingPolicy prices shipping from the order subtotal.
type ShippingPolicy struct {
	// FreeThreshold is the subtotal from which shipping is free.
	FreeThreshold decimal.Decimal
	// FlatFee is charged below FreeThreshold.
	FlatFee decimal.Decimal
}

// Cost returns the shipping cost for subtotal.
func (p ShippingPolicy) Cost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// CouponValidator checks a coupon against a cart total.
type CouponValidator interface {
	Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (*coupon.Result, error)
}

// LineRequest is one requested order line.
type LineRequest struct {
	ProductID string
	Quantity  int
	Variant   string
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	UserID         string
	AddressID      string
	Items          []LineRequest
	ShippingMethod string
	CouponCode     string
}

// Actor is who is acting on an order.
type Actor struct {
	UserID string
	Admin  bool
}

func (a Actor) canSee(o *Order) bool {
	return a.Admin || (a.UserID != "" && a.UserID == o.UserID)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Products  product.Repository
	Addresses address.Repository
	Coupons   CouponValidator
	Orders    Repository
	UoW       UnitOfWork
	Notifier  Notifier
	Shipping  ShippingPolicy
}

// Service runs the order lifecycle: creation with stock reservation,
// forward status updates and cancellation with stock restoration.
type Service struct {
	products  product.Repository
	addresses address.Repository
	coupons   CouponValidator
	orders    Repository
	uow       UnitOfWork
	notifier  Notifier
	shipping  ShippingPolicy

	now       func() time.Time
	newID     func() string
	newNumber func(time.Time) string
}

// NewService creates an order Service.
func NewService(deps Deps) *Service {
	return &Service{
		products:  deps.Products,
		addresses: deps.Addresses,
		coupons:   deps.Coupons,
		orders:    deps.Orders,
		uow:       deps.UoW,
		notifier:  deps.Notifier,
		shipping:  deps.Shipping,
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
		newNumber: NewNumber,
	}
}

const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewNumber returns a human-readable order number: ORD-<base36 millis>-<4
// random characters>.
func NewNumber(now time.Time) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return "ORD-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)) + "-" + string(suffix)
}

// Create validates the request, reserves stock and stores the order in one
// unit of work. Nothing is written if any line cannot be fulfilled.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, 0, len(req.Items))
	requested := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	if _, err := s.addresses.FindOwnedByUser(ctx, req.AddressID, req.UserID); err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, errors.Wrap(err, "get address")
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	for _, id := range ids {
		p, ok := productMap[id]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		if !p.Active {
			return nil, &ProductUnavailableError{ProductID: id}
		}
		if !p.Available(requested[id]) {
			return nil, &InsufficientStockError{ProductID: id, Requested: requested[id], Available: p.Stock}
		}
	}

	now := s.now()
	o := &Order{
		ID:             s.newID(),
		UserID:         req.UserID,
		AddressID:      req.AddressID,
		Status:         StatusPending,
		Items:          make([]Item, len(req.Items)),
		ShippingMethod: req.ShippingMethod,
		Subtotal:       decimal.Zero,
		Discount:       decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, line := range req.Items {
		p := productMap[line.ProductID]
		total := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		o.Items[i] = Item{
			ID:          s.newID(),
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.Price,
			TotalPrice:  total,
			Variant:     line.Variant,
		}
		o.Subtotal = o.Subtotal.Add(total)
	}
	o.ShippingCost = s.shipping.Cost(o.Subtotal)

	if req.CouponCode != "" {
		res, err := s.coupons.Validate(ctx, req.CouponCode, o.Subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		o.CouponCode = res.Code
		o.Discount = res.Discount
	}
	o.Total = o.Subtotal.Add(o.ShippingCost).Sub(o.Discount)

	for attempt := 1; ; attempt++ {
		o.Number = s.newNumber(now)
		err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			return s.reserve(ctx, tx, o, productMap)
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateNumber) && attempt < maxNumberAttempts {
			zctx.From(ctx).Warn("Order number collision, retrying",
				zap.String("number", o.Number),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order", o.Number),
		zap.String("user", o.UserID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	if err := s.notifier.OrderPlaced(ctx, o); err != nil {
		zctx.From(ctx).Warn("Notify order placed", zap.String("order", o.Number), zap.Error(err))
	}
	return o, nil
}

func (s *Service) reserve(ctx context.Context, tx Tx, o *Order, products map[string]product.Product) error {
	if err := tx.InsertOrder(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateNumber) {
			return ErrDuplicateNumber
		}
		return errors.Wrap(err, "insert order")
	}
	for _, item := range o.Items {
		p := products[item.ProductID]
		if !p.TrackStock {
			continue
		}
		if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, ErrOutOfStock) {
				return &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity, Available: p.Stock}
			}
			return errors.Wrapf(err, "decrement stock of %s", item.ProductID)
		}
	}
	if o.CouponCode != "" {
		if err := tx.RedeemCoupon(ctx, o.CouponCode); err != nil {
			if errors.Is(err, coupon.ErrInvalidCoupon) {
				return err
			}
			return errors.Wrap(err, "redeem coupon")
		}
	}
	return nil
}

// Get returns an order visible to actor.
func (s *Service) Get(ctx context.Context, id string, actor Actor) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !actor.canSee(o) {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListByUser returns the orders of a buyer, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves an order forward. Setting the current status is a
// no-op; CANCELLED goes through Cancel so stock is restored.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}
	if to == StatusCancelled {
		return s.Cancel(ctx, id, Actor{Admin: true})
	}

	var (
		o       *Order
		from    Status
		changed bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		o, from = cur, cur.Status
		if cur.Status == to {
			return nil
		}
		if !CanTransition(cur.Status, to) {
			return &InvalidTransitionError{From: cur.Status, To: to}
		}

		now := s.now()
		cur.Status = to
		cur.UpdatedAt = now
		switch to {
		case StatusPaid:
			cur.PaidAt = &now
		case StatusShipped:
			cur.ShippedAt = &now
		case StatusDelivered:
			cur.DeliveredAt = &now
		}
		if err := tx.UpdateStatus(ctx, cur); err != nil {
			return errors.Wrap(err, "update status")
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.statusChanged(ctx, o, from)
	}
	return o, nil
}

// Cancel cancels a pending order, returns its stock and gives back the
// coupon use it redeemed. Buyers may cancel their own orders; admins any order.
func (s *Service) Cancel(ctx context.Context, id string, actor Actor) (*Order, error) {
	var o *Order
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.canSee(cur) {
			return ErrNotFound
		}
		if cur.Status != StatusPending {
			return errors.Wrapf(ErrNotCancellable, "order %s is %s", cur.Number, cur.Status)
		}
		for _, item := range cur.Items {
			if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return errors.Wrapf(err, "restore stock of %s", item.ProductID)
			}
		}
		if cur.CouponCode != "" {
			if err := tx.ReleaseCoupon(ctx, cur.CouponCode); err != nil {
				return errors.Wrapf(err, "release coupon %s", cur.CouponCode)
			}
		}
		now := s.now()
		cur.Status = StatusCancelled
		cur.CancelledAt = &now
		cur.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, cur); err != nil {
			return errors.Wrap(err, "update status")
		}
		o = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(ctx, o, StatusPending)
	return o, nil
}

func (s *Service) statusChanged(ctx context.Context, o *Order, from Status) {
	lg := zctx.From(ctx)
	lg.Info("Order status changed",
		zap.String("order", o.Number),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
	)
	if err := s.notifier.StatusChanged(ctx, o, from); err != nil {
		lg.Warn("Notify status change", zap.String("order", o.Number), zap.Error(err))
	}
}
