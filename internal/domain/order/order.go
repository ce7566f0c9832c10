package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// progress orders the forward path. CANCELLED is not on it.
var progress = map[Status]int{
	StatusPending:    0,
	StatusPaid:       1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := progress[s]
	return ok || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to
// another. Orders only move forward; only PENDING orders can be cancelled.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from == StatusPending
	}
	f, ok := progress[from]
	if !ok {
		return false
	}
	t, ok := progress[to]
	return ok && t > f
}

// Order is a placed order. Items, prices and totals are fixed at creation.
type Order struct {
	ID             string
	Number         string
	UserID         string
	AddressID      string
	Status         Status
	Items          []Item
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	CouponCode     string
	ShippingMethod string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
}

// Item is an order line with the product name and price captured at
// checkout.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	Variant     string
}

// Repository reads committed orders.
type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// Tx is the set of writes that must commit or roll back together.
type Tx interface {
	// DecrementStock takes qty units of a stock-tracked product. It returns
	// ErrOutOfStock, without changing anything, if fewer than qty remain.
	DecrementStock(ctx context.Context, productID string, qty int) error
	// IncrementStock returns qty units. Untracked or deleted products are
	// left alone.
	IncrementStock(ctx context.Context, productID string, qty int) error
	// RedeemCoupon atomically counts one use of code, failing with a
	// coupon usage-limit error if the limit was reached concurrently.
	RedeemCoupon(ctx context.Context, code string) error
	// ReleaseCoupon gives back one use of code. Deleted coupons and counters
	// already at zero are left alone.
	ReleaseCoupon(ctx context.Context, code string) error
	// InsertOrder stores o and its items. It returns ErrDuplicateNumber if
	// o.Number is taken.
	InsertOrder(ctx context.Context, o *Order) error
	// GetForUpdate loads an order and locks it until the end of the unit of work.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// UpdateStatus persists Status, UpdatedAt and the lifecycle timestamps.
	UpdateStatus(ctx context.Context, o *Order) error
}

// UnitOfWork runs fn in a transaction, committing if fn returns nil and
// rolling back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier is told about committed order events. Failures are logged by the
// caller and never undo the order.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order, from Status) error
}
