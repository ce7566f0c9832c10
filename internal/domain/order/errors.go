package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrAddressNotFound = errors.New("address not found")
	ErrNotFound        = errors.New("order not found")
	ErrNotCancellable  = errors.New("only pending orders can be cancelled")
	ErrInvalidStatus   = errors.New("unknown order status")

	// ErrOutOfStock is returned by Tx.DecrementStock.
	ErrOutOfStock = errors.New("out of stock")
	// ErrDuplicateNumber is returned by Tx.InsertOrder on a number collision.
	ErrDuplicateNumber = errors.New("order number already taken")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a product exists but is not for sale.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InsufficientStockError indicates there is not enough stock for a line.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError rejects a status change that is not forward.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}
