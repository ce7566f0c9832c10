package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item. Stock is only meaningful when TrackStock is set.
type Product struct {
	ID         string
	Name       string
	Category   string
	Price      decimal.Decimal
	Active     bool
	TrackStock bool
	Stock      int
	Image      string
}

// Available reports whether qty units can be sold right now.
func (p *Product) Available(qty int) bool {
	return !p.TrackStock || p.Stock >= qty
}

// Repository defines read operations for the product catalog. Stock is only
// changed by the order transaction.
type Repository interface {
	List(ctx context.Context, activeOnly bool) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
