// Package address describes buyer shipping addresses.
package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when the address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// Address is a buyer's saved shipping address.
type Address struct {
	ID         string
	UserID     string
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Repository looks up addresses.
type Repository interface {
	// FindOwnedByUser returns ErrNotFound unless id exists and is owned by userID.
	FindOwnedByUser(ctx context.Context, id, userID string) (*Address, error)
}
