package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no active key has the given hash.
var ErrNotFound = errors.New("api key not found")

// Scopes granted to API keys.
const (
	// ScopeCheckout lets a storefront place and manage orders on behalf of buyers.
	ScopeCheckout = "checkout"
	// ScopeAdmin grants the back-office operations.
	ScopeAdmin = "admin"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope. Admin keys hold
// every scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, ScopeAdmin)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
