package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/commerce-engine/internal/domain/auth"
	"github.com/xenking/commerce-engine/internal/domain/order"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// UserIDHeader identifies the buyer a checkout-scoped key acts for.
const UserIDHeader = "X-User-ID"

type apiKeyCtxKey struct{}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator checks API keys against their stored HMAC hashes.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Authenticate resolves a raw API key.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hash := HashAPIKey(a.pepper, key)
	info, err := a.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, errUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}

// Require rejects requests without a valid key holding scope.
func (a *Authenticator) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !info.HasScope(scope) {
				writeError(w, r, errForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, info)
			ctx = zctx.With(ctx, zap.String("api_key", info.Name))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func apiKeyFrom(ctx context.Context) *auth.APIKeyInfo {
	info, _ := ctx.Value(apiKeyCtxKey{}).(*auth.APIKeyInfo)
	return info
}

// actor derives who is acting from the authenticated key and the buyer
// header.
func actor(r *http.Request) order.Actor {
	a := order.Actor{UserID: r.Header.Get(UserIDHeader)}
	if info := apiKeyFrom(r.Context()); info != nil {
		a.Admin = info.HasScope(auth.ScopeAdmin)
	}
	return a
}
