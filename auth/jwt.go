// Package auth validates JWT bearer tokens against a JWKS key set, for a
// network-facing embedding of the runtime to check its callers; nothing
// inside the runtime or the turn loop calls it. Grounded on the upstream
// framework's JWKS-backed JWT validator, it reports failures as the
// runtime's Unauthorized error kind (§7) instead of a raw error.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrUnauthorized wraps any validation failure so callers can surface the
// runtime's Unauthorized kind without string-matching.
type ErrUnauthorized struct {
	Reason string
	Err    error
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("Unauthorized: %s: %v", e.Reason, e.Err)
}

func (e *ErrUnauthorized) Unwrap() error { return e.Err }

// Validator validates bearer tokens against a provider's published JWKS,
// auto-refreshing the key set on a timer to ride out key rotation.
type Validator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// Claims is what a validated token yields.
type Claims struct {
	Subject string
	Email   string
	Custom  map[string]any
}

// NewValidator registers jwksURL for auto-refresh and performs an
// initial fetch so misconfiguration surfaces at startup rather than on
// the first request.
func NewValidator(ctx context.Context, jwksURL, issuer, audience string) (*Validator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("auth: failed to register JWKS url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("auth: failed to fetch JWKS from %s: %w", jwksURL, err)
	}
	return &Validator{jwksURL: jwksURL, cache: cache, issuer: issuer, audience: audience}, nil
}

// Validate verifies signature, expiry, issuer, and audience, returning
// ErrUnauthorized on any failure.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, &ErrUnauthorized{Reason: "jwks fetch failed", Err: err}
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, &ErrUnauthorized{Reason: "token validation failed", Err: err}
	}

	claims := &Claims{Subject: token.Subject(), Custom: make(map[string]any)}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	for iter := token.Iterate(ctx); iter.Next(ctx); {
		pair := iter.Pair()
		key, _ := pair.Key.(string)
		switch key {
		case "sub", "email", "iss", "aud", "exp", "iat", "nbf":
			continue
		default:
			claims.Custom[key] = pair.Value
		}
	}
	return claims, nil
}
