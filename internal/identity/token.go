package identity

import (
	"context"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenSource returns a raw bearer token.
type TokenSource func(ctx context.Context) (string, error)

// TokenResolver produces bearer token identities. When the token is a
// JWT with an exp claim, that claim becomes the identity expiry.
type TokenResolver struct {
	source   TokenSource
	provider string
}

// NewTokenResolver creates a token resolver.
func NewTokenResolver(provider string, source TokenSource) *TokenResolver {
	return &TokenResolver{source: source, provider: provider}
}

// ResolveIdentity implements Resolver.
func (r *TokenResolver) ResolveIdentity(ctx context.Context) (*Identity, error) {
	raw, err := r.source(ctx)
	if err != nil {
		return nil, unavailable(r.provider, "fetch token", "", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, unavailable(r.provider, "fetch token", "empty token", nil)
	}

	// Signature verification belongs to the receiver; only exp is read.
	if tok, err := jwt.ParseInsecure([]byte(raw)); err == nil {
		return NewToken(raw, tok.Expiration(), r.provider), nil
	}
	return NewToken(raw, zeroTime, r.provider), nil
}
