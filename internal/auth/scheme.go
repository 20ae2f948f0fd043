package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avasdk/internal/identity"
	"github.com/vyrodovalexey/avasdk/internal/sigv4"
)

// SchemeID names an authentication scheme. Equality is exact.
type SchemeID string

// Known scheme IDs.
const (
	SchemeSigV4     SchemeID = "sigv4"
	SchemeSigV4A    SchemeID = "sigv4a"
	SchemeNoAuth    SchemeID = "no_auth"
	SchemeAnonymous SchemeID = "anonymous"
	SchemeBearer    SchemeID = "bearer"
)

// String implements fmt.Stringer.
func (id SchemeID) String() string {
	return string(id)
}

// SigningProperties carry the per-attempt inputs a signer may need
// beyond the identity.
type SigningProperties struct {
	Region   string
	Service  string
	Time     time.Time
	Payload  sigv4.Payload
	Settings sigv4.Settings

	// Deferred receives the chunk signer when the payload is a signed
	// aws-chunked stream.
	Deferred *sigv4.DeferredSignerSender
}

// Signer attaches authentication to a request.
type Signer interface {
	SignRequest(ctx context.Context, req *http.Request, id *identity.Identity, props *SigningProperties) error
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, req *http.Request, id *identity.Identity, props *SigningProperties) error

// SignRequest implements Signer.
func (f SignerFunc) SignRequest(ctx context.Context, req *http.Request, id *identity.Identity, props *SigningProperties) error {
	return f(ctx, req, id, props)
}

// Scheme pairs an identity resolver with a signer.
type Scheme interface {
	SchemeID() SchemeID
	// IdentityResolver returns the resolver for this scheme, or nil when
	// none is configured.
	IdentityResolver(lookup ResolverLookup) identity.Resolver
	Signer() Signer
}

// ResolverLookup finds the identity resolver configured for a scheme.
type ResolverLookup interface {
	IdentityResolver(id SchemeID) (identity.Resolver, bool)
}

// ResolverMap is a ResolverLookup backed by a map.
type ResolverMap map[SchemeID]identity.Resolver

// IdentityResolver implements ResolverLookup.
func (m ResolverMap) IdentityResolver(id SchemeID) (identity.Resolver, bool) {
	r, ok := m[id]
	return r, ok && r != nil
}

// basicScheme is a Scheme assembled from its parts.
type basicScheme struct {
	id       SchemeID
	resolver func(ResolverLookup) identity.Resolver
	signer   Signer
}

func (s *basicScheme) SchemeID() SchemeID {
	return s.id
}

func (s *basicScheme) IdentityResolver(lookup ResolverLookup) identity.Resolver {
	return s.resolver(lookup)
}

func (s *basicScheme) Signer() Signer {
	return s.signer
}

// NewScheme creates a scheme whose resolver is looked up by id.
func NewScheme(id SchemeID, signer Signer) Scheme {
	return &basicScheme{id: id, resolver: lookupResolver(id), signer: signer}
}

func lookupResolver(id SchemeID) func(ResolverLookup) identity.Resolver {
	return func(lookup ResolverLookup) identity.Resolver {
		if lookup == nil {
			return nil
		}
		if r, ok := lookup.IdentityResolver(id); ok {
			return r
		}
		return nil
	}
}

var noopSigner = SignerFunc(func(context.Context, *http.Request, *identity.Identity, *SigningProperties) error {
	return nil
})

// NoAuthScheme returns the scheme for operations that opt out of
// authentication. Its identity is anonymous and its signer does nothing.
func NoAuthScheme() Scheme {
	return &basicScheme{
		id:       SchemeNoAuth,
		resolver: func(ResolverLookup) identity.Resolver { return identity.NoIdentityResolver{} },
		signer:   noopSigner,
	}
}

// AnonymousScheme is NoAuthScheme under the anonymous ID.
func AnonymousScheme() Scheme {
	return &basicScheme{
		id:       SchemeAnonymous,
		resolver: func(ResolverLookup) identity.Resolver { return identity.NoIdentityResolver{} },
		signer:   noopSigner,
	}
}

// BearerScheme sets "Authorization: Bearer <token>" from a token identity.
func BearerScheme() Scheme {
	return NewScheme(SchemeBearer, SignerFunc(signBearer))
}

func signBearer(_ context.Context, req *http.Request, id *identity.Identity, _ *SigningProperties) error {
	tok, ok := id.Token()
	if !ok || tok.Value == "" {
		return NewAuthErrorWithCause(SchemeBearer, "sign", ErrIdentityMismatch)
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	return nil
}
