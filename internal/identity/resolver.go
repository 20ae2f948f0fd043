package identity

import (
	"context"
	"errors"
)

// Resolver produces an identity. Implementations must return an error
// matching ErrIdentityUnavailable when no usable identity exists.
type Resolver interface {
	ResolveIdentity(ctx context.Context) (*Identity, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context) (*Identity, error)

// ResolveIdentity calls f.
func (f ResolverFunc) ResolveIdentity(ctx context.Context) (*Identity, error) {
	return f(ctx)
}

// StaticResolver always returns the same identity.
type StaticResolver struct {
	identity *Identity
}

// NewStaticResolver creates a resolver for a fixed identity.
func NewStaticResolver(id *Identity) *StaticResolver {
	return &StaticResolver{identity: id}
}

// NewStaticCredentialsResolver creates a resolver for fixed credentials.
func NewStaticCredentialsResolver(accessKeyID, secretAccessKey, sessionToken string) *StaticResolver {
	return NewStaticResolver(NewCredentials(Credentials{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
	}, zeroTime, "Static"))
}

// ResolveIdentity returns the static identity.
func (r *StaticResolver) ResolveIdentity(context.Context) (*Identity, error) {
	if r.identity == nil {
		return nil, unavailable("Static", "resolve", "no identity configured", nil)
	}
	return r.identity, nil
}

// NoIdentityResolver returns the anonymous identity.
type NoIdentityResolver struct{}

// ResolveIdentity returns Anonymous().
func (NoIdentityResolver) ResolveIdentity(context.Context) (*Identity, error) {
	return Anonymous(), nil
}

// ChainResolver tries resolvers in order and returns the first identity.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver creates a chain of resolvers.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

// ResolveIdentity returns the first successful identity in the chain.
func (c *ChainResolver) ResolveIdentity(ctx context.Context) (*Identity, error) {
	errs := make([]error, 0, len(c.resolvers))
	for _, r := range c.resolvers {
		id, err := r.ResolveIdentity(ctx)
		if err == nil && id != nil {
			return id, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return nil, unavailable("Chain", "resolve", "no provider in the chain returned an identity", errors.Join(errs...))
}

var (
	_ Resolver = ResolverFunc(nil)
	_ Resolver = (*StaticResolver)(nil)
	_ Resolver = NoIdentityResolver{}
	_ Resolver = (*ChainResolver)(nil)
)
