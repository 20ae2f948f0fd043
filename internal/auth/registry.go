package auth

import (
	"context"
	"sort"
	"sync"

	"code.cloudfoundry.org/clock"

	"github.com/vyrodovalexey/avasdk/internal/identity"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// Registry maps scheme IDs to schemes.
type Registry struct {
	mu      sync.RWMutex
	schemes map[SchemeID]Scheme
	clock   clock.Clock
	logger  observability.Logger
	metrics *observability.Metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock sets the clock used to reject expired identities.
func WithClock(clk clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = clk
	}
}

// NewRegistry creates a registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		schemes: make(map[SchemeID]Scheme),
		clock:   clock.NewClock(),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds schemes, replacing any with the same ID.
func (r *Registry) Register(schemes ...Scheme) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		if s != nil {
			r.schemes[s.SchemeID()] = s
		}
	}
	return r
}

// Lookup returns the scheme registered under id.
func (r *Registry) Lookup(id SchemeID) (Scheme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemes[id]
	return s, ok
}

// IDs returns the registered scheme IDs in sorted order.
func (r *Registry) IDs() []SchemeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]SchemeID, 0, len(r.schemes))
	for id := range r.schemes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Selection is the scheme and identity bound for one attempt.
type Selection struct {
	Scheme   Scheme
	Identity *identity.Identity
}

// SchemeID returns the selected scheme ID.
func (s *Selection) SchemeID() SchemeID {
	return s.Scheme.SchemeID()
}

// Negotiate is shorthand for registry.Negotiate.
func Negotiate(ctx context.Context, options []SchemeID, registry *Registry, lookup ResolverLookup) (*Selection, error) {
	return registry.Negotiate(ctx, options, lookup)
}

// Negotiate walks options in order and selects the first scheme that is
// registered, has an identity resolver, and resolves a usable identity.
// When none does it returns a *NegotiationError matching
// ErrNoAuthenticationAvailable.
func (r *Registry) Negotiate(ctx context.Context, options []SchemeID, lookup ResolverLookup) (*Selection, error) {
	var failures []error

	for _, id := range options {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scheme, ok := r.Lookup(id)
		if !ok {
			failures = append(failures, NewAuthErrorWithCause(id, "lookup", ErrSchemeNotRegistered))
			continue
		}
		resolver := scheme.IdentityResolver(lookup)
		if resolver == nil {
			failures = append(failures, NewAuthErrorWithCause(id, "resolve identity", ErrNoIdentityResolver))
			continue
		}

		resolved, err := resolver.ResolveIdentity(ctx)
		if err == nil && resolved == nil {
			err = identity.ErrIdentityUnavailable
		}
		if err == nil && resolved.Expired(r.clock.Now()) {
			err = identity.ErrExpired
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Debug("auth scheme rejected",
				observability.String("scheme", id.String()),
				observability.Error(err),
			)
			failures = append(failures, NewAuthErrorWithCause(id, "resolve identity", err))
			continue
		}

		r.metrics.RecordAuthScheme(id.String())
		return &Selection{Scheme: scheme, Identity: resolved}, nil
	}

	r.logger.Warn("no auth scheme available",
		observability.Int("options", len(options)),
		observability.Int("failures", len(failures)),
	)
	return nil, &NegotiationError{Options: options, Failures: failures}
}
