package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasdk/internal/identity"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func staticCreds() identity.Resolver {
	return identity.NewStaticCredentialsResolver("AKID", "SECRET", "")
}

func failing(err error) identity.Resolver {
	return identity.ResolverFunc(func(context.Context) (*identity.Identity, error) {
		return nil, err
	})
}

func newTestRegistry(opts ...RegistryOption) *Registry {
	opts = append([]RegistryOption{WithClock(fakeclock.NewFakeClock(testNow))}, opts...)
	return NewRegistry(opts...).Register(
		SigV4Scheme(nil),
		BearerScheme(),
		NoAuthScheme(),
		AnonymousScheme(),
	)
}

func TestNegotiate(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name       string
		options    []SchemeID
		lookup     ResolverMap
		wantScheme SchemeID
		wantErrs   []error
	}{
		{
			name:       "first option wins",
			options:    []SchemeID{SchemeSigV4, SchemeBearer},
			lookup:     ResolverMap{SchemeSigV4: staticCreds(), SchemeBearer: identity.NewStaticResolver(identity.NewToken("t", time.Time{}, "T"))},
			wantScheme: SchemeSigV4,
		},
		{
			name:       "falls through failing resolver",
			options:    []SchemeID{SchemeSigV4, SchemeBearer},
			lookup:     ResolverMap{SchemeSigV4: failing(boom), SchemeBearer: identity.NewStaticResolver(identity.NewToken("t", time.Time{}, "T"))},
			wantScheme: SchemeBearer,
		},
		{
			name:       "skips unregistered scheme",
			options:    []SchemeID{SchemeSigV4A, SchemeSigV4},
			lookup:     ResolverMap{SchemeSigV4: staticCreds()},
			wantScheme: SchemeSigV4,
		},
		{
			name:       "no_auth only when listed",
			options:    []SchemeID{SchemeSigV4, SchemeNoAuth},
			lookup:     ResolverMap{SchemeSigV4: failing(boom)},
			wantScheme: SchemeNoAuth,
		},
		{
			name:     "failing resolver does not fall back to no_auth",
			options:  []SchemeID{SchemeSigV4},
			lookup:   ResolverMap{SchemeSigV4: failing(boom)},
			wantErrs: []error{ErrNoAuthenticationAvailable, boom},
		},
		{
			name:     "missing resolver",
			options:  []SchemeID{SchemeBearer},
			lookup:   ResolverMap{},
			wantErrs: []error{ErrNoAuthenticationAvailable, ErrNoIdentityResolver},
		},
		{
			name:     "unregistered only",
			options:  []SchemeID{SchemeSigV4A},
			wantErrs: []error{ErrNoAuthenticationAvailable, ErrSchemeNotRegistered},
		},
		{
			name:     "empty options",
			options:  []SchemeID{},
			lookup:   ResolverMap{SchemeSigV4: staticCreds()},
			wantErrs: []error{ErrNoAuthenticationAvailable},
		},
		{
			name:    "expired identity rejected",
			options: []SchemeID{SchemeSigV4},
			lookup: ResolverMap{SchemeSigV4: identity.NewStaticResolver(identity.NewCredentials(
				identity.Credentials{AccessKeyID: "A", SecretAccessKey: "S"}, testNow.Add(-time.Second), "Static"))},
			wantErrs: []error{ErrNoAuthenticationAvailable, identity.ErrExpired},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sel, err := Negotiate(context.Background(), tt.options, newTestRegistry(), tt.lookup)
			if len(tt.wantErrs) > 0 {
				require.Error(t, err)
				assert.Nil(t, sel)
				for _, want := range tt.wantErrs {
					assert.ErrorIs(t, err, want)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, sel.SchemeID())
			assert.NotNil(t, sel.Identity)
		})
	}
}

func TestNegotiate_RecordsSelectedScheme(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test")
	reg := newTestRegistry(WithMetrics(metrics))

	_, err := reg.Negotiate(context.Background(), []SchemeID{SchemeAnonymous}, nil)
	require.NoError(t, err)
	n, err := testutil.GatherAndCount(metrics.Registry(), "test_auth_scheme_selected_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNegotiate_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRegistry().Negotiate(ctx, []SchemeID{SchemeNoAuth}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	t.Parallel()

	custom := NewScheme(SchemeBearer, SignerFunc(func(context.Context, *http.Request, *identity.Identity, *SigningProperties) error {
		return nil
	}))
	reg := newTestRegistry().Register(custom)

	got, ok := reg.Lookup(SchemeBearer)
	require.True(t, ok)
	assert.Same(t, custom, got)
	assert.Equal(t, []SchemeID{SchemeAnonymous, SchemeBearer, SchemeNoAuth, SchemeSigV4}, reg.IDs())
}

func TestNegotiationError_Message(t *testing.T) {
	t.Parallel()

	err := &NegotiationError{Failures: []error{NewAuthErrorWithCause(SchemeSigV4, "lookup", ErrSchemeNotRegistered)}}
	assert.Equal(t,
		"no authentication scheme available: auth scheme sigv4: lookup: auth scheme not registered",
		err.Error())
	assert.Equal(t, SchemeSigV4, SchemeOf(err))
	assert.True(t, IsAuthError(err))
	assert.Contains(t, (&NegotiationError{}).Error(), "no scheme options")
}
