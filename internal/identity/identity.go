package identity

import (
	"fmt"
	"time"
)

// Credentials is an access key credential triple.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	AccountID       string
}

// Token is a bearer token.
type Token struct {
	Value string
}

// Login is a username and password pair.
type Login struct {
	User     string
	Password string
}

// Identity is resolved credential or token material plus an optional
// expiry and the name of the provider that produced it.
type Identity struct {
	data       interface{}
	expiration time.Time
	provider   string
}

// New creates an identity. data must be Credentials, Token, Login, or
// nil for the anonymous identity. A zero expiration means none.
func New(data interface{}, expiration time.Time, provider string) *Identity {
	return &Identity{data: data, expiration: expiration, provider: provider}
}

// NewCredentials creates a credentials identity.
func NewCredentials(c Credentials, expiration time.Time, provider string) *Identity {
	return New(c, expiration, provider)
}

// NewToken creates a bearer token identity.
func NewToken(value string, expiration time.Time, provider string) *Identity {
	return New(Token{Value: value}, expiration, provider)
}

// Anonymous returns the identity used by schemes that do not authenticate.
func Anonymous() *Identity {
	return &Identity{provider: "Anonymous"}
}

// Credentials returns the credential payload, if any.
func (i *Identity) Credentials() (Credentials, bool) {
	c, ok := i.data.(Credentials)
	return c, ok
}

// Token returns the token payload, if any.
func (i *Identity) Token() (Token, bool) {
	t, ok := i.data.(Token)
	return t, ok
}

// Login returns the login payload, if any.
func (i *Identity) Login() (Login, bool) {
	l, ok := i.data.(Login)
	return l, ok
}

// IsAnonymous reports whether the identity carries no material.
func (i *Identity) IsAnonymous() bool {
	return i.data == nil
}

// Expiration returns the expiry and whether one is set.
func (i *Identity) Expiration() (time.Time, bool) {
	return i.expiration, !i.expiration.IsZero()
}

// ProviderName returns the name of the provider that produced the identity.
func (i *Identity) ProviderName() string {
	return i.provider
}

// Expired reports whether the identity has an expiry at or before now.
func (i *Identity) Expired(now time.Time) bool {
	return !i.expiration.IsZero() && !now.Before(i.expiration)
}

// String describes the identity without secret material.
func (i *Identity) String() string {
	kind := "anonymous"
	switch d := i.data.(type) {
	case Credentials:
		kind = "credentials(" + d.AccessKeyID + ")"
	case Token:
		kind = "token"
	case Login:
		kind = "login(" + d.User + ")"
	}
	if i.expiration.IsZero() {
		return fmt.Sprintf("Identity{%s, provider=%s}", kind, i.provider)
	}
	return fmt.Sprintf("Identity{%s, provider=%s, expires=%s}",
		kind, i.provider, i.expiration.UTC().Format(time.RFC3339))
}
