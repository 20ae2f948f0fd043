package identity

import (
	"context"
	"os"
	"time"
)

// Environment variable names read by EnvResolver.
const (
	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken    = "AWS_SESSION_TOKEN"
)

var zeroTime time.Time

// EnvResolver reads credentials from environment variables.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver creates a resolver reading the process environment.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

// NewEnvResolverWithLookup creates a resolver with a custom lookup.
func NewEnvResolverWithLookup(lookup func(string) (string, bool)) *EnvResolver {
	return &EnvResolver{lookup: lookup}
}

// ResolveIdentity implements Resolver.
func (r *EnvResolver) ResolveIdentity(context.Context) (*Identity, error) {
	akid, ok := r.lookup(EnvAccessKeyID)
	if !ok || akid == "" {
		return nil, unavailable("Environment", "resolve", EnvAccessKeyID+" is not set", nil)
	}
	secret, ok := r.lookup(EnvSecretAccessKey)
	if !ok || secret == "" {
		return nil, unavailable("Environment", "resolve", EnvSecretAccessKey+" is not set", nil)
	}
	token, _ := r.lookup(EnvSessionToken)

	return NewCredentials(Credentials{
		AccessKeyID:     akid,
		SecretAccessKey: secret,
		SessionToken:    token,
	}, zeroTime, "Environment"), nil
}
