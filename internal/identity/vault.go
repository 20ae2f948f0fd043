package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	vaultapi "github.com/hashicorp/vault/api"
)

const vaultProvider = "Vault"

// VaultResolver reads credentials from a HashiCorp Vault KV secret. The
// secret holds access_key_id, secret_access_key and, optionally,
// session_token and expiration (RFC 3339). Without an expiration the
// lease duration, if any, bounds the identity lifetime.
type VaultResolver struct {
	client *vaultapi.Client
	mount  string
	path   string
	clock  clock.Clock
}

// VaultOption configures a VaultResolver.
type VaultOption func(*VaultResolver)

// WithVaultClock sets the time source used for lease expiry.
func WithVaultClock(c clock.Clock) VaultOption {
	return func(r *VaultResolver) {
		r.clock = c
	}
}

// NewVaultResolver creates a resolver reading mount/data/path (KV v2)
// and falling back to the KV v1 layout.
func NewVaultResolver(client *vaultapi.Client, mount, path string, opts ...VaultOption) (*VaultResolver, error) {
	if client == nil {
		return nil, unavailable(vaultProvider, "configure", "vault client is required", nil)
	}
	if mount == "" || path == "" {
		return nil, unavailable(vaultProvider, "configure", "mount and path are required", nil)
	}

	r := &VaultResolver{
		client: client,
		mount:  strings.Trim(mount, "/"),
		path:   strings.Trim(path, "/"),
		clock:  clock.NewClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveIdentity implements Resolver.
func (r *VaultResolver) ResolveIdentity(ctx context.Context) (*Identity, error) {
	fullPath := fmt.Sprintf("%s/data/%s", r.mount, r.path)

	secret, err := r.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, unavailable(vaultProvider, "read "+fullPath, "", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, unavailable(vaultProvider, "read "+fullPath, "secret not found", nil)
	}

	// KV v2 nests the payload under "data"; a nil value is a deleted version.
	raw, nested := secret.Data["data"]
	if nested && raw == nil {
		return nil, unavailable(vaultProvider, "read "+fullPath, "secret is deleted", nil)
	}
	data, ok := raw.(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	creds := Credentials{
		AccessKeyID:     stringField(data, "access_key_id", "access_key"),
		SecretAccessKey: stringField(data, "secret_access_key", "secret_key"),
		SessionToken:    stringField(data, "session_token"),
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, unavailable(vaultProvider, "read "+fullPath, "secret has no access key pair", nil)
	}

	var expiration time.Time
	if v := stringField(data, "expiration"); v != "" {
		expiration, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, unavailable(vaultProvider, "read "+fullPath, "invalid expiration", err)
		}
	} else if secret.LeaseDuration > 0 {
		expiration = r.clock.Now().Add(time.Duration(secret.LeaseDuration) * time.Second)
	}

	return NewCredentials(creds, expiration, vaultProvider), nil
}

func stringField(data map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
