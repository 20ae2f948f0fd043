package main

import (
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/identity"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// Environment variables selecting identity sources beyond the standard
// AWS credential variables.
const (
	envVaultAddr       = "VAULT_ADDR"
	envVaultToken      = "VAULT_TOKEN"
	envVaultNamespace  = "VAULT_NAMESPACE"
	envVaultMount      = "AVASDK_VAULT_MOUNT"
	envVaultPath       = "AVASDK_VAULT_PATH"
	envRoleARN         = "AWS_ROLE_ARN"
	envRoleSessionName = "AWS_ROLE_SESSION_NAME"
	envRoleExternalID  = "AWS_ROLE_EXTERNAL_ID"

	defaultVaultMount = "secret"
)

// newResolver builds the credential chain: environment variables, then a
// Vault KV secret when AVASDK_VAULT_PATH is set. With AWS_ROLE_ARN the
// chain is the source identity for an STS AssumeRole call.
func newResolver(cfg *config.Client, lookup config.LookupFunc, logger observability.Logger) (identity.Resolver, error) {
	sources := []identity.Resolver{identity.NewEnvResolverWithLookup(lookup)}

	if path := getEnvOrDefault(lookup, envVaultPath, ""); path != "" {
		vr, err := newVaultResolver(lookup, path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, vr)
		logger.Debug("vault credentials enabled", observability.String("path", path))
	}

	var resolver identity.Resolver = identity.NewChainResolver(sources...)

	if arn := getEnvOrDefault(lookup, envRoleARN, ""); arn != "" {
		ar, err := identity.NewSTSAssumeRoleResolver(cfg.Region, resolver, identity.AssumeRoleOptions{
			RoleARN:         arn,
			RoleSessionName: getEnvOrDefault(lookup, envRoleSessionName, ""),
			ExternalID:      getEnvOrDefault(lookup, envRoleExternalID, ""),
		}, identity.WithAssumeRoleLogger(logger))
		if err != nil {
			return nil, err
		}
		resolver = ar
		logger.Debug("assuming role", observability.String("role_arn", arn))
	}

	return identity.NewCache(resolver,
		identity.WithCacheName("presign"),
		identity.WithCacheConfig(cfg.IdentityCache),
		identity.WithCacheLogger(logger),
	), nil
}

// newVaultResolver creates a Vault client from the standard VAULT_*
// variables and a resolver reading path under the configured mount.
func newVaultResolver(lookup config.LookupFunc, path string) (*identity.VaultResolver, error) {
	vcfg := vaultapi.DefaultConfig()
	if addr := getEnvOrDefault(lookup, envVaultAddr, ""); addr != "" {
		vcfg.Address = addr
	}

	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token := getEnvOrDefault(lookup, envVaultToken, ""); token != "" {
		client.SetToken(token)
	}
	if ns := getEnvOrDefault(lookup, envVaultNamespace, ""); ns != "" {
		client.SetNamespace(ns)
	}

	return identity.NewVaultResolver(client, getEnvOrDefault(lookup, envVaultMount, defaultVaultMount), path)
}
