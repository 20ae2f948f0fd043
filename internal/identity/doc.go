// Package identity resolves and caches the credentials used to
// authenticate requests.
//
// An Identity is immutable once built and is shared by pointer between
// concurrent signers. Resolvers produce identities; Cache wraps a
// resolver and serves the cached identity until it nears expiry. Only one
// refresh runs at a time, whatever the number of callers.
package identity
