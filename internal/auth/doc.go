// Package auth selects the authentication scheme for a request and
// dispatches signing to it.
//
// A Scheme pairs an identity resolver lookup with a Signer. Negotiate
// walks the operation's ordered scheme options and binds the first scheme
// that is registered and whose resolver produces an identity. The
// no_auth and anonymous schemes are only reachable when they appear in
// the options, so a request that requires credentials is never sent
// unsigned because a real resolver failed.
package auth
