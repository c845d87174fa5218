// Package keys provides implementations of interfaces.KeyProvider: an
// in-memory provider for tests and ephemeral agents, a file provider with
// private keys encrypted at rest, a Vault KV provider, a DNS TXT resolver
// for verification-only key lookup, and a Redis-backed caching decorator.
//
// It also offers Shamir secret sharing for backing up a provider's
// passphrase across multiple custodians.
package keys
