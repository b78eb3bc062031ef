// Package repositories implements the credential stores and the play cache.
//
// Every store persists the same three namespaced keys:
//
//	<ns>_access_token
//	<ns>_refresh_token
//	<ns>_expires_at   (integer epoch milliseconds, encoded as a string)
//
// Key Implementations:
//   - [CredentialRepository] : SQLite credentials table, the default
//   - [MemoryStore] : process-local map, for tests and throwaway sessions
//   - [KeyringStore] : OS keyring via go-keyring
//   - [RedisStore] : shared store for several `serve` instances
//   - [PlayRepository] : last fetched page of listening history for offline reads
//
// Stores never validate what they hold; presence or absence of each key is all
// the lifecycle manager relies on when restoring.
package repositories
