// Package auth owns the Spotify credential lifecycle.
//
// A [Manager] holds the access/refresh token pair in memory, mirrors every change to a
// [models.CredentialStore], and renews the access token two ways:
//
//   - proactively, from a ticker started with [Manager.Start], once now reaches the stored expiry
//   - reactively, when a caller hands it an unauthorized resource failure via [Manager.HandleUnauthorized]
//
// Expiry is recorded [SafetyMargin] before the provider's reported lifetime ends.
//
// Both paths share one in-flight refresh. A trigger that arrives while a refresh is running
// waits for that refresh instead of issuing another. When the shared attempt fails, tokens are
// cleared only if a reactive trigger took part; a purely proactive failure keeps the tokens and
// is retried on the next tick.
//
// The manager never replays requests. HandleUnauthorized returns nil when the credential was
// renewed, and the caller decides whether to retry.
//
// # States
//
//	Unauthenticated --code--> Exchanging --ok--> Authenticated --expired/401--> Refreshing
//	       ^                      |                    ^                            |
//	       +-------- failed ------+                    +------------ ok ------------+
//
// Failed is entered when the credential store rejects a write. Every call except [Manager.Logout]
// then returns [shared.ErrManagerFailed]; Logout resets to Unauthenticated.
package auth
