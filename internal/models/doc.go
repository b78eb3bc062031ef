// Package models defines the entities shared by the credential stores, the Spotify clients and the lifecycle manager.
//
// The package contains two categories of types:
//
// 1. Credential state: the single mutable entity and its persistence contract
//   - [TokenState] : access/refresh token pair, expiry instant and transient authorization code
//   - [TokenGrant] : a successful token endpoint response
//   - [CredentialStore] : synchronous load/save/clear persistence for [TokenState]
//
// 2. Listening history DTOs decoded from the Spotify Web API
//   - [Play] : one entry of the recently-played page
//   - [Track], [Artist], [Album], [Image] : track metadata attached to a play
//   - [RecentlyPlayed] : the page envelope
package models
