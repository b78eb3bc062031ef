// Package services implements the Spotify clients used by the lifecycle manager and the command layer.
//
// # Token Exchange
//
// [SpotifyAuth] builds the authorization URL and performs the authorization_code and
// refresh_token grants through [oauth2.Config]. Both grants go to the same token endpoint and
// authenticate the client with HTTP Basic. It holds no state; the lifecycle manager owns tokens.
//
// # Resource Client
//
// [SpotifyService] issues GET /v1/me/player/recently-played with the token from a [TokenProvider].
// Responses are validated against an embedded JSON schema before decoding.
//
// # Error Handling
//
// Failures are typed so callers never inspect message text:
//   - [shared.ExchangeError] : token endpoint answered non-2xx, or 2xx without access_token/expires_in
//   - [shared.APIError] : resource call answered non-2xx; Kind is [shared.FailureUnauthorized] only for 401
//   - [shared.SchemaError] : resource payload did not match the schema
//   - [shared.NetworkError] : no response was received
package services
