// Package server exposes the token lifecycle manager and listening history over HTTP.
//
// # Routes
//
//	GET  /health                    liveness and lifecycle state
//	GET  /api/auth/url              authorization URL with a fresh state value
//	GET  /api/callback              provider redirect target
//	POST /api/auth/token            exchange a code collected by a front-end
//	GET  /api/status                authentication summary, never tokens
//	POST /api/logout                clear credentials
//	GET  /api/recent?limit=N        recently played tracks
//	GET  /api/tracks/{id}/history   recent plays of one track
//
// # Renewal
//
// History routes go through [auth.Call]: a 401 from the Web API is handed to the manager and,
// if the credential is renewed, the upstream request is replayed once. Identical reads that
// arrive while one is in flight share its result.
//
// # CLI Login
//
// [CallbackHandler] serves a single redirect for `recents auth login`. It checks the state,
// hands the code to the manager and reports the outcome on [CallbackHandler.Result]. It only
// processes one callback.
package server
