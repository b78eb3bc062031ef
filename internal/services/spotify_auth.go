package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// DefaultScopes are requested when the config names none.
var DefaultScopes = []string{"user-read-recently-played"}

// SpotifyAuth performs the OAuth2 authorization code flow against the Spotify accounts service.
type SpotifyAuth struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewSpotifyAuth creates a token exchange client from the Spotify credentials config.
//
// httpClient may be nil, in which case [http.DefaultClient] is used.
func NewSpotifyAuth(cfg shared.SpotifyConfig, httpClient *http.Client) (*SpotifyAuth, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_secret", shared.ErrMissingCredentials)
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("%w: spotify redirect_uri", shared.ErrMissingCredentials)
	}

	endpoint := spotify.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInHeader

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	return &SpotifyAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
	}, nil
}

// AuthorizationURL returns the consent page URL. It makes no network call.
//
// state is omitted from the URL when empty.
func (a *SpotifyAuth) AuthorizationURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// OAuthConfig exposes the underlying config.
func (a *SpotifyAuth) OAuthConfig() *oauth2.Config {
	return a.config
}

// ExchangeCode trades an authorization code for a token grant.
func (a *SpotifyAuth) ExchangeCode(ctx context.Context, code string) (models.TokenGrant, error) {
	if code == "" {
		return models.TokenGrant{}, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	tok, err := a.config.Exchange(a.withClient(ctx), code)
	if err != nil {
		return models.TokenGrant{}, classifyTokenError(grantAuthorizationCode, err)
	}
	return grantFromToken(grantAuthorizationCode, tok, "")
}

// ExchangeRefreshToken trades a refresh token for a renewed grant.
//
// When the provider omits refresh_token the previous one is returned in the grant.
func (a *SpotifyAuth) ExchangeRefreshToken(ctx context.Context, refreshToken string) (models.TokenGrant, error) {
	if refreshToken == "" {
		return models.TokenGrant{}, shared.ErrNoRefreshToken
	}

	src := a.config.TokenSource(a.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.TokenGrant{}, classifyTokenError(grantRefreshToken, err)
	}
	return grantFromToken(grantRefreshToken, tok, refreshToken)
}

func (a *SpotifyAuth) withClient(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// grantFromToken validates the fields the lifecycle manager depends on.
func grantFromToken(grant string, tok *oauth2.Token, previousRefresh string) (models.TokenGrant, error) {
	if tok.AccessToken == "" {
		return models.TokenGrant{}, &shared.ExchangeError{Grant: grant, Err: errors.New("response missing access_token")}
	}

	seconds := expiresIn(tok)
	if seconds <= 0 {
		return models.TokenGrant{}, &shared.ExchangeError{Grant: grant, Err: errors.New("response missing expires_in")}
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	return models.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresIn:    time.Duration(seconds) * time.Second,
	}, nil
}

// expiresIn reads the raw expires_in field, falling back to [oauth2.Token.ExpiresIn].
func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return tok.ExpiresIn
}

// classifyTokenError maps oauth2 failures onto the exchange error taxonomy.
func classifyTokenError(grant string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &shared.ExchangeError{Grant: grant, Status: status, Body: string(retrieveErr.Body)}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &shared.NetworkError{Op: grant + " exchange", Err: err}
	}

	return &shared.ExchangeError{Grant: grant, Err: err}
}
