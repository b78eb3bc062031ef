// package services defines clients for the Spotify accounts service and Web API
package services

import (
	"context"

	"github.com/desertthunder/recents/internal/models"
)

// TokenExchanger performs the two token endpoint grants.
type TokenExchanger interface {
	// ExchangeCode trades an authorization code for a token pair.
	ExchangeCode(ctx context.Context, code string) (models.TokenGrant, error)

	// ExchangeRefreshToken trades a refresh token for a renewed access token.
	// The returned grant carries the previous refresh token when the provider omitted one.
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (models.TokenGrant, error)
}

// TokenProvider supplies the current access token to resource calls.
type TokenProvider interface {
	AccessToken() (string, error)
}

// HistoryService reads listening history.
type HistoryService interface {
	// RecentlyPlayed returns up to limit plays, most recent first.
	RecentlyPlayed(ctx context.Context, limit int) ([]models.Play, error)

	// TrackHistory returns the most recent plays of one track.
	TrackHistory(ctx context.Context, trackID string) ([]models.Play, error)
}
