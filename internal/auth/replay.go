package auth

import (
	"context"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/services"
)

// Renewer is the reactive half of [Manager].
type Renewer interface {
	HandleUnauthorized(ctx context.Context, cause error) error
}

// Call runs fn and, when it fails with an authorization rejection that r manages to renew,
// runs it exactly once more. Any other failure is returned as is.
func Call[T any](ctx context.Context, r Renewer, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}

	if rerr := r.HandleUnauthorized(ctx, err); rerr != nil {
		return v, rerr
	}
	return fn(ctx)
}

// History is a [services.HistoryService] whose calls go through [Call].
type History struct {
	Inner   services.HistoryService
	Renewer Renewer
}

var _ services.HistoryService = History{}

func (h History) RecentlyPlayed(ctx context.Context, limit int) ([]models.Play, error) {
	return Call(ctx, h.Renewer, func(ctx context.Context) ([]models.Play, error) {
		return h.Inner.RecentlyPlayed(ctx, limit)
	})
}

func (h History) TrackHistory(ctx context.Context, trackID string) ([]models.Play, error) {
	return Call(ctx, h.Renewer, func(ctx context.Context) ([]models.Play, error) {
		return h.Inner.TrackHistory(ctx, trackID)
	})
}
