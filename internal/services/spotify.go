// Spotify Web API resource client
//
// Response types are in [models]; see https://developer.spotify.com/documentation/web-api/reference/get-recently-played
package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	// MaxPageSize is the largest limit the recently-played endpoint accepts.
	MaxPageSize = 50
	// DefaultHistoryLimit caps [SpotifyService.TrackHistory].
	DefaultHistoryLimit = 5

	resourceRecentlyPlayed = "recently-played"
)

//go:embed schema/recently_played.json
var recentlyPlayedSchema []byte

// SpotifyService reads listening history from the Spotify Web API.
//
// It never refreshes credentials. A 401 comes back as an [shared.APIError] with
// Kind [shared.FailureUnauthorized] for the caller to hand to the lifecycle manager.
type SpotifyService struct {
	baseURL      string
	tokens       TokenProvider
	httpClient   *http.Client
	limiter      *rate.Limiter
	schema       *gojsonschema.Schema
	pageSize     int
	historyLimit int
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithBaseURL points the client at another API root, e.g. an [httptest.Server].
func WithBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = u }
}

// WithHTTPClient sets the client used for resource calls.
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.httpClient = c }
}

// WithRateLimit paces outbound requests. Zero or negative disables pacing.
func WithRateLimit(rps float64) SpotifyOption {
	return func(s *SpotifyService) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithPageSize sets the default limit used when RecentlyPlayed is called with limit <= 0.
func WithPageSize(n int) SpotifyOption {
	return func(s *SpotifyService) {
		if n > 0 && n <= MaxPageSize {
			s.pageSize = n
		}
	}
}

// WithHistoryLimit sets how many plays TrackHistory returns.
func WithHistoryLimit(n int) SpotifyOption {
	return func(s *SpotifyService) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// NewSpotifyService creates a resource client that authorizes with tokens.
func NewSpotifyService(tokens TokenProvider, opts ...SpotifyOption) (*SpotifyService, error) {
	if tokens == nil {
		return nil, fmt.Errorf("%w: token provider", shared.ErrMissingArgument)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recentlyPlayedSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", resourceRecentlyPlayed, err)
	}

	s := &SpotifyService{
		baseURL:      spotifyBaseURL,
		tokens:       tokens,
		httpClient:   http.DefaultClient,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		schema:       schema,
		pageSize:     MaxPageSize,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecentlyPlayed returns up to limit recent plays, most recent first.
//
// limit <= 0 uses the configured page size; values above [MaxPageSize] are clamped.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, limit int) ([]models.Play, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	limit = min(limit, MaxPageSize)

	page, err := s.recentlyPlayed(ctx, limit)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// TrackHistory fetches one full page and keeps the most recent plays of trackID.
func (s *SpotifyService) TrackHistory(ctx context.Context, trackID string) ([]models.Play, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	page, err := s.recentlyPlayed(ctx, MaxPageSize)
	if err != nil {
		return nil, err
	}
	return FilterTrack(page.Items, trackID, s.historyLimit), nil
}

// FilterTrack keeps at most limit plays of trackID, preserving order.
func FilterTrack(plays []models.Play, trackID string, limit int) []models.Play {
	matched := []models.Play{}
	for _, p := range plays {
		if p.Track.ID != trackID {
			continue
		}
		matched = append(matched, p)
		if len(matched) == limit {
			break
		}
	}
	return matched
}

func (s *SpotifyService) recentlyPlayed(ctx context.Context, limit int) (*models.RecentlyPlayed, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	body, err := s.doRequest(ctx, resourceRecentlyPlayed, "/me/player/recently-played?"+query.Encode())
	if err != nil {
		return nil, err
	}

	if err := s.validate(resourceRecentlyPlayed, body); err != nil {
		return nil, err
	}

	var page models.RecentlyPlayed
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &shared.SchemaError{Resource: resourceRecentlyPlayed, Details: []string{err.Error()}}
	}
	return &page, nil
}

// doRequest performs an authenticated GET and returns the body of a 2xx response.
func (s *SpotifyService) doRequest(ctx context.Context, op, endpoint string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.AccessToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &shared.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &shared.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &shared.APIError{Kind: shared.FailureOther, Status: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Kind = shared.FailureUnauthorized
			apiErr.Token = token
		}
		return nil, apiErr
	}

	return body, nil
}

func (s *SpotifyService) validate(resource string, body []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &shared.SchemaError{Resource: resource, Details: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return &shared.SchemaError{Resource: resource, Details: details}
}
