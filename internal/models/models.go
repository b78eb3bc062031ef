// package models defines the data model for recent listening history
package models

import (
	"strings"
	"time"
)

// TokenState is the credential held by the lifecycle manager and mirrored to a [CredentialStore].
//
// Empty strings and the zero [time.Time] mean absent. ExpiresAt always belongs to AccessToken.
type TokenState struct {
	AccessToken       string
	RefreshToken      string
	ExpiresAt         time.Time
	AuthorizationCode string
}

// IsAuthenticated reports whether an access token is held.
func (s TokenState) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// HasExpiry reports whether an expiry instant is known.
func (s TokenState) HasExpiry() bool {
	return !s.ExpiresAt.IsZero()
}

// Expired reports whether now is at or past the expiry instant. A state without expiry never expires.
func (s TokenState) Expired(now time.Time) bool {
	return s.HasExpiry() && !now.Before(s.ExpiresAt)
}

// TokenGrant is a successful response from the token endpoint.
//
// RefreshToken is empty when the provider did not issue one.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// CredentialStore persists [TokenState] between runs.
//
// Implementations do not validate contents. Save writes only the non-empty fields of s;
// AuthorizationCode is never persisted.
type CredentialStore interface {
	Load() (TokenState, error) // Load returns whatever subset of the state is persisted
	Save(s TokenState) error   // Save writes the present fields of s
	Clear() error              // Clear removes every persisted field
}

// RecentlyPlayed is the cursor-paged envelope returned by /v1/me/player/recently-played.
type RecentlyPlayed struct {
	Items   []Play   `json:"items"`
	Next    string   `json:"next,omitempty"`
	Limit   int      `json:"limit"`
	Cursors *Cursors `json:"cursors,omitempty"`
	Href    string   `json:"href,omitempty"`
}

// Cursors holds the before/after markers of a recently-played page.
type Cursors struct {
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`
}

// Play is a single listen of a track.
type Play struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

// Track represents song metadata.
type Track struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Artists      []Artist     `json:"artists"`
	Album        Album        `json:"album"`
	DurationMS   int          `json:"duration_ms"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

// ArtistNames joins the artist names with ", ".
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Artist is a credited artist.
type Artist struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Album is the album a track belongs to.
type Album struct {
	ID     string  `json:"id,omitempty"`
	Name   string  `json:"name"`
	Images []Image `json:"images,omitempty"`
}

// Cover returns the URL of the first (largest) album image, or "".
func (a Album) Cover() string {
	if len(a.Images) == 0 {
		return ""
	}
	return a.Images[0].URL
}

// Image is album artwork.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// ExternalURLs holds links to the track on the provider.
type ExternalURLs struct {
	Spotify string `json:"spotify,omitempty"`
}
