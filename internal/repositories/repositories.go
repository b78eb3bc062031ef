// package repositories provides persistence layer implementations for credential state.
package repositories

import (
	"strconv"
	"time"

	"github.com/desertthunder/recents/internal/models"
)

// DefaultNamespace prefixes credential keys when none is configured.
const DefaultNamespace = "spotify"

// Keys names the persisted fields for one namespace.
type Keys struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    string
}

// NewKeys returns the key set for namespace ns.
func NewKeys(ns string) Keys {
	if ns == "" {
		ns = DefaultNamespace
	}
	return Keys{
		AccessToken:  ns + "_access_token",
		RefreshToken: ns + "_refresh_token",
		ExpiresAt:    ns + "_expires_at",
	}
}

// All returns every key in a fixed order.
func (k Keys) All() []string {
	return []string{k.AccessToken, k.RefreshToken, k.ExpiresAt}
}

// EncodeTokenState maps the present fields of s to their keys.
func EncodeTokenState(k Keys, s models.TokenState) map[string]string {
	values := make(map[string]string, 3)
	if s.AccessToken != "" {
		values[k.AccessToken] = s.AccessToken
	}
	if s.RefreshToken != "" {
		values[k.RefreshToken] = s.RefreshToken
	}
	if s.HasExpiry() {
		values[k.ExpiresAt] = strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10)
	}
	return values
}

// DecodeTokenState builds a partial [models.TokenState] from stored values.
//
// An expiry that is not an integer is treated as absent.
func DecodeTokenState(k Keys, values map[string]string) models.TokenState {
	s := models.TokenState{
		AccessToken:  values[k.AccessToken],
		RefreshToken: values[k.RefreshToken],
	}
	if raw, ok := values[k.ExpiresAt]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.ExpiresAt = time.UnixMilli(ms)
		}
	}
	return s
}
