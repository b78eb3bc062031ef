package ui

import "github.com/desertthunder/recents/internal/models"

// playsFetchedMsg carries the result of loading the recently played list.
type playsFetchedMsg struct {
	plays []models.Play
	err   error
}

// historyFetchedMsg carries the recent plays of one track.
type historyFetchedMsg struct {
	trackID string
	plays   []models.Play
	err     error
}
