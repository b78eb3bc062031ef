package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/recents/internal/models"
)

var _ list.Item = playItem{}

// playItem wraps [models.Play] to implement [list.Item].
type playItem struct {
	play models.Play
}

func (i playItem) FilterValue() string { return i.play.Track.Name + " " + i.play.Track.ArtistNames() }
func (i playItem) Title() string       { return i.play.Track.Name }
func (i playItem) Description() string {
	desc := i.play.Track.ArtistNames()
	if album := i.play.Track.Album.Name; album != "" {
		desc = fmt.Sprintf("%s • %s", desc, album)
	}
	return fmt.Sprintf("%s • %s", desc, i.play.PlayedAt.Local().Format(playedAtLayout))
}
