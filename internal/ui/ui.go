package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
)

const playedAtLayout = "Jan 2 15:04"

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	DetailView
)

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	history    services.HistoryService
	limit      int
	width      int
	height     int
	playList   list.Model
	plays      []models.Play
	selected   *models.Play
	trackPlays []models.Play
	loading    bool
	err        error
	help       help.Model
	keys       keyMap
}

// NewModel creates a new TUI model that shows up to limit recent plays.
func NewModel(ctx context.Context, history services.HistoryService, limit int) *Model {
	if limit <= 0 || limit > services.MaxPageSize {
		limit = services.MaxPageSize
	}

	playList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	playList.Title = "Recently Played"

	return &Model{
		ctx:      ctx,
		view:     ListView,
		history:  history,
		limit:    limit,
		playList: playList,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init initializes the TUI by fetching recent plays.
func (m *Model) Init() tea.Cmd {
	m.loading = true
	return m.fetchPlays()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if m.err != nil {
			return m.handleErrorKeys(msg)
		}
		switch m.view {
		case ListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case playsFetchedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.plays = msg.plays
		items := make([]list.Item, len(msg.plays))
		for i, p := range msg.plays {
			items[i] = playItem{play: p}
		}
		return m, m.playList.SetItems(items)

	case historyFetchedMsg:
		if m.selected == nil || msg.trackID != m.selected.Track.ID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.trackPlays = msg.plays
		return m, nil
	}

	var cmd tea.Cmd
	if m.view == ListView {
		m.playList, cmd = m.playList.Update(msg)
	}
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.err))
	}

	switch m.view {
	case ListView:
		return m.renderList()
	case DetailView:
		return m.renderDetail()
	default:
		return ""
	}
}

// State returns the current view.
func (m *Model) State() ViewState { return m.view }

func (m *Model) handleErrorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.err = nil
		return m, m.reload()
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.playList, cmd = m.playList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		return m, m.reload()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.playList.SelectedItem().(playItem); ok {
			play := item.play
			m.selected = &play
			m.trackPlays = nil
			m.loading = true
			m.view = DetailView
			return m, m.fetchHistory(play.Track.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.playList, cmd = m.playList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ListView
		m.selected = nil
		m.trackPlays = nil
		m.loading = false
		return m, nil
	case key.Matches(msg, m.keys.reload):
		return m, m.reload()
	}
	return m, nil
}

func (m *Model) reload() tea.Cmd {
	m.loading = true
	if m.view == DetailView && m.selected != nil {
		return m.fetchHistory(m.selected.Track.ID)
	}
	return m.fetchPlays()
}

func (m *Model) fetchPlays() tea.Cmd {
	ctx, history, limit := m.ctx, m.history, m.limit
	return func() tea.Msg {
		plays, err := history.RecentlyPlayed(ctx, limit)
		return playsFetchedMsg{plays: plays, err: err}
	}
}

func (m *Model) fetchHistory(trackID string) tea.Cmd {
	ctx, history := m.ctx, m.history
	return func() tea.Msg {
		plays, err := history.TrackHistory(ctx, trackID)
		return historyFetchedMsg{trackID: trackID, plays: plays, err: err}
	}
}

func (m *Model) renderList() string {
	if m.loading && len(m.plays) == 0 {
		return styles.help.Render("Loading recently played…")
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.reload, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.playList.View(), helpView)
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return ""
	}
	track := m.selected.Track

	var b strings.Builder
	b.WriteString(styles.title.Render(track.Name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Artists: %s\n", track.ArtistNames())
	if track.Album.Name != "" {
		fmt.Fprintf(&b, "Album: %s\n", track.Album.Name)
	}
	fmt.Fprintf(&b, "Duration: %s\n", shared.FormatDuration(track.DurationMS))
	if url := track.ExternalURLs.Spotify; url != "" {
		fmt.Fprintf(&b, "Open: %s\n", url)
	}
	b.WriteString("\n")

	switch {
	case m.loading:
		b.WriteString(styles.help.Render("Loading play history…"))
	case len(m.trackPlays) == 0:
		b.WriteString(styles.warn.Render("No recent plays of this track"))
	default:
		b.WriteString(styles.ok.Render(fmt.Sprintf("Recent plays (%d)", len(m.trackPlays))))
		for _, p := range m.trackPlays {
			fmt.Fprintf(&b, "\n  • %s", p.PlayedAt.Local().Format(playedAtLayout))
		}
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.reload, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", b.String(), m.help.ShortHelpView(helpKeys))
}
