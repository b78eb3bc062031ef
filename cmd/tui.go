package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/desertthunder/recents/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for recent listening history.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	s, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start token renewal: %w", err)
	}

	model := ui.NewModel(ctx, s.history, cmd.Int("limit"))
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
