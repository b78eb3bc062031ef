package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/recents/internal/formatter"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/urfave/cli/v3"
)

// Recent lists recently played tracks.
//
// Online results are written to the local play cache; --offline reads from it instead.
func (r *Runner) Recent(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit < 1 || limit > services.MaxPageSize {
		return fmt.Errorf("%w: --limit must be between 1 and %d", shared.ErrInvalidArgument, services.MaxPageSize)
	}

	s, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var plays []models.Play
	if cmd.Bool("offline") {
		if plays, err = s.plays.Recent(limit); err != nil {
			return err
		}
	} else {
		r.logger.Infof("fetching %d recently played tracks", limit)
		if plays, err = s.history.RecentlyPlayed(ctx, limit); err != nil {
			return err
		}
		r.cache(s, plays)
	}

	return r.emit(cmd, "Recently Played", plays)
}

// Track prints the most recent plays of one track.
func (r *Runner) Track(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("id")
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	s, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var plays []models.Play
	if cmd.Bool("offline") {
		if plays, err = s.plays.ByTrack(trackID, r.config.API.HistoryLimit); err != nil {
			return err
		}
	} else {
		if plays, err = s.history.TrackHistory(ctx, trackID); err != nil {
			return err
		}
		r.cache(s, plays)
	}

	if len(plays) == 0 {
		return fmt.Errorf("%w: no recent plays of %s", shared.ErrTrackNotFound, trackID)
	}
	return r.emit(cmd, plays[0].Track.Name, plays)
}

func (r *Runner) cache(s *session, plays []models.Play) {
	if err := s.plays.CachePlays(plays); err != nil {
		r.logger.Warn("failed to cache plays", "err", err)
	}
}

// emit writes plays to stdout or, with --output, to a file in the selected format.
func (r *Runner) emit(cmd *cli.Command, title string, plays []models.Play) error {
	if cmd.Bool("json") {
		return r.writeJSON(plays, cmd.Bool("pretty"))
	}

	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		if f == formatter.FormatMarkdown {
			result, err := formatter.WriteMarkdownExport(r.httpClient, title, plays, output)
			if err != nil {
				return err
			}
			r.logger.Info("markdown export written", "dir", result.Directory, "files", len(result.Files))
			return r.writePlain("✓ Exported %d plays to %s\n", len(plays), result.Directory)
		}

		path, err := formatter.WriteExport(f, title, plays, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d plays to %s\n", len(plays), path)
	}

	data, err := formatter.Render(f, title, plays)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
