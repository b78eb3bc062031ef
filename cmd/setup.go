package main

import (
	"context"
	"os"

	"github.com/desertthunder/recents/internal/repositories"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes config.toml from the embedded template if it does not exist.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configFile(cmd)

	if _, err := os.Stat(path); err == nil {
		r.writePlain("✓ Config already exists at %s\n", path)
		return nil
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret (or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET)\n")
	r.writePlain("2. Register %s as a redirect URI in the Spotify dashboard\n", r.config.Credentials.Spotify.RedirectURI)
	r.writePlain("3. Run 'recents auth login'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if cmd.Bool("purge-cache") {
		if err := repositories.NewPlayRepository(db).Purge(); err != nil {
			return err
		}
		r.logger.Info("play cache purged")
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// configFile returns the config path from the root --config flag.
func (r *Runner) configFile(cmd *cli.Command) string {
	if path := cmd.String("config"); path != "" {
		return path
	}
	if r.configPath != "" {
		return r.configPath
	}
	return defaultConfigPath
}
