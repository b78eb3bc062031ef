package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/desertthunder/recents/internal/auth"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/repositories"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/redis/go-redis/v9"
)

// session is the wired credential and history stack for one command invocation.
type session struct {
	db       *sql.DB
	store    models.CredentialStore
	oauth    *services.SpotifyAuth
	manager  *auth.Manager
	spotify  *services.SpotifyService
	history  services.HistoryService
	plays    *repositories.PlayRepository
	closers  []func() error
	callback string
}

// Close stops the manager and releases the database and store connections.
func (s *session) Close() error {
	var errs []error
	if s.manager != nil {
		errs = append(errs, s.manager.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openDatabase opens the sqlite database and applies pending migrations.
func (r *Runner) openDatabase() (*sql.DB, error) {
	cfg := r.config.Database
	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// openStore builds the credential store selected by store.backend.
func (r *Runner) openStore(ctx context.Context, s *session) (models.CredentialStore, error) {
	ns := r.config.Auth.Namespace

	switch backend := r.config.Store.Backend; backend {
	case shared.BackendSQLite:
		return repositories.NewCredentialRepository(s.db, ns), nil
	case shared.BackendMemory:
		return repositories.NewMemoryStore(ns), nil
	case shared.BackendKeyring:
		return repositories.NewKeyringStore(r.config.Store.KeyringService, ns), nil
	case shared.BackendRedis:
		opts, err := redis.ParseURL(r.config.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis.url: %v", shared.ErrInvalidConfig, err)
		}
		client := redis.NewClient(opts)
		s.closers = append(s.closers, client.Close)

		store := repositories.NewRedisStore(client, r.config.Redis.Prefix, ns, r.config.Redis.Timeout())
		if err := store.CheckHealth(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", shared.ErrInvalidConfig, backend)
	}
}

// spotifyAuth builds the token endpoint client from the Spotify credentials.
func (r *Runner) spotifyAuth() (*services.SpotifyAuth, error) {
	spotifyCfg := r.config.Credentials.Spotify
	if !spotifyCfg.HasClientCredentials() {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml or the environment", shared.ErrMissingCredentials)
	}
	return services.NewSpotifyAuth(spotifyCfg, r.httpClient)
}

// openSession wires database, credential store, lifecycle manager and Spotify client.
//
// The caller must Close the returned session.
func (r *Runner) openSession(ctx context.Context) (*session, error) {
	spotifyCfg := r.config.Credentials.Spotify
	oauth, err := r.spotifyAuth()
	if err != nil {
		return nil, err
	}

	callback, err := callbackPath(spotifyCfg.RedirectURI)
	if err != nil {
		return nil, err
	}

	s := &session{callback: callback, oauth: oauth}

	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	s.db = db
	s.closers = append(s.closers, db.Close)
	s.plays = repositories.NewPlayRepository(db)

	if s.store, err = r.openStore(ctx, s); err != nil {
		s.Close()
		return nil, err
	}

	s.manager, err = auth.New(s.oauth, s.store,
		auth.WithCheckInterval(r.config.Auth.CheckInterval()),
		auth.WithLogger(r.logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := []services.SpotifyOption{
		services.WithHTTPClient(r.httpClient),
		services.WithRateLimit(r.config.API.RequestsPerSecond),
		services.WithPageSize(r.config.API.PageSize),
		services.WithHistoryLimit(r.config.API.HistoryLimit),
	}
	if spotifyCfg.APIURL != "" {
		opts = append(opts, services.WithBaseURL(spotifyCfg.APIURL))
	}
	if s.spotify, err = services.NewSpotifyService(s.manager, opts...); err != nil {
		s.Close()
		return nil, err
	}

	s.history = auth.History{Inner: s.spotify, Renewer: s.manager}
	return s, nil
}

// callbackPath extracts the path component of the configured redirect URI.
func callbackPath(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}
