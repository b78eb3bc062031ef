package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/recents/internal/auth"
	"github.com/desertthunder/recents/internal/server"
	"github.com/desertthunder/recents/internal/shared"
	"github.com/urfave/cli/v3"
)

// loginTimeout bounds how long AuthLogin waits for the browser redirect.
const loginTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization code flow for Spotify.
//
// Starts a local HTTP server on the redirect URI, opens the browser for consent and hands the
// returned code to the lifecycle manager, which persists the resulting tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if snap := s.manager.Snapshot(); snap.State != auth.Unauthenticated {
		if !cmd.Bool("force") {
			r.writePlain("✓ Already authenticated (%s)\n", snap.State)
			r.writePlain("Run with --force to sign in again.\n")
			return nil
		}
		if err := s.manager.Logout(); err != nil {
			r.logger.Warn("failed to clear previous credentials", "err", err)
		}
	}

	if err := r.login(ctx, s); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to the %s store\n\n", r.config.Store.Backend)
	r.writePlain("You can now use: recents recent\n")
	return nil
}

// login runs the browser flow against a short-lived callback server.
func (r *Runner) login(ctx context.Context, s *session) error {
	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewCallbackHandler(s.callback, state, s.manager.HandleAuthorizationCode)
	httpServer := &http.Server{
		Handler:           server.Mount(handler, r.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	addr, err := listenAddr(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting callback server at %v", addr)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := s.oauth.AuthorizationURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.open(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", loginTimeout)

	timeout := time.NewTimer(loginTimeout)
	defer timeout.Stop()

	select {
	case result := <-handler.Result():
		if result.Err != nil {
			return fmt.Errorf("authorization failed: %w", result.Err)
		}
		return nil
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, loginTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthStatus prints the lifecycle manager state without revealing tokens.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	status := server.NewStatusResponse(s.manager.Snapshot())
	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Spotify session")
	r.writePlain("Store: %s\n", r.config.Store.Backend)
	r.writePlain("State: %s\n", status.State)
	if status.Authenticated {
		r.writePlain("Authentication: ✓ Authenticated\n")
	} else {
		r.writePlain("Authentication: ✗ Not authenticated\n")
	}
	r.writePlain("Refresh token: %v\n", status.HasRefreshToken)
	if status.ExpiresAt != nil {
		r.writePlain("Renews at: %s\n", status.ExpiresAt.Local().Format(time.RFC1123))
	}
	if status.LastRenewed != nil {
		r.writePlain("Last renewed: %s\n", status.LastRenewed.Local().Format(time.RFC1123))
	}
	return nil
}

// AuthLogout clears the held and persisted credentials.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Logout(); err != nil {
		return err
	}
	return r.writePlain("✓ Logged out\n")
}

// AuthURL prints a consent URL without starting the callback server.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	oauth, err := r.spotifyAuth()
	if err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]string{"url": oauth.AuthorizationURL(state), "state": state}, false)
	}
	return r.writePlain("%s\n", oauth.AuthorizationURL(state))
}

// listenAddr returns host:port of the redirect URI, defaulting the port by scheme.
func listenAddr(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
