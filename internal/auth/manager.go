package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
)

// Manager is the token lifecycle manager. The zero value is not usable; see [New].
type Manager struct {
	exchanger services.TokenExchanger
	store     models.CredentialStore
	logger    *log.Logger
	nowFunc   func() time.Time
	interval  time.Duration

	mu       sync.Mutex
	state    State
	tokens   models.TokenState
	epoch    uint64 // bumped on every reset; stale network results compare against it
	failures int
	renewed  time.Time
	inflight *flight

	started bool
	parent  context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// flight is the single outstanding refresh. Fields other than done are guarded by Manager.mu.
type flight struct {
	done     chan struct{}
	err      error
	reactive bool
}

// Option configures a [Manager].
type Option func(*Manager)

// WithNowFunc replaces the clock used for expiry decisions.
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithCheckInterval sets the proactive loop period.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the parent logger; the manager logs under component=auth.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a manager and restores whatever the store holds.
//
// A persisted access token restores Authenticated, with or without expiry. A refresh token
// without an access token is ignored.
func New(exchanger services.TokenExchanger, store models.CredentialStore, opts ...Option) (*Manager, error) {
	if exchanger == nil {
		return nil, fmt.Errorf("%w: token exchanger", shared.ErrMissingArgument)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: credential store", shared.ErrMissingArgument)
	}

	m := &Manager{
		exchanger: exchanger,
		store:     store,
		nowFunc:   time.Now,
		interval:  DefaultCheckInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = shared.NewLogger(nil)
	}
	m.logger = shared.WithLogger(m.logger, "component", "auth")

	persisted, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	m.restore(persisted)

	return m, nil
}

func (m *Manager) restore(persisted models.TokenState) {
	if persisted.AccessToken == "" {
		if persisted.RefreshToken != "" {
			m.logger.Warn("ignoring stored refresh token without an access token")
		}
		return
	}

	m.tokens = models.TokenState{
		AccessToken:  persisted.AccessToken,
		RefreshToken: persisted.RefreshToken,
		ExpiresAt:    persisted.ExpiresAt,
	}
	m.state = Authenticated
	m.logger.Debug("restored credentials",
		"access_token", shared.Redact(persisted.AccessToken),
		"has_refresh_token", persisted.RefreshToken != "",
		"expires_at", persisted.ExpiresAt,
	)
}

func (m *Manager) now() time.Time {
	return m.nowFunc()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the manager's state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:    m.state,
		Tokens:   m.tokens,
		Failures: m.failures,
		Renewed:  m.renewed,
		Running:  m.cancel != nil,
	}
}

// AccessToken returns the current access token. It satisfies [services.TokenProvider].
func (m *Manager) AccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Failed {
		return "", shared.ErrManagerFailed
	}
	if m.tokens.AccessToken == "" {
		return "", shared.ErrNotAuthenticated
	}
	return m.tokens.AccessToken, nil
}

// HandleAuthorizationCode exchanges a redirect code for tokens.
//
// The code is used once. On failure the manager returns to Unauthenticated and the
// exchange error is returned unchanged.
func (m *Manager) HandleAuthorizationCode(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	m.mu.Lock()
	switch m.state {
	case Failed:
		m.mu.Unlock()
		return shared.ErrManagerFailed
	case Exchanging:
		m.mu.Unlock()
		return shared.ErrExchangeInProgress
	case Authenticated, Refreshing:
		m.mu.Unlock()
		return fmt.Errorf("%w: already authenticated, log out first", shared.ErrInvalidInput)
	}
	m.tokens.AuthorizationCode = code
	m.setState(Exchanging)
	epoch := m.epoch
	m.mu.Unlock()

	m.logger.Info("exchanging authorization code")
	grant, err := m.exchanger.ExchangeCode(ctx, code)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return fmt.Errorf("%w: logged out during exchange", shared.ErrNotAuthenticated)
	}
	m.tokens.AuthorizationCode = ""

	if err != nil {
		m.setState(Unauthenticated)
		m.logger.Error("authorization code exchange failed", "err", err)
		return err
	}

	now := m.now()
	next := models.TokenState{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    expiresAt(now, grant.ExpiresIn),
	}

	if err := m.store.Clear(); err != nil {
		return m.failLocked(err)
	}
	if err := m.store.Save(next); err != nil {
		return m.failLocked(err)
	}

	m.tokens = next
	m.failures = 0
	m.renewed = now
	m.setState(Authenticated)
	m.logger.Info("authenticated", "access_token", shared.Redact(next.AccessToken), "expires_at", next.ExpiresAt)
	m.armLocked()
	return nil
}

// CheckExpiry is the proactive path. It refreshes only when now has reached the recorded
// expiry; otherwise it does nothing. Refresh failures are logged and not returned.
func (m *Manager) CheckExpiry(ctx context.Context) error {
	m.mu.Lock()
	state, tokens := m.state, m.tokens
	m.mu.Unlock()

	switch state {
	case Failed:
		return shared.ErrManagerFailed
	case Authenticated, Refreshing:
	default:
		return nil
	}

	if !tokens.Expired(m.now()) {
		return nil
	}

	if err := m.ensureFresh(ctx, TriggerProactive); err != nil {
		switch {
		case errors.Is(err, shared.ErrManagerFailed):
			return err
		case errors.Is(err, shared.ErrNoRefreshToken):
			m.logger.Warn("access token expired and no refresh token is held")
		default:
			m.logger.Debug("proactive check finished without renewal", "err", err)
		}
	}
	return nil
}

// HandleUnauthorized is the reactive path for a failed resource call.
//
// It returns cause unchanged when cause is not an authorization rejection or when there is
// nothing to refresh with. It returns nil once the credential is renewed, which tells the
// caller a single replay may succeed. A rejection of a token that has already been replaced
// also returns nil without refreshing again. If renewal fails the tokens are cleared and an
// [shared.ErrRefreshFailed] error is returned.
func (m *Manager) HandleUnauthorized(ctx context.Context, cause error) error {
	if !shared.IsUnauthorized(cause) {
		return cause
	}

	rejected := shared.RejectedToken(cause)

	m.mu.Lock()
	state, hasRefresh := m.state, m.tokens.RefreshToken != ""
	replaced := rejected != "" && state == Authenticated &&
		m.tokens.AccessToken != rejected && !m.tokens.Expired(m.now())
	m.mu.Unlock()

	if state == Failed {
		return fmt.Errorf("%w: %w", shared.ErrManagerFailed, cause)
	}
	if replaced {
		m.logger.Debug("rejected token already replaced, replaying with the current one")
		return nil
	}
	if (state != Authenticated && state != Refreshing) || !hasRefresh {
		return cause
	}

	m.logger.Info("access token rejected, renewing")
	if err := m.ensureFresh(ctx, TriggerReactive); err != nil {
		if errors.Is(err, shared.ErrNoRefreshToken) || errors.Is(err, shared.ErrNotAuthenticated) {
			return cause
		}
		return err
	}
	return nil
}

// ensureFresh starts a refresh, or joins the one already running, and waits for its result.
func (m *Manager) ensureFresh(ctx context.Context, trigger Trigger) error {
	m.mu.Lock()
	switch m.state {
	case Failed:
		m.mu.Unlock()
		return shared.ErrManagerFailed
	case Authenticated, Refreshing:
	default:
		m.mu.Unlock()
		return shared.ErrNotAuthenticated
	}

	if f := m.inflight; f != nil {
		if trigger == TriggerReactive {
			f.reactive = true
		}
		m.mu.Unlock()
		m.logger.Debug("joining in-flight refresh", "trigger", trigger)
		return wait(ctx, f)
	}

	refreshToken := m.tokens.RefreshToken
	if refreshToken == "" {
		m.mu.Unlock()
		return shared.ErrNoRefreshToken
	}

	f := &flight{done: make(chan struct{}), reactive: trigger == TriggerReactive}
	m.inflight = f
	m.setState(Refreshing)
	epoch := m.epoch
	m.mu.Unlock()

	m.logger.Info("refreshing access token", "trigger", trigger, "refresh_token", shared.Redact(refreshToken))
	go m.refresh(context.WithoutCancel(ctx), f, refreshToken, epoch)
	return wait(ctx, f)
}

func wait(ctx context.Context, f *flight) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh performs the network call for f and applies its outcome.
func (m *Manager) refresh(ctx context.Context, f *flight, refreshToken string, epoch uint64) {
	grant, err := m.exchanger.ExchangeRefreshToken(ctx, refreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer close(f.done)

	if m.inflight == f {
		m.inflight = nil
	}
	if m.epoch != epoch {
		f.err = fmt.Errorf("%w: logged out during refresh", shared.ErrNotAuthenticated)
		return
	}

	if err != nil {
		f.err = fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
		if f.reactive {
			m.logger.Error("refresh after rejected token failed, clearing credentials", "err", err)
			m.resetLocked()
			if cerr := m.store.Clear(); cerr != nil {
				f.err = m.failLocked(cerr)
			}
			return
		}

		m.failures++
		m.setState(Authenticated)
		m.logger.Warn("proactive refresh failed, keeping current token", "err", err, "failures", m.failures)
		return
	}

	now := m.now()
	next := m.tokens
	next.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		next.RefreshToken = grant.RefreshToken
	}
	next.ExpiresAt = expiresAt(now, grant.ExpiresIn)

	if err := m.store.Save(next); err != nil {
		f.err = m.failLocked(err)
		return
	}

	m.tokens = next
	m.failures = 0
	m.renewed = now
	m.setState(Authenticated)
	m.logger.Info("access token refreshed", "access_token", shared.Redact(next.AccessToken), "expires_at", next.ExpiresAt)
}

// Logout clears memory and the store from any state and stops the proactive loop.
//
// The manager is Unauthenticated afterwards even when the store fails to clear.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.resetLocked()
	err := m.store.Clear()
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to clear credential store", "err", err)
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	m.logger.Info("logged out")
	return nil
}

// Start runs the proactive expiry loop until ctx is done or [Manager.Close] is called.
//
// The loop is paused while Unauthenticated and resumes after the next successful code exchange.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Failed {
		return shared.ErrManagerFailed
	}
	if m.started {
		return nil
	}
	m.started = true
	m.parent = ctx
	if m.state == Authenticated || m.state == Refreshing {
		m.armLocked()
	}
	return nil
}

// Close stops the proactive loop and waits for it to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.started = false
	m.disarmLocked()
	m.mu.Unlock()

	m.loops.Wait()
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer m.loops.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug("proactive loop started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("proactive loop stopped")
			return
		case <-ticker.C:
			if err := m.CheckExpiry(ctx); errors.Is(err, shared.ErrManagerFailed) {
				m.logger.Error("proactive loop stopping", "err", err)
				return
			}
		}
	}
}

func (m *Manager) armLocked() {
	if !m.started || m.cancel != nil || m.parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(m.parent)
	m.cancel = cancel
	m.loops.Add(1)
	go m.run(ctx)
}

func (m *Manager) disarmLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// resetLocked drops all credential state and invalidates outstanding network results.
func (m *Manager) resetLocked() {
	m.epoch++
	m.tokens = models.TokenState{}
	m.failures = 0
	m.inflight = nil
	m.setState(Unauthenticated)
	m.disarmLocked()
}

// failLocked enters Failed after the store rejected a write.
func (m *Manager) failLocked(cause error) error {
	m.epoch++
	m.tokens = models.TokenState{}
	m.inflight = nil
	m.setState(Failed)
	m.disarmLocked()
	m.logger.Error("credential store write failed", "err", cause)
	return fmt.Errorf("%w: %w", shared.ErrManagerFailed, cause)
}

func (m *Manager) setState(next State) {
	if m.state == next {
		return
	}
	m.logger.Debug("state transition", "from", m.state, "to", next)
	m.state = next
}
