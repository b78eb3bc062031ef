// package server contains the HTTP handlers and middleware for the recents API and OAuth callback
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/recents/internal/auth"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows which paths it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// Sessions is the part of [auth.Manager] the server drives.
type Sessions interface {
	auth.Renewer
	Snapshot() auth.Snapshot
	HandleAuthorizationCode(ctx context.Context, code string) error
	Logout() error
}

// Authorizer builds provider authorization URLs.
type Authorizer interface {
	AuthorizationURL(state string) string
}

// stateTTL bounds how long an issued OAuth state value is accepted.
const stateTTL = 10 * time.Minute

// Options configures a [Server].
type Options struct {
	Sessions       Sessions
	History        services.HistoryService
	Authorizer     Authorizer
	Logger         *log.Logger
	AllowedOrigins []string
	CallbackPath   string
	NowFunc        func() time.Time
}

// Server exposes the lifecycle manager and listening history over HTTP.
type Server struct {
	router     *chi.Mux
	sessions   Sessions
	history    services.HistoryService
	authorizer Authorizer
	logger     *log.Logger
	flights    singleflight.Group
	now        func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

// New creates a server with all routes registered.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/api/callback"
	}
	if opts.NowFunc == nil {
		opts.NowFunc = time.Now
	}

	s := &Server{
		router:     chi.NewRouter(),
		sessions:   opts.Sessions,
		history:    opts.History,
		authorizer: opts.Authorizer,
		logger:     shared.WithLogger(opts.Logger, "component", "server"),
		now:        opts.NowFunc,
		states:     make(map[string]time.Time),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(CORS(opts.AllowedOrigins))

	s.routes(opts.CallbackPath)
	return s
}

func (s *Server) routes(callbackPath string) {
	s.router.Get("/health", s.handleHealth)
	s.router.Get(callbackPath, s.handleCallback)

	s.router.Get("/api/auth/url", s.handleAuthURL)
	s.router.Post("/api/auth/token", s.handleAuthToken)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Post("/api/logout", s.handleLogout)
	s.router.Get("/api/recent", s.handleRecent)
	s.router.Get("/api/tracks/{id}/history", s.handleTrackHistory)
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Mount registers h on a fresh chi router with the standard middleware stack.
//
// It is used for short-lived servers such as the CLI login callback.
func Mount(h Handler, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	for _, route := range h.Routes() {
		r.Method(http.MethodGet, route, h)
	}
	return r
}

// issueState records a new OAuth state value.
func (s *Server) issueState() (string, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, issued := range s.states {
		if now.Sub(issued) > stateTTL {
			delete(s.states, k)
		}
	}
	s.states[state] = now
	return state, nil
}

// consumeState reports whether state was issued and not expired; it can succeed once.
func (s *Server) consumeState(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.now().Sub(issued) <= stateTTL
}
