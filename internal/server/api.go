package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/recents/internal/auth"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/services"
	"github.com/desertthunder/recents/internal/shared"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Authenticated   bool       `json:"authenticated"`
	State           string     `json:"state"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	LastRenewed     *time.Time `json:"last_renewed,omitempty"`
	Failures        int        `json:"consecutive_failures"`
	LoopRunning     bool       `json:"renewal_loop_running"`
}

// NewStatusResponse summarizes a manager snapshot without exposing tokens.
func NewStatusResponse(snap auth.Snapshot) StatusResponse {
	resp := StatusResponse{
		Authenticated:   snap.Tokens.IsAuthenticated(),
		State:           snap.State.String(),
		HasRefreshToken: snap.Tokens.RefreshToken != "",
		Failures:        snap.Failures,
		LoopRunning:     snap.Running,
	}
	if snap.Tokens.HasExpiry() {
		expires := snap.Tokens.ExpiresAt
		resp.ExpiresAt = &expires
	}
	if !snap.Renewed.IsZero() {
		renewed := snap.Renewed
		resp.LastRenewed = &renewed
	}
	return resp
}

// PlaysResponse is the body of the history endpoints.
type PlaysResponse struct {
	Items []models.Play `json:"items"`
	Count int           `json:"count"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type tokenRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.sessions.Snapshot().State.String(),
	})
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	state, err := s.issueState()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": s.authorizer.AuthorizationURL(state)})
}

// handleCallback is the redirect target in serve mode. The state must have come from /api/auth/url.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.consumeState(r.URL.Query().Get("state")) {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code, err := readCallback(r)
	if err != nil {
		s.logger.Warn("callback rejected", "err", err)
		http.Error(w, callbackMessage(err), http.StatusBadRequest)
		return
	}

	if err := s.sessions.HandleAuthorizationCode(r.Context(), code); err != nil {
		s.logger.Error("authorization code exchange failed", "err", err)
		http.Error(w, "connection failed", exchangeStatus(err))
		return
	}
	writeSuccessPage(w)
}

// handleAuthToken accepts a code collected by a front-end that handled the redirect itself.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}
	if req.Code == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: code", shared.ErrMissingArgument))
		return
	}

	if err := s.sessions.HandleAuthorizationCode(r.Context(), req.Code); err != nil {
		s.writeError(w, exchangeStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewStatusResponse(s.sessions.Snapshot()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewStatusResponse(s.sessions.Snapshot()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewStatusResponse(s.sessions.Snapshot()))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := services.MaxPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit must be a positive integer", shared.ErrInvalidArgument))
			return
		}
		limit = min(n, services.MaxPageSize)
	}

	plays, err := s.fetch(r.Context(), "recent:"+strconv.Itoa(limit), func(ctx context.Context) ([]models.Play, error) {
		return s.history.RecentlyPlayed(ctx, limit)
	})
	if err != nil {
		s.writeError(w, upstreamStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, PlaysResponse{Items: plays, Count: len(plays)})
}

func (s *Server) handleTrackHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	plays, err := s.fetch(r.Context(), "track:"+id, func(ctx context.Context) ([]models.Play, error) {
		return s.history.TrackHistory(ctx, id)
	})
	if err != nil {
		s.writeError(w, upstreamStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, PlaysResponse{Items: plays, Count: len(plays)})
}

// upstreamTimeout bounds a shared upstream read once it no longer follows any one request.
const upstreamTimeout = 30 * time.Second

// fetch collapses concurrent identical reads and replays once after a reactive renewal.
//
// The shared call runs detached from every request context. Each caller stops waiting when
// its own context ends, leaving the others joined.
func (s *Server) fetch(ctx context.Context, key string, fn func(context.Context) ([]models.Play, error)) ([]models.Play, error) {
	ch := s.flights.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), upstreamTimeout)
		defer cancel()
		return auth.Call(callCtx, s.sessions, fn)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("collapsed upstream read", "key", key)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Play), nil
	}
}

func exchangeStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrManagerFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrExchangeInProgress), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusConflict
	case errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrManagerFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrRefreshFailed),
		shared.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	} else {
		s.logger.Debug("request rejected", "status", status, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: err.Error()})
}
