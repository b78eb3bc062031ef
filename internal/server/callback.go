package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ExchangeFunc hands an authorization code to whatever performs the token exchange.
type ExchangeFunc func(ctx context.Context, code string) error

// CallbackResult is the outcome of a single OAuth redirect.
type CallbackResult struct {
	Code string
	Err  error
}

// CallbackHandler receives exactly one OAuth redirect for a CLI login.
//
// It passes the code to exchange and reports the outcome once through
// [CallbackHandler.Result]. Requests with the wrong state are rejected without ending the
// login, as are requests after the first valid one.
type CallbackHandler struct {
	path     string
	state    string
	exchange ExchangeFunc
	results  chan CallbackResult

	mu   sync.Mutex
	hit  bool
	once sync.Once
}

// NewCallbackHandler creates a handler for path that accepts only state.
func NewCallbackHandler(path, state string, exchange ExchangeFunc) *CallbackHandler {
	return &CallbackHandler{
		path:     path,
		state:    state,
		exchange: exchange,
		results:  make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("state") != h.state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	code, err := readCallback(r)
	if err != nil {
		h.send(CallbackResult{Err: err})
		http.Error(w, callbackMessage(err), http.StatusBadRequest)
		return
	}

	if err := h.exchange(r.Context(), code); err != nil {
		h.send(CallbackResult{Code: code, Err: err})
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	h.send(CallbackResult{Code: code})
	writeSuccessPage(w)
}

func (h *CallbackHandler) send(result CallbackResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one value and is then closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.results
}

var errMissingCode = errors.New("no authorization code provided")

// readCallback extracts the authorization code from a provider redirect.
func readCallback(r *http.Request) (string, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization failed: %s - %s", e, q.Get("error_description"))
	}

	code := q.Get("code")
	if code == "" {
		return "", errMissingCode
	}
	return code, nil
}

func callbackMessage(err error) string {
	if errors.Is(err, errMissingCode) {
		return "No authorization code provided"
	}
	return "Authorization failed"
}

func writeSuccessPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
    <title>Connected to Spotify</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Connected to Spotify</h1>
        <p>You can close this window and return to recents.</p>
    </div>
</body>
</html>
`)
}
