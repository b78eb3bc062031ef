package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/repositories"
	"github.com/desertthunder/recents/internal/shared"
	tu "github.com/desertthunder/recents/internal/testing"
	"github.com/urfave/cli/v3"
)

// spotifyStub serves the token endpoint and the recently-played resource.
//
// The resource answers 401 unless the request carries the token the stub last issued.
type spotifyStub struct {
	*httptest.Server
	refreshes atomic.Int32

	mu      sync.Mutex
	current string
}

func (s *spotifyStub) accepts(header string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return header == "Bearer "+s.current
}

func newSpotifyStub(t *testing.T, current string) *spotifyStub {
	t.Helper()
	stub := &spotifyStub{current: current}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		stub.refreshes.Add(1)
		stub.mu.Lock()
		stub.current = "AT2"
		stub.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"AT2","token_type":"Bearer","expires_in":3600,"refresh_token":"RT2"}`)
	})
	mux.HandleFunc("/v1/me/player/recently-played", func(w http.ResponseWriter, r *http.Request) {
		if !stub.accepts(r.Header.Get("Authorization")) {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"status":401,"message":"The access token expired"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, recentFixture)
	})

	stub.Server = httptest.NewServer(mux)
	t.Cleanup(stub.Close)
	return stub
}

const recentFixture = `{"items":[
 {"played_at":"2025-06-01T12:00:00.000Z","track":{"id":"t1","name":"Song One","duration_ms":185000,
  "artists":[{"name":"Artist A"}],"album":{"name":"Album X","images":[]},
  "external_urls":{"spotify":"https://open.spotify.com/track/t1"}}},
 {"played_at":"2025-06-01T11:00:00.000Z","track":{"id":"t2","name":"Song Two","duration_ms":203000,
  "artists":[{"name":"Artist B"}],"album":{"name":"Album Y","images":[]},
  "external_urls":{"spotify":"https://open.spotify.com/track/t2"}}}
],"limit":2,"next":null}`

func testConfig(t *testing.T, stub *spotifyStub) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Credentials.Spotify.ClientID = "client"
	config.Credentials.Spotify.ClientSecret = "secret"
	config.Credentials.Spotify.RedirectURI = "http://127.0.0.1:0/api/callback"
	config.Database.Path = filepath.Join(t.TempDir(), "recents.db")
	config.API.RequestsPerSecond = 0
	if stub != nil {
		config.Credentials.Spotify.TokenURL = stub.URL + "/api/token"
		config.Credentials.Spotify.APIURL = stub.URL + "/v1"
	}
	return config
}

// seed persists a token state into the sqlite credential store named by config.
func seed(t *testing.T, config *shared.Config, s models.TokenState) {
	t.Helper()
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := repositories.NewCredentialRepository(db, config.Auth.Namespace).Save(s); err != nil {
		t.Fatalf("failed to seed credentials: %v", err)
	}
}

func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "recents", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"recents"}, args...))
}

func quietRunner(config *shared.Config, output io.Writer) *Runner {
	return NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: output,
	})
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.open == nil {
				t.Error("expected browser opener to be set")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "recent", "track", "serve", "tui"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		config, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if config.Store.Backend != shared.BackendSQLite {
			t.Errorf("expected sqlite backend, got %q", config.Store.Backend)
		}
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := shared.CreateConfigFile(path); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		t.Setenv("SPOTIFY_CLIENT_ID", "from-env")
		t.Setenv("RECENTS_STORE_BACKEND", "memory")

		config, err := loadConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if config.Credentials.Spotify.ClientID != "from-env" {
			t.Errorf("expected env client id, got %q", config.Credentials.Spotify.ClientID)
		}
		if config.Store.Backend != shared.BackendMemory {
			t.Errorf("expected memory backend, got %q", config.Store.Backend)
		}
	})

	t.Run("invalid backend fails validation", func(t *testing.T) {
		t.Setenv("RECENTS_STORE_BACKEND", "etcd")

		_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestRedirectURI(t *testing.T) {
	tests := []struct {
		uri      string
		path     string
		addr     string
		wantFail bool
	}{
		{uri: "http://127.0.0.1:3001/api/callback", path: "/api/callback", addr: "127.0.0.1:3001"},
		{uri: "http://localhost/callback", path: "/callback", addr: "localhost:80"},
		{uri: "https://example.com", path: "/", addr: "example.com:443"},
		{uri: "not a url", wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			path, err := callbackPath(tt.uri)
			addr, addrErr := listenAddr(tt.uri)
			if tt.wantFail {
				if err == nil || addrErr == nil {
					t.Errorf("expected errors, got %v and %v", err, addrErr)
				}
				return
			}
			if err != nil || addrErr != nil {
				t.Fatalf("unexpected errors %v, %v", err, addrErr)
			}
			if path != tt.path {
				t.Errorf("expected path %q, got %q", tt.path, path)
			}
			if addr != tt.addr {
				t.Errorf("expected addr %q, got %q", tt.addr, addr)
			}
		})
	}
}

func TestOpenSession(t *testing.T) {
	t.Run("requires client credentials", func(t *testing.T) {
		config := testConfig(t, nil)
		config.Credentials.Spotify.ClientSecret = ""

		_, err := quietRunner(config, io.Discard).openSession(context.Background())
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("restores persisted credentials", func(t *testing.T) {
		config := testConfig(t, nil)
		seed(t, config, models.TokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: time.Now().Add(time.Hour)})

		s, err := quietRunner(config, io.Discard).openSession(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer s.Close()

		token, err := s.manager.AccessToken()
		if err != nil || token != "AT1" {
			t.Errorf("expected AT1, got %q (%v)", token, err)
		}
		if s.callback != "/api/callback" {
			t.Errorf("unexpected callback path %q", s.callback)
		}
	})

	t.Run("memory backend", func(t *testing.T) {
		config := testConfig(t, nil)
		config.Store.Backend = shared.BackendMemory

		s, err := quietRunner(config, io.Discard).openSession(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer s.Close()

		if _, ok := s.store.(*repositories.MemoryStore); !ok {
			t.Errorf("expected MemoryStore, got %T", s.store)
		}
	})

	t.Run("redis backend", func(t *testing.T) {
		mr := miniredis.RunT(t)
		config := testConfig(t, nil)
		config.Store.Backend = shared.BackendRedis
		config.Redis.URL = "redis://" + mr.Addr()

		s, err := quietRunner(config, io.Discard).openSession(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer s.Close()

		if _, ok := s.store.(*repositories.RedisStore); !ok {
			t.Errorf("expected RedisStore, got %T", s.store)
		}
	})

	t.Run("unreachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		config := testConfig(t, nil)
		config.Store.Backend = shared.BackendRedis
		config.Redis.URL = "redis://" + addr
		config.Redis.TimeoutSeconds = 1

		_, err := quietRunner(config, io.Discard).openSession(context.Background())
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestRecentCommand(t *testing.T) {
	t.Run("renews a rejected token and replays the request", func(t *testing.T) {
		stub := newSpotifyStub(t, "AT2")
		config := testConfig(t, stub)
		seed(t, config, models.TokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: time.Now().Add(time.Hour)})

		output := &bytes.Buffer{}
		if err := run(t, quietRunner(config, output), "recent", "--json", "--limit", "2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var plays []models.Play
		if err := json.Unmarshal(output.Bytes(), &plays); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", output.String(), err)
		}
		if len(plays) != 2 || plays[0].Track.ID != "t1" {
			t.Errorf("unexpected plays %+v", plays)
		}
		if n := stub.refreshes.Load(); n != 1 {
			t.Errorf("expected one refresh, got %d", n)
		}
	})

	t.Run("offline reads the cache written by the last fetch", func(t *testing.T) {
		stub := newSpotifyStub(t, "AT1")
		config := testConfig(t, stub)
		seed(t, config, models.TokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: time.Now().Add(time.Hour)})

		if err := run(t, quietRunner(config, io.Discard), "recent"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		stub.Close()

		output := &bytes.Buffer{}
		if err := run(t, quietRunner(config, output), "recent", "--offline", "--format", "csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %q", output.String())
		}
		if !strings.Contains(lines[1], "Song One") {
			t.Errorf("expected most recent play first, got %q", lines[1])
		}
	})

	t.Run("limit out of range", func(t *testing.T) {
		config := testConfig(t, nil)
		err := run(t, quietRunner(config, io.Discard), "recent", "--limit", "51")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("not authenticated", func(t *testing.T) {
		stub := newSpotifyStub(t, "AT1")
		config := testConfig(t, stub)

		err := run(t, quietRunner(config, io.Discard), "recent")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("writes an export file", func(t *testing.T) {
		stub := newSpotifyStub(t, "AT1")
		config := testConfig(t, stub)
		seed(t, config, models.TokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: time.Now().Add(time.Hour)})

		path := filepath.Join(t.TempDir(), "plays.txt")
		output := &bytes.Buffer{}
		if err := run(t, quietRunner(config, output), "recent", "-o", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), "Song Two") {
			t.Error("expected export to contain plays")
		}
		if !strings.Contains(output.String(), "Exported 2 plays") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestTrackCommand(t *testing.T) {
	stub := newSpotifyStub(t, "AT1")
	config := testConfig(t, stub)
	seed(t, config, models.TokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: time.Now().Add(time.Hour)})

	t.Run("prints the plays of one track", func(t *testing.T) {
		output := &bytes.Buffer{}
		if err := run(t, quietRunner(config, output), "track", "t2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Song Two") || strings.Contains(output.String(), "Song One") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("unknown track", func(t *testing.T) {
		err := run(t, quietRunner(config, io.Discard), "track", "nope")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		err := run(t, quietRunner(config, io.Discard), "track")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("status hides tokens", func(t *testing.T) {
		config := testConfig(t, nil)
		seed(t, config, models.TokenState{AccessToken: "secret-access", RefreshToken: "secret-refresh", ExpiresAt: time.Now().Add(time.Hour)})

		output := &bytes.Buffer{}
		if err := run(t, quietRunner(config, output), "auth", "status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.Contains(output.String(), "secret") {
			t.Errorf("status leaked a token: %q", output.String())
		}

		var status map[string]any
		if err := json.Unmarshal(output.Bytes(), &status); err != nil {
			t.Fatalf("expected JSON output: %v", err)
		}
		if status["authenticated"] != true || status["state"] != "authenticated" {
			t.Errorf("unexpected status %v", status)
		}
	})

	t.Run("logout clears the store", func(t *testing.T) {
		config := testConfig(t, nil)
		seed(t, config, models.TokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: time.Now().Add(time.Hour)})

		if err := run(t, quietRunner(config, io.Discard), "auth", "logout"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		output := &bytes.Buffer{}
		if err := run(t, quietRunner(config, output), "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Not authenticated") {
			t.Errorf("expected unauthenticated status, got %q", output.String())
		}
	})

	t.Run("url prints a consent URL", func(t *testing.T) {
		config := testConfig(t, nil)

		output := &bytes.Buffer{}
		if err := run(t, quietRunner(config, output), "auth", "url"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "client_id=client") || !strings.Contains(output.String(), "state=") {
			t.Errorf("unexpected URL %q", output.String())
		}
	})

	t.Run("login exchanges the code from the callback", func(t *testing.T) {
		stub := newSpotifyStub(t, "AT1")
		config := testConfig(t, stub)
		config.Credentials.Spotify.RedirectURI = "http://127.0.0.1:39517/api/callback"

		// The opener plays the browser: it follows the consent URL straight to the callback.
		opener := func(consent string) error {
			state := strings.SplitN(strings.SplitN(consent, "state=", 2)[1], "&", 2)[0]
			go func() {
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					resp, err := http.Get("http://127.0.0.1:39517/api/callback?code=abc&state=" + state)
					if err == nil {
						resp.Body.Close()
						return
					}
					time.Sleep(20 * time.Millisecond)
				}
			}()
			return nil
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard), Output: output, Browser: opener})
		if err := run(t, runner, "auth", "login"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Authorization successful") {
			t.Errorf("unexpected output %q", output.String())
		}

		output.Reset()
		if err := run(t, quietRunner(config, output), "auth", "login"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Already authenticated") {
			t.Errorf("expected second login to be skipped, got %q", output.String())
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the template once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner := NewRunner(RunnerOpts{ConfigPath: path, Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		if err := run(t, runner, "setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)

		output := &bytes.Buffer{}
		runner.output = output
		if err := run(t, runner, "setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "already exists") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("database migrates and purges", func(t *testing.T) {
		config := testConfig(t, nil)
		output := &bytes.Buffer{}

		if err := run(t, quietRunner(config, output), "setup", "database", "--purge-cache"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, config.Database.Path)
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}
