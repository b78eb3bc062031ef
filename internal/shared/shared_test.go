package shared

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		name string
		ms   int
		want string
	}{
		{name: "zero", ms: 0, want: "0:00"},
		{name: "under a minute", ms: 59_999, want: "0:59"},
		{name: "typical track", ms: 215_000, want: "3:35"},
		{name: "long track", ms: 3_600_000, want: "60:00"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.ms); got != tt.want {
				t.Errorf("FormatDuration(%d) = %v, want %v", tt.ms, got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("BQDxyz1234567890"); got != "BQDxyz12…" {
		t.Errorf("Redact() = %q", got)
	}
	if got := Redact("short"); got != "…" {
		t.Errorf("Redact() of short token = %q", got)
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	b, _ := GenerateState()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty states, got %q and %q", a, b)
	}
}

func TestMarshalJSON(t *testing.T) {
	data := map[string]int{"limit": 50}

	compact, err := MarshalJSON(data, false)
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(compact) != `{"limit":50}` {
		t.Errorf("compact = %s", compact)
	}

	pretty, _ := MarshalJSON(data, true)
	if !strings.Contains(string(pretty), "\n  \"limit\": 50") {
		t.Errorf("pretty = %s", pretty)
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recents.log")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	logger.Info("hello from test")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Errorf("log file missing entry: %s", content)
	}
}

func TestErrors(t *testing.T) {
	t.Run("APIError classification", func(t *testing.T) {
		unauthorized := fmt.Errorf("wrapped: %w", &APIError{Kind: FailureUnauthorized, Status: 401})
		if !IsUnauthorized(unauthorized) {
			t.Error("expected wrapped 401 to be unauthorized")
		}
		if !errors.Is(unauthorized, ErrUnauthorized) {
			t.Error("expected errors.Is ErrUnauthorized")
		}

		rateLimited := &APIError{Kind: FailureOther, Status: 429}
		if IsUnauthorized(rateLimited) {
			t.Error("429 must not be unauthorized")
		}
		if !errors.Is(rateLimited, ErrAPIRequest) {
			t.Error("expected errors.Is ErrAPIRequest")
		}
	})

	t.Run("message text alone is not unauthorized", func(t *testing.T) {
		if IsUnauthorized(errors.New("status 401 unauthorized")) {
			t.Error("plain errors must never classify as unauthorized")
		}
	})

	t.Run("ExchangeError", func(t *testing.T) {
		err := &ExchangeError{Grant: "refresh_token", Status: 400, Body: `{"error":"invalid_grant"}`}
		if !errors.Is(err, ErrAuthFailed) {
			t.Error("expected ExchangeError to unwrap to ErrAuthFailed")
		}
		if !strings.Contains(err.Error(), "status 400") || !strings.Contains(err.Error(), "invalid_grant") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("ExchangeError keeps its cause", func(t *testing.T) {
		err := fmt.Errorf("refresh: %w", &ExchangeError{Grant: "refresh_token", Err: context.DeadlineExceeded})
		if !errors.Is(err, ErrAuthFailed) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected ErrAuthFailed and the deadline in the chain, got %v", err)
		}
	})

	t.Run("SchemaError", func(t *testing.T) {
		err := &SchemaError{Resource: "recently-played", Details: []string{"items: required"}}
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Error("expected SchemaError to unwrap to ErrSchemaMismatch")
		}
	})

	t.Run("NetworkError", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := &NetworkError{Op: "recently-played", Err: cause}
		if !errors.Is(err, ErrNetwork) || !errors.Is(err, cause) {
			t.Error("expected NetworkError to unwrap to ErrNetwork and its cause")
		}
	})
}
