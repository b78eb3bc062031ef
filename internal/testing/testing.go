// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/recents/internal/models"
)

// MockExchanger is a test double for [services.TokenExchanger].
//
// When Gate is non-nil every call blocks until Gate is closed. Entered receives a value
// (non-blocking) each time a call starts, so tests can wait for a call to be in flight.
type MockExchanger struct {
	mu           sync.Mutex
	codeGrant    models.TokenGrant
	codeErr      error
	refreshGrant models.TokenGrant
	refreshErr   error

	Gate    chan struct{}
	Entered chan struct{}

	codeCalls     atomic.Int32
	refreshCalls  atomic.Int32
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
	refreshTokens []string
}

// NewMockExchanger returns an ungated exchanger with a buffered Entered channel.
func NewMockExchanger() *MockExchanger {
	return &MockExchanger{Entered: make(chan struct{}, 64)}
}

// Gated returns an exchanger whose calls block until Release.
func Gated() *MockExchanger {
	m := NewMockExchanger()
	m.Gate = make(chan struct{})
	return m
}

// Release opens the gate.
func (m *MockExchanger) Release() { close(m.Gate) }

// SetCode configures the ExchangeCode result.
func (m *MockExchanger) SetCode(g models.TokenGrant, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codeGrant, m.codeErr = g, err
}

// SetRefresh configures the ExchangeRefreshToken result.
func (m *MockExchanger) SetRefresh(g models.TokenGrant, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshGrant, m.refreshErr = g, err
}

func (m *MockExchanger) ExchangeCode(ctx context.Context, code string) (models.TokenGrant, error) {
	m.codeCalls.Add(1)
	m.enter()
	defer m.inFlight.Add(-1)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codeGrant, m.codeErr
}

func (m *MockExchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (models.TokenGrant, error) {
	m.refreshCalls.Add(1)
	m.mu.Lock()
	m.refreshTokens = append(m.refreshTokens, refreshToken)
	m.mu.Unlock()

	m.enter()
	defer m.inFlight.Add(-1)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshGrant, m.refreshErr
}

func (m *MockExchanger) enter() {
	n := m.inFlight.Add(1)
	for {
		peak := m.maxInFlight.Load()
		if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case m.Entered <- struct{}{}:
	default:
	}

	if m.Gate != nil {
		<-m.Gate
	}
}

// CodeCalls returns how many authorization code exchanges were issued.
func (m *MockExchanger) CodeCalls() int { return int(m.codeCalls.Load()) }

// RefreshCalls returns how many refresh exchanges were issued.
func (m *MockExchanger) RefreshCalls() int { return int(m.refreshCalls.Load()) }

// MaxInFlight returns the highest number of simultaneous calls observed.
func (m *MockExchanger) MaxInFlight() int { return int(m.maxInFlight.Load()) }

// RefreshTokens returns the refresh tokens passed to ExchangeRefreshToken, in order.
func (m *MockExchanger) RefreshTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.refreshTokens...)
}

// FailingStore wraps a [models.CredentialStore] and returns the configured errors instead of delegating.
type FailingStore struct {
	models.CredentialStore

	mu       sync.Mutex
	loadErr  error
	saveErr  error
	clearErr error
}

// NewFailingStore wraps inner; all operations delegate until an error is set.
func NewFailingStore(inner models.CredentialStore) *FailingStore {
	return &FailingStore{CredentialStore: inner}
}

// FailLoad, FailSave and FailClear set (or with nil, reset) the error for an operation.
func (f *FailingStore) FailLoad(err error)  { f.mu.Lock(); f.loadErr = err; f.mu.Unlock() }
func (f *FailingStore) FailSave(err error)  { f.mu.Lock(); f.saveErr = err; f.mu.Unlock() }
func (f *FailingStore) FailClear(err error) { f.mu.Lock(); f.clearErr = err; f.mu.Unlock() }

func (f *FailingStore) Load() (models.TokenState, error) {
	f.mu.Lock()
	err := f.loadErr
	f.mu.Unlock()
	if err != nil {
		return models.TokenState{}, err
	}
	return f.CredentialStore.Load()
}

func (f *FailingStore) Save(s models.TokenState) error {
	f.mu.Lock()
	err := f.saveErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.CredentialStore.Save(s)
}

func (f *FailingStore) Clear() error {
	f.mu.Lock()
	err := f.clearErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.CredentialStore.Clear()
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
