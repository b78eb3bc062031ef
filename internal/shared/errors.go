package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed         = fmt.Errorf("authentication failed")
	ErrNotAuthenticated   = fmt.Errorf("not authenticated")
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrRefreshFailed      = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken     = fmt.Errorf("no refresh token available")
	ErrExchangeInProgress = fmt.Errorf("token exchange already in progress")
	ErrManagerFailed      = fmt.Errorf("credential state unrecoverable, logout required")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrSchemaMismatch     = fmt.Errorf("response did not match expected schema")
	ErrNetwork            = fmt.Errorf("network failure")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ExchangeError reports a failed authorization-code or refresh-token exchange.
//
// Status is zero when the provider answered 2xx with an unusable body.
type ExchangeError struct {
	Grant  string // authorization_code or refresh_token
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("%s exchange failed", e.Grant)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Body != "" {
		msg += " - " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel and, when present, the underlying cause.
func (e *ExchangeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthFailed}
	}
	return []error{ErrAuthFailed, e.Err}
}

// FailureKind classifies resource call failures.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureUnauthorized
)

func (k FailureKind) String() string {
	if k == FailureUnauthorized {
		return "unauthorized"
	}
	return "other"
}

// APIError is a non-2xx response from the resource API.
type APIError struct {
	Kind   FailureKind
	Status int
	Body   string
	Token  string // access token the request carried, empty when unknown
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error (%s): status %d - %s", e.Kind, e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.Kind == FailureUnauthorized {
		return ErrUnauthorized
	}
	return ErrAPIRequest
}

// SchemaError is a resource payload that failed validation.
type SchemaError struct {
	Resource string
	Details  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Resource, strings.Join(e.Details, "; "))
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

// NetworkError is a transport failure where no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the transport error.
func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// IsUnauthorized reports whether err is a provider authentication rejection.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == FailureUnauthorized
}

// RejectedToken returns the access token an unauthorized response rejected, or "" when unknown.
func RejectedToken(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == FailureUnauthorized {
		return apiErr.Token
	}
	return ""
}
