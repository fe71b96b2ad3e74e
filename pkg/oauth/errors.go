package oauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotAuthenticated is returned when a request needs a TokenSet and none is held.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoRefreshToken is returned when a refresh is requested without a refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrFlowInProgress is returned when an authorization flow is already pending.
	ErrFlowInProgress = errors.New("authorization flow already in progress")
)

// ConfigError reports missing or invalid static configuration. It is fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// CallbackTimeoutError reports that no redirect arrived in time.
// The caller may retry the authorization flow with a fresh state.
type CallbackTimeoutError struct {
	Timeout time.Duration
}

func (e *CallbackTimeoutError) Error() string {
	return fmt.Sprintf("no authorization callback received within %s", e.Timeout)
}

// StateMismatchError reports a callback whose state differs from the issued
// one. It indicates a forged or stale callback and ends the flow.
//
// The state values themselves are not kept.
type StateMismatchError struct {
	ExpectedLength int
	ReceivedLength int
}

func (e *StateMismatchError) Error() string {
	return "state mismatch in authorization callback (possible CSRF or stale flow)"
}

// AuthorizationDeniedError is reported when the provider redirects back with
// an error instead of a code (RFC 6749 section 4.1.2.1).
type AuthorizationDeniedError struct {
	Code        string
	Description string
	URI         string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s - %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}

// AuthServerError reports a non-2xx answer from the token endpoint.
// Body holds the raw response; Code and Description are filled in when the
// body is an RFC 6749 section 5.2 error object.
type AuthServerError struct {
	StatusCode  int
	Body        string
	Code        string
	Description string
}

func (e *AuthServerError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token endpoint returned status %d: %s: %s", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Code)
	case e.Body != "":
		return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	}
}

// MalformedResponseError reports a response that could not be used, either
// from the token endpoint or on the redirect callback.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

// Unwrap returns the underlying decode error, if any.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err ends only the current attempt and a new
// authorization flow may succeed.
func IsRecoverable(err error) bool {
	var timeout *CallbackTimeoutError
	var denied *AuthorizationDeniedError
	return errors.As(err, &timeout) || errors.As(err, &denied)
}
