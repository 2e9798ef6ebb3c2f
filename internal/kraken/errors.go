package kraken

import (
	"errors"
	"fmt"
)

// AuthError represents a 401-class response, a failed login, or an exhausted
// token refresh. Once surfaced, no further automatic fetches are attempted
// until the caller re-authenticates.
type AuthError struct {
	Code    string // Kraken error code (e.g. "KT-CT-1139")
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authentication error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("authentication error: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is, or wraps, an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// APIError represents a transport or server failure from the API. It is not
// retried beyond the single auth-refresh path; callers keep previously
// displayed data.
type APIError struct {
	StatusCode int
	Operation  string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("API error (%d) during %s: %s (caused by: %v)", e.StatusCode, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("API error (%d) during %s: %s", e.StatusCode, e.Operation, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// MalformedResponseError marks a response missing expected fields. It is
// logged and treated as an empty series, never as a fatal failure.
type MalformedResponseError struct {
	Operation string
	Missing   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: missing %s", e.Operation, e.Missing)
}
