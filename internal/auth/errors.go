package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
)

// Error categories. Every error returned by this package, the session layer
// and the API client unwraps to at most one of these.
// Use errors.Is(err, auth.ErrTransient) to decide whether a retry may help.
var (
	ErrAuth      = errors.New("auth: credentials rejected")
	ErrTransient = errors.New("auth: transient failure")
	ErrStore     = errors.New("auth: token store failure")
)

// Specific causes wrapped by AuthError.
var (
	ErrNoRefreshToken = errors.New("auth: no refresh token available")
	ErrTokenExpired   = errors.New("auth: access token expired")
	ErrNoAppAuthKey   = errors.New("auth: app auth key not configured")
)

// AuthError is a non-retriable credential problem: invalid or expired
// authorization code, revoked refresh token, rejected client credentials.
type AuthError struct {
	Op          string // grant or revoke operation
	StatusCode  int    // HTTP status from the token endpoint, 0 if no response
	Code        string // OAuth2 error code, e.g. invalid_grant
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	msg := "auth: " + e.Op + " rejected"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}

	if e.Code != "" {
		msg += ": " + e.Code
	}

	if e.Description != "" {
		msg += ": " + e.Description
	}

	if e.Code == "" && e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *AuthError) Unwrap() []error {
	return category(ErrAuth, e.Err)
}

// TransientError is a network failure, 5xx or 429. Token endpoint calls
// return it to the caller as-is; the API client returns it once its retry
// budget is spent.
type TransientError struct {
	Op         string
	StatusCode int // 0 for network errors
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth: %s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("auth: %s failed: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return category(ErrTransient, e.Err)
}

// StoreError carries a TokenStore failure. Err is the store's own error,
// untouched, so callers can match it with errors.Is/As.
type StoreError struct {
	Op  string // read, write, clear
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("auth: token store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return category(ErrStore, e.Err)
}

// category pairs a sentinel with an optional cause for multi-error Unwrap.
func category(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}

	return []error{sentinel, cause}
}

// WrapStoreError wraps a non-nil store error. Returns nil for nil.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &StoreError{Op: op, Err: err}
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// classifyGrantError maps an error from the oauth2 library onto the
// AuthError/TransientError split.
func classifyGrantError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("auth: %s canceled: %w", op, err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}

		if IsRetryableStatus(status) || status >= http.StatusInternalServerError {
			return &TransientError{Op: op, StatusCode: status, Err: err}
		}

		return &AuthError{
			Op:          op,
			StatusCode:  status,
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
			Err:         err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Op: op, Err: err}
	}

	// Malformed token responses (missing access_token and the like).
	return &AuthError{Op: op, Err: err}
}
