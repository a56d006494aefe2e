// Package box is a client for the Box Content API with automatic token
// refresh, retry with exponential backoff, and error classification.
package box

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tonimelisma/box-go/internal/auth"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, box.ErrNotFound) to check.
var (
	ErrBadRequest         = errors.New("box: bad request")
	ErrUnauthorized       = errors.New("box: unauthorized")
	ErrForbidden          = errors.New("box: forbidden")
	ErrNotFound           = errors.New("box: not found")
	ErrMethodNotAllowed   = errors.New("box: method not allowed")
	ErrConflict           = errors.New("box: conflict")
	ErrPreconditionFailed = errors.New("box: precondition failed")
	ErrThrottled          = errors.New("box: throttled")
	ErrServerError        = errors.New("box: server error")
	ErrRequestTimeout     = errors.New("box: request timeout")
)

// requestIDHeader is set by Box on every response.
const requestIDHeader = "box-request-id"

// APIError wraps a sentinel error with the HTTP status and the fields of
// Box's JSON error body.
type APIError struct {
	StatusCode int
	RequestID  string
	Code       string // e.g. item_name_in_use
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}

	if e.RequestID != "" {
		return fmt.Sprintf("box: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, msg)
	}

	return fmt.Sprintf("box: HTTP %d: %s", e.StatusCode, msg)
}

// Unwrap exposes the status sentinel and, for retryable and 401 statuses,
// the matching auth category.
func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	switch {
	case e.StatusCode == http.StatusUnauthorized:
		errs = append(errs, auth.ErrAuth)
	case auth.IsRetryableStatus(e.StatusCode):
		errs = append(errs, auth.ErrTransient)
	}

	return errs
}

// errorBody is Box's JSON error envelope.
type errorBody struct {
	Type      string `json:"type"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// newAPIError builds an APIError from a non-2xx response and its body.
// Bodies that are not Box error JSON are kept verbatim as the message.
func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Type == "error" {
		e.Code = eb.Code
		e.Message = eb.Message

		if e.RequestID == "" {
			e.RequestID = eb.RequestID
		}
	}

	return e
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without one.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	case http.StatusRequestTimeout:
		return ErrRequestTimeout
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
