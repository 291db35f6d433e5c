package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the {error:{code,message}} envelope
const (
	CodeInvalidToken   = "invalid_token"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeRateLimited    = "rate_limited"
	CodeBadRequest     = "bad_request"
	CodeAPIKeyRequired = "api_key_required"
	CodeUpstream       = "upstream_error"
	CodeInternal       = "internal_error"
)

var (
	// ErrUnauthenticated is returned before any network call when no token is available
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrTimeout is returned when a request was sent but no response arrived in time
	ErrTimeout = errors.New("request timed out")
)

// APIError is a structured error returned by the backend
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError builds an APIError
func NewError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// ErrNotFound is the backend's shape for a missing conversation
func ErrNotFound() *APIError {
	return NewError(http.StatusNotFound, CodeNotFound, "Conversation not found")
}

// NetworkError means the request never reached the server
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cannot reach server: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an APIError with the given HTTP status
func IsStatus(err error, status int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == status
}

// IsNetwork reports whether err is a transport failure
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
