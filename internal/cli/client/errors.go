package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	msgNoResponse    = "No response from server. Please check your connection."
	msgRequestFailed = "Failed to make request"
)

// Kind classifies how a request failed
type Kind int

const (
	// KindUnexpected is a failure while preparing the request or reading its result
	KindUnexpected Kind = iota
	// KindNetwork means no response reached the client
	KindNetwork
	// KindHTTP is a non-2xx response
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	default:
		return "unexpected"
	}
}

// APIError is the only error type returned by Client. Status is 0 when no
// response was received.
type APIError struct {
	Message string
	Status  int
	Code    string
	Data    any
	Kind    Kind

	cause error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// IsUnauthorized reports whether err is an APIError with status 401
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// networkError wraps a transport failure where no response arrived
func networkError(err error) *APIError {
	return &APIError{
		Message: msgNoResponse,
		Status:  0,
		Kind:    KindNetwork,
		cause:   err,
	}
}

// setupError wraps a failure that happened before the request was sent
func setupError(err error) *APIError {
	msg := msgRequestFailed
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &APIError{
		Message: msg,
		Status:  0,
		Kind:    KindUnexpected,
		cause:   err,
	}
}

// decodeError wraps a 2xx response whose body could not be decoded
func decodeError(status int, err error) *APIError {
	return &APIError{
		Message: fmt.Sprintf("failed to decode response: %v", err),
		Status:  status,
		Kind:    KindUnexpected,
		cause:   err,
	}
}

// httpError builds the error for a non-2xx response. The server's message,
// then error, field is used when present; code and the decoded body pass
// through untouched.
func httpError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Message: fmt.Sprintf("HTTP %d Error", status),
		Status:  status,
		Kind:    KindHTTP,
	}

	if len(body) == 0 {
		return apiErr
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		apiErr.Data = string(body)
		return apiErr
	}
	apiErr.Data = data

	fields, ok := data.(map[string]any)
	if !ok {
		return apiErr
	}
	if msg, ok := fields["message"].(string); ok && msg != "" {
		apiErr.Message = msg
	} else if msg, ok := fields["error"].(string); ok && msg != "" {
		apiErr.Message = msg
	}
	if code, ok := fields["code"].(string); ok {
		apiErr.Code = code
	}

	return apiErr
}
