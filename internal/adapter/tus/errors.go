package tus

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingLocation is returned when a creation response has no Location header
	ErrMissingLocation = errors.New("tus: no Location header in creation response")

	// ErrMissingOffset is returned when the server reports no usable offset
	ErrMissingOffset = errors.New("tus: invalid or missing Upload-Offset header")

	// ErrOffsetMismatch is returned when the server acknowledges an unexpected offset
	ErrOffsetMismatch = errors.New("tus: server offset does not match local offset")
)

// ResponseError is returned for protocol responses with an unexpected status
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string

	// Err is the protocol client's error for this response
	Err error
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("tus: unexpected response for %s %s (status %d)", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap returns the underlying protocol error
func (e *ResponseError) Unwrap() error {
	return e.Err
}

// shouldRetry reports whether an attempt failing with err may be repeated.
// Client errors are final except for 409 Conflict and 423 Locked.
func shouldRetry(err error) bool {
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		return !errors.Is(err, ErrMissingLocation)
	}
	switch {
	case respErr.StatusCode == http.StatusConflict, respErr.StatusCode == http.StatusLocked:
		return true
	case respErr.StatusCode >= 400 && respErr.StatusCode < 500:
		return false
	}
	return true
}
