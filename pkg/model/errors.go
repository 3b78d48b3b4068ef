package model

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrValidation is returned for input rejected locally, before any network call
	ErrValidation = goerr.New("validation error")

	// ErrOutOfRange is returned when the swipe queue has no candidate at the cursor
	ErrOutOfRange = goerr.New("no candidate at cursor")

	// ErrDecisionInFlight is returned when a decision is requested while another is pending
	ErrDecisionInFlight = goerr.New("decision already in flight")

	// ErrNotAuthenticated is returned when an authenticated call is issued without a session
	ErrNotAuthenticated = goerr.New("not authenticated")

	// ErrConnection is reported when a persistent channel gives up reconnecting
	ErrConnection = goerr.New("connection error")

	// ErrChannelClosed is returned by operations on a closed conversation
	ErrChannelClosed = goerr.New("channel is closed")
)

// DefaultErrorDetail is used when the backend does not provide a structured detail
const DefaultErrorDetail = "API request failed"

// RequestError is any non-success response from the backend
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d %s): %s", e.Status, http.StatusText(e.Status), e.Detail)
}

// AsRequestError extracts a RequestError from an error chain
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// IsUnauthorized reports whether err carries a 401 from the backend. The view layer
// treats it as a session invalidation signal.
func IsUnauthorized(err error) bool {
	reqErr, ok := AsRequestError(err)
	return ok && reqErr.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err carries a 404 from the backend
func IsNotFound(err error) bool {
	reqErr, ok := AsRequestError(err)
	return ok && reqErr.Status == http.StatusNotFound
}
