package crm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSubscriberNotFound is returned when an email has no subscriber.
var ErrSubscriberNotFound = errors.New("crm: subscriber not found")

// ValidationError reports a missing or malformed parameter detected before any
// network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("crm: invalid %s: %s", e.Field, e.Reason)
}

// RemoteError is a non-success response from the CRM, status and message preserved.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("crm: remote error %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports a 429 response.
func (e *RemoteError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// Unauthorized reports an authentication or authorization failure.
func (e *RemoteError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRemote reports whether err carries a *RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnauthorized reports whether err is a 401/403 remote error.
func IsUnauthorized(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Unauthorized()
}

// AsRemote extracts the *RemoteError from err, if any.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	ok := errors.As(err, &re)
	return re, ok
}
