package molit

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned for non-2xx upstream responses, carrying the status
// and a truncated body for logging.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("molit API error: status %d: %s", e.Status, e.Body)
}

// IsAuthFailure reports whether err is an upstream 401/403. Auth failures are
// recoverable: callers fall back to the proxy data path instead of failing.
func IsAuthFailure(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden
}

// IsRateLimited reports whether err is an upstream 429 after the single retry
// was exhausted.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusTooManyRequests
}
