package studyapi

import (
	"errors"
	"fmt"
	"net/http"

	"aceit.app/pkg/coalesce"
)

var (
	// ErrNoAccessToken is returned by every call made before an access token is set.
	ErrNoAccessToken = errors.New("access token is not set")

	// ErrUnauthorized matches upstream 401 responses; the session must re-authenticate.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTimeframe is returned for analytics periods other than WEEK, MONTH or TERM.
	ErrInvalidTimeframe = errors.New("invalid timeframe")
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP error! status: %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// IsCanceled reports whether err means the call was superseded or aborted.
// Such errors are dropped silently rather than shown to the user.
func IsCanceled(err error) bool {
	return coalesce.IsCanceled(err)
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
