package pyrus

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuth is returned when an access token could not be obtained after all retries.
var ErrAuth = errors.New("pyrus: access token acquisition failed")

// HTTPError describes a non-2xx response from the Pyrus API.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("pyrus: unexpected status %d: %s", e.StatusCode, body)
}

// NetworkError wraps a transport level failure (DNS, connection reset, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "pyrus: network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err carries an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool {
	return IsStatus(err, http.StatusForbidden)
}

// IsServiceFailure reports whether err indicates Pyrus itself is unhealthy:
// transport failures, 5xx, 429 and failed token acquisition. Client errors such
// as 403 or 404 do not count.
func IsServiceFailure(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) || errors.Is(err, ErrAuth) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
