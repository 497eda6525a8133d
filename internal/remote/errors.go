package remote

import (
	"fmt"
	"io"
	"net/http"
)

// StatusError is a non-200 response from the feed API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed API: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the status code for circuit breaker classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// parseStatusError reads up to 4KB of the body into a StatusError.
func parseStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
