package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"os"
)

// httpStatusError is implemented by errors that carry the upstream status.
type httpStatusError interface {
	HTTPStatus() int
}

// ClassifyError returns the error weight for circuit breaker tracking.
//
// Weights:
//   - nil, or the caller canceling -> 0.0
//   - timeout (deadline exceeded) -> 1.5
//   - 429 -> 0.5
//   - 5xx -> 1.0
//   - other 4xx -> 0.0 (our request is wrong, the API is fine)
//   - anything else (refused connections, malformed bodies) -> 1.0
func ClassifyError(err error) float64 {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}
	var he httpStatusError
	if errors.As(err, &he) {
		return classifyStatus(he.HTTPStatus())
	}
	return 1.0
}

func classifyStatus(code int) float64 {
	switch {
	case code == http.StatusTooManyRequests:
		return 0.5
	case code >= 500:
		return 1.0
	case code >= 400:
		return 0.0
	default:
		// A 2xx/3xx the client still rejected, e.g. 204 or a redirect loop.
		return 1.0
	}
}
