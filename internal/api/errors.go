package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrTimeout is returned when a request is aborted by its deadline.
var ErrTimeout = errors.New("request timed out")

// APIError is returned when the backend responds with a non-2xx status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the failure class is worth retrying. Client
// errors are terminal, with 408 as the usual exception.
func (e *APIError) Retryable() bool {
	if e.Status == http.StatusRequestTimeout {
		return true
	}
	return e.Status >= 500
}

// IsRetryable classifies any error from Client: timeouts and 5xx/408
// responses are retryable, other API errors are not, and transport errors
// (connection refused, DNS) are.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return err != nil
}
