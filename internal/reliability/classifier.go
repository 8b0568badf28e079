package reliability

import (
	"context"
	"errors"
	"fmt"
)

// StatusError carries an upstream HTTP status so callers can decide whether
// retrying makes sense.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether another attempt against a provider could
// plausibly succeed. Context cancellation and client-side 4xx responses are
// final; everything else (network hiccups, 429s, 5xx) is worth a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableHTTPStatus(se.Code)
	}
	return true
}
