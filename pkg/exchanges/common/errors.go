package common

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is an error returned by a venue's REST API.
type APIError struct {
	HTTPStatus int
	Code       int // venue-specific error code, 0 when absent
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error (http %d, code %d): %s", e.HTTPStatus, e.Code, e.Message)
}

// Transient reports whether the request may be retried as-is. Rate limits,
// server errors and gateway timeouts are transient; parameter or balance
// rejections are not.
func (e *APIError) Transient() bool {
	switch {
	case e.HTTPStatus == 429 || e.HTTPStatus == 418: // rate limit / IP ban warning
		return true
	case e.HTTPStatus >= 500:
		return true
	}
	return false
}

// IsTransient classifies any error from a Gateway call. Network-level
// failures and context deadlines count as transient; a cancelled context
// does not (the caller is shutting down).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
