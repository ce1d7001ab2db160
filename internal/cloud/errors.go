package cloud

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates the backend rejected the configured token
var ErrUnauthorized = errors.New("cloud backend rejected the sync token")

// ErrRateLimited indicates the backend asked us to slow down
var ErrRateLimited = errors.New("cloud backend rate limit exceeded")

// ErrNotConfigured is returned when no backend URL is set
var ErrNotConfigured = errors.New("cloud backend URL is not configured")

// ServerError represents a 5xx error from the backend
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cloud backend server error: HTTP %d", e.StatusCode)
}
