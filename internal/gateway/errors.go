package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCircuitOpen     = errors.New("service unavailable: circuit breaker is open")
	ErrTooManyRequests = errors.New("service unavailable: too many requests")
	ErrMediaTooLarge   = errors.New("media exceeds size limit")
	ErrEmptyMedia      = errors.New("provider returned no media content")
)

// StatusError is returned when a collaborator answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s responded with status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s responded with status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}
