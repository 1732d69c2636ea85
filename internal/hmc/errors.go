package hmc

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMetricsUnavailable means PCM data collection is not enabled for the
	// managed system. The HMC answers such requests with 403.
	ErrMetricsUnavailable = errors.New("hmc: performance monitoring disabled")
	// ErrUnauthorized means the session was rejected or expired.
	ErrUnauthorized = errors.New("hmc: unauthorized")
	ErrNotLoggedOn  = errors.New("hmc: no session")
)

// HTTPError is a non-2xx HMC response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrMetricsUnavailable:
		return e.StatusCode == http.StatusForbidden
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Temporary reports whether replaying the request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsMetricsUnavailable reports whether err means PCM is off for the host.
func IsMetricsUnavailable(err error) bool {
	return errors.Is(err, ErrMetricsUnavailable)
}
