package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrPoolTimeout  = errors.New("no connection became available in time")
	ErrPoolClosed   = fmt.Errorf("connection pool is shut down: %w", ErrPoolTimeout)
	ErrEmptyMetrics = errors.New("no metric samples to summarize")
	ErrConfig       = errors.New("invalid configuration")
)

// ConfigErrorf builds an error that satisfies errors.Is(err, ErrConfig).
func ConfigErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// IsConfigError reports whether err stems from a malformed scenario configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// APIError is a non-200 response from the search service. The body is kept
// verbatim as a diagnostic string.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: service returned %d: %s", e.Op, e.Status, e.Body)
}

// TransportError is a failure before any response was obtained: dial, DNS,
// reset connections or a timeout.
type TransportError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
