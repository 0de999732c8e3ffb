package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrInputNotPageable indicates an infinite query input that cannot carry a cursor.
	ErrInputNotPageable = errors.New("cache: input cannot carry a cursor")

	// ErrNoFetcher indicates a fetch was requested for a query without a fetch function.
	ErrNoFetcher = errors.New("cache: query has no fetch function")

	// ErrInvalidResultType indicates cached data does not have the requested type.
	ErrInvalidResultType = errors.New("cache: invalid result type")

	// ErrClosed indicates an operation on a handle that was already closed.
	ErrClosed = errors.New("cache: handle is closed")
)

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
