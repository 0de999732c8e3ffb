package proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation matches every *UnsupportedOperationError.
	ErrUnsupportedOperation = errors.New("proxy: unsupported operation")

	// ErrMissingTransport indicates New was called without a transport.
	ErrMissingTransport = errors.New("proxy: transport is required")

	// ErrMissingCache indicates New was called without a query cache.
	ErrMissingCache = errors.New("proxy: query cache is required")

	// ErrInvalidArgument indicates an operation argument of the wrong type.
	ErrInvalidArgument = errors.New("proxy: invalid argument")
)

// UnsupportedOperationError is returned for an operation name that is not
// in the dispatch table. It is a programming error and should not be retried.
type UnsupportedOperationError struct {
	Path      string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("proxy: unsupported operation %q at router root", e.Operation)
	}
	return fmt.Sprintf("proxy: unsupported operation %q on %q", e.Operation, e.Path)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

func invalidArgument(op string, index int, want string, got any) error {
	return fmt.Errorf("%w: %s argument %d must be %s, got %T", ErrInvalidArgument, op, index, want, got)
}
