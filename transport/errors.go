package transport

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-rpc-cache/cache"
)

var (
	// ErrProcedureNotFound indicates a call to a path without a registered procedure.
	ErrProcedureNotFound = errors.New("transport: procedure not found")

	// ErrKindMismatch indicates a call whose kind the procedure does not serve,
	// such as a mutation issued against a query procedure.
	ErrKindMismatch = errors.New("transport: operation kind mismatch")
)

// ProcedureError carries the procedure a transport failure relates to.
type ProcedureError struct {
	Path string
	Kind cache.OperationKind
	Err  error
}

func (e *ProcedureError) Error() string {
	return fmt.Sprintf("%v: %s (%s)", e.Err, e.Path, e.Kind)
}

func (e *ProcedureError) Unwrap() error {
	return e.Err
}
