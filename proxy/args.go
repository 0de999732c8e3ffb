package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/reactive"
)

// QueryConfig is the trailing argument of query, queryOptions, fetch,
// prefetch and ensureData.
type QueryConfig struct {
	Disabled bool
	// StaleTime overrides the proxy default when greater than zero.
	StaleTime        time.Duration
	KeepPreviousData bool
	AbortOnClose     bool

	// Tags are forwarded to the transport with every fetch.
	Tags []string
	Meta map[string]any
}

// InfiniteConfig is the trailing argument of the paginated operations.
type InfiniteConfig struct {
	QueryConfig

	// InitialCursor is injected into the input of the first page.
	InitialCursor any
	// GetNextCursor returns the cursor of the page after lastPage. When nil
	// the "nextCursor" entry of a map page is used.
	GetNextCursor func(lastPage any, allPages []any) (any, bool)
}

// MutationConfig is the argument of the mutation operation.
type MutationConfig struct {
	OnSuccess func(ctx context.Context, data, input any) error
	OnError   func(ctx context.Context, err error, input any)

	Tags []string
	Meta map[string]any
}

// NextCursorField is read from map pages when InfiniteConfig.GetNextCursor is nil.
const NextCursorField = "nextCursor"

func defaultNextCursor(lastPage any, _ []any) (any, bool) {
	page, ok := lastPage.(map[string]any)
	if !ok {
		return nil, false
	}
	next, ok := page[NextCursorField]
	if !ok || next == nil {
		return nil, false
	}
	return next, true
}

// call is one dispatched operation.
type call struct {
	path  cache.Path
	op    string
	args  []any
	alias bool
}

func (c call) arg(index int) any {
	if index < len(c.args) {
		return c.args[index]
	}
	return nil
}

// input returns the first argument. Reactive inputs are unwrapped to their
// current snapshot and returned as a Source as well.
func (c call) input() (any, reactive.Source) {
	raw := c.arg(0)
	if src, ok := reactive.AsSource(raw); ok {
		return src.Snapshot(), src
	}
	return raw, nil
}

// optionArg reads an optional argument of type T. A missing or nil argument
// yields the zero value.
func optionArg[T any](c call, index int) (T, error) {
	var zero T
	switch v := c.arg(index).(type) {
	case nil:
		return zero, nil
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, nil
		}
		return *v, nil
	default:
		return zero, invalidArgument(c.op, index, fmt.Sprintf("%T", zero), v)
	}
}

func kindArg(c call, index int) (cache.OperationKind, error) {
	var kind cache.OperationKind
	switch v := c.arg(index).(type) {
	case nil:
		return cache.KindAny, nil
	case cache.OperationKind:
		kind = v
	case string:
		kind = cache.OperationKind(v)
	default:
		return "", invalidArgument(c.op, index, "cache.OperationKind", v)
	}
	if kind == "" {
		return cache.KindAny, nil
	}
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %s argument %d: unknown kind %q", ErrInvalidArgument, c.op, index, string(kind))
	}
	return kind, nil
}

// toUpdater accepts an Updater, a function of the old value or a plain value.
func toUpdater(v any) cache.Updater {
	switch u := v.(type) {
	case cache.Updater:
		return u
	case func(old any, ok bool) any:
		return u
	case func(old any) any:
		return func(old any, _ bool) any { return u(old) }
	default:
		return cache.Value(v)
	}
}
