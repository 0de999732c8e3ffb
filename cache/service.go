package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-rpc-cache/reactive"
)

// KeySerializer turns a Key into the string the storage backend indexes by.
// It is responsible for producing the same string for deeply equal keys.
type KeySerializer interface {
	SerializeKey(key Key) string
}

// Fetcher loads the data of a plain query from the source of truth.
type Fetcher func(ctx context.Context) (any, error)

// PageFetcher loads one page of a paginated query. pageParam is the cursor
// the page starts at.
type PageFetcher func(ctx context.Context, pageParam any) (any, error)

// Mutator performs a write with the per-invocation input.
type Mutator func(ctx context.Context, input any) (any, error)

// QueryOptions describe a plain query.
type QueryOptions struct {
	Key   Key
	Fetch Fetcher

	// Disabled registers the query without fetching it.
	Disabled bool
	// StaleTime overrides the client stale time when greater than zero.
	StaleTime time.Duration
	// KeepPreviousData keeps the last data visible while a new key loads.
	KeepPreviousData bool
	// AbortOnClose cancels in-flight fetches when the last observer closes.
	AbortOnClose bool

	Meta map[string]any
}

// InfiniteQueryOptions describe a paginated query.
type InfiniteQueryOptions struct {
	Key   Key
	Fetch PageFetcher

	InitialPageParam any
	// GetNextPageParam returns the cursor of the page after lastPage, or false
	// when there are no more pages.
	GetNextPageParam func(lastPage any, allPages []any) (any, bool)

	Disabled         bool
	StaleTime        time.Duration
	KeepPreviousData bool
	AbortOnClose     bool

	Meta map[string]any
}

// InfiniteData is the data stored for a paginated query.
type InfiniteData struct {
	Pages      []any `msgpack:"pages"`
	PageParams []any `msgpack:"page_params"`
}

// MutationOptions describe a write.
type MutationOptions struct {
	Key    Key
	Mutate Mutator

	// OnSuccess runs after a successful mutation. Its error is returned by Mutate.
	OnSuccess func(ctx context.Context, data, input any) error
	// OnError runs after a failed mutation.
	OnError func(ctx context.Context, err error, input any)

	Meta map[string]any
}

// Status is the lifecycle state of a query or mutation.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// QueryState is a snapshot of a query as seen by its observers.
type QueryState struct {
	Key       Key
	Status    Status
	Data      any
	HasData   bool
	Err       error
	UpdatedAt time.Time
	Stale     bool
	Fetching  bool
	// Placeholder is set when Data belongs to the previous key of an
	// observer that keeps previous data.
	Placeholder bool
}

// MutationState is a snapshot of a mutation handle.
type MutationState struct {
	Key         Key
	Status      Status
	Data        any
	Err         error
	Input       any
	SubmittedAt time.Time
}

// Updater computes new data from the current data. ok is false when the
// cache holds nothing for the key.
type Updater func(old any, ok bool) any

// Filters refine which entries a filter key selects.
type Filters struct {
	// Exact requires keys to be equal instead of partially matching.
	Exact bool
	// Predicate, when set, must also return true for the entry.
	Predicate func(QueryState) bool
}

// QueryHandle is a live observer of a query.
type QueryHandle interface {
	ID() string
	// Key returns the key currently observed.
	Key() Key
	State() QueryState
	Subscribe(listener func(QueryState)) (unsubscribe func())
	Refetch(ctx context.Context) (QueryState, error)
	Close()
}

// InfiniteQueryHandle is a live observer of a paginated query.
type InfiniteQueryHandle interface {
	QueryHandle
	FetchNextPage(ctx context.Context) (QueryState, error)
	HasNextPage() bool
}

// MutationHandle runs a registered mutation.
type MutationHandle interface {
	ID() string
	Key() Key
	Mutate(ctx context.Context, input any) (any, error)
	State() MutationState
	Reset()
}

// QueryCache is the cache collaborator of the namespace proxy.
//
// Registration functions take a Readable of options: every value it emits
// replaces the options of the same observer, so changing inputs never
// re-create the returned handle.
type QueryCache interface {
	RegisterQuery(ctx context.Context, opts reactive.Readable[QueryOptions]) (QueryHandle, error)
	RegisterInfiniteQuery(ctx context.Context, opts reactive.Readable[InfiniteQueryOptions]) (InfiniteQueryHandle, error)
	RegisterMutation(opts MutationOptions) (MutationHandle, error)

	Fetch(ctx context.Context, opts QueryOptions) (any, error)
	Prefetch(ctx context.Context, opts QueryOptions) error
	FetchInfinite(ctx context.Context, opts InfiniteQueryOptions) (InfiniteData, error)
	PrefetchInfinite(ctx context.Context, opts InfiniteQueryOptions) error
	EnsureData(ctx context.Context, opts QueryOptions) (any, error)
	EnsureInfiniteData(ctx context.Context, opts InfiniteQueryOptions) (InfiniteData, error)

	GetData(key Key) (any, bool)
	SetData(key Key, updater Updater) any
	GetState(key Key) (QueryState, bool)

	Invalidate(ctx context.Context, filter Key, filters Filters) error
	Refetch(ctx context.Context, filter Key, filters Filters) error
	Reset(ctx context.Context, filter Key, filters Filters) error
	Cancel(ctx context.Context, filter Key, filters Filters) error
}

// Value returns an Updater that replaces the data with v.
func Value(v any) Updater {
	return func(any, bool) any { return v }
}

// As converts cached data to T.
func As[T any](data any) (T, error) {
	if data == nil {
		var zero T
		return zero, nil
	}
	typed, ok := data.(T)
	if !ok {
		var zero T
		return zero, ErrInvalidResultType
	}
	return typed, nil
}

// Fetch is a type-safe wrapper around QueryCache.Fetch.
func Fetch[T any](ctx context.Context, c QueryCache, opts QueryOptions) (T, error) {
	result, err := c.Fetch(ctx, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](result)
}

// GetData is a type-safe wrapper around QueryCache.GetData.
func GetData[T any](c QueryCache, key Key) (T, bool, error) {
	result, ok := c.GetData(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	typed, err := As[T](result)
	return typed, true, err
}
