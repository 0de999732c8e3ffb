package cacheinfra

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
)

// querySpec is the kind-independent form of QueryOptions and InfiniteQueryOptions.
type querySpec struct {
	key          cache.Key
	fetch        func(ctx context.Context, c *QueryClient, q *query) (any, error)
	disabled     bool
	staleTime    time.Duration
	keepPrevious bool
	abortOnClose bool
	infinite     *cache.InfiniteQueryOptions
}

func specFromQuery(opts cache.QueryOptions) *querySpec {
	spec := &querySpec{
		key:          opts.Key,
		disabled:     opts.Disabled,
		staleTime:    opts.StaleTime,
		keepPrevious: opts.KeepPreviousData,
		abortOnClose: opts.AbortOnClose,
	}
	if opts.Fetch != nil {
		fetch := opts.Fetch
		spec.fetch = func(ctx context.Context, _ *QueryClient, _ *query) (any, error) {
			return fetch(ctx)
		}
	}
	return spec
}

func specFromInfinite(opts cache.InfiniteQueryOptions) *querySpec {
	spec := &querySpec{
		key:          opts.Key,
		disabled:     opts.Disabled,
		staleTime:    opts.StaleTime,
		keepPrevious: opts.KeepPreviousData,
		abortOnClose: opts.AbortOnClose,
		infinite:     &opts,
	}
	if opts.Fetch != nil {
		spec.fetch = func(ctx context.Context, c *QueryClient, q *query) (any, error) {
			return fetchPages(ctx, opts, c.infiniteData(q.hash))
		}
	}
	return spec
}

// query is the bookkeeping for one cache key. The data itself lives in the
// sturdyc store under hash.
type query struct {
	hash string
	key  cache.Key

	mu          sync.Mutex
	status      cache.Status
	err         error
	updatedAt   time.Time
	invalidated bool
	fetching    bool
	cancel      context.CancelFunc
	spec        *querySpec
	observers   map[string]*queryObserver
}

func newQuery(key cache.Key) *query {
	return &query{
		hash:      key.Hash(),
		key:       key,
		status:    cache.StatusPending,
		observers: make(map[string]*queryObserver),
	}
}

func (q *query) setSpec(spec *querySpec, replace bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.spec == nil || replace {
		q.spec = spec
	}
}

// activeSpec returns the options of an enabled observer, or nil when no
// observer would fetch this query.
func (q *query) activeSpec() *querySpec {
	for _, o := range q.observerList() {
		if spec := o.currentSpec(); spec != nil && !spec.disabled {
			return spec
		}
	}
	return nil
}

func (q *query) lastSpec() *querySpec {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.spec
}

func (q *query) addObserver(o *queryObserver) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers[o.id] = o
}

// removeObserver returns the number of observers left.
func (q *query) removeObserver(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.observers, id)
	return len(q.observers)
}

func (q *query) observerList() []*queryObserver {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*queryObserver, 0, len(q.observers))
	for _, o := range q.observers {
		out = append(out, o)
	}
	return out
}

func (q *query) isFetching() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fetching
}

func (q *query) beginFetch(cancel context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fetching = true
	q.cancel = cancel
}

func (q *query) cancelFetch() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel == nil {
		return false
	}
	q.cancel()
	return true
}

func (q *query) invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.invalidated = true
}
