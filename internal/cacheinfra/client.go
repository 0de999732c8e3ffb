package cacheinfra

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// QueryClient is a cache.QueryCache backed by sturdyc.
//
// Data is stored in sturdyc under the hash of its key, so the configured
// capacity, TTL and eviction apply to it. Query status, staleness and
// observers are tracked next to it in an xsync map.
type QueryClient struct {
	cfg    cache.Config
	store  *sturdyc.Client[any]
	logger *slog.Logger
	now    func() time.Time

	queries   *xsync.MapOf[string, *query]
	observers *xsync.MapOf[string, *queryObserver]
	mutations *xsync.MapOf[string, *mutationHandle]
	group     singleflight.Group
}

// NewQueryClient validates cfg and creates a client.
func NewQueryClient(cfg cache.Config, opts ...Option) (*QueryClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &QueryClient{
		cfg:       cfg,
		store:     newStore(cfg),
		logger:    discardLogger(),
		now:       time.Now,
		queries:   xsync.NewMapOf[string, *query](),
		observers: xsync.NewMapOf[string, *queryObserver](),
		mutations: xsync.NewMapOf[string, *mutationHandle](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the configuration the client was created with.
func (c *QueryClient) Config() cache.Config {
	return c.cfg
}

func (c *QueryClient) ensureQuery(key cache.Key) *query {
	q, _ := c.queries.LoadOrCompute(key.Hash(), func() *query {
		return newQuery(key)
	})
	return q
}

func (c *QueryClient) staleTime(spec *querySpec) time.Duration {
	if spec != nil && spec.staleTime > 0 {
		return spec.staleTime
	}
	return c.cfg.StaleTime
}

func (c *QueryClient) stateOf(q *query, staleTime time.Duration) cache.QueryState {
	data, ok := c.store.Get(q.hash)

	q.mu.Lock()
	defer q.mu.Unlock()

	stale := !ok || q.invalidated || staleTime <= 0 || c.now().Sub(q.updatedAt) >= staleTime
	return cache.QueryState{
		Key:       q.key,
		Status:    q.status,
		Data:      data,
		HasData:   ok,
		Err:       q.err,
		UpdatedAt: q.updatedAt,
		Stale:     stale,
		Fetching:  q.fetching,
	}
}

func (c *QueryClient) notify(q *query) {
	for _, o := range q.observerList() {
		o.publish()
	}
}

// execute runs spec's fetch for q, sharing the call with concurrent fetches
// of the same key. Unless force is set, data that became fresh while the
// caller waited is returned without fetching again.
func (c *QueryClient) execute(ctx context.Context, q *query, spec *querySpec, force bool) (any, error) {
	if spec == nil || spec.fetch == nil {
		return nil, cache.ErrNoFetcher
	}
	v, err, _ := c.group.Do(q.hash, func() (any, error) {
		if !force {
			if st := c.stateOf(q, c.staleTime(spec)); st.HasData && !st.Stale {
				return st.Data, nil
			}
		}
		return c.track(ctx, q, func(ctx context.Context) (any, error) {
			return spec.fetch(ctx, c, q)
		})
	})
	return v, err
}

// track records the fetch lifecycle of fn on q and stores its result.
func (c *QueryClient) track(ctx context.Context, q *query, fn func(ctx context.Context) (any, error)) (any, error) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.beginFetch(cancel)
	c.notify(q)

	logger := c.logger.With("key", q.key.String())
	logger.Debug("fetching query")

	data, err := fn(fetchCtx)

	q.mu.Lock()
	q.fetching = false
	q.cancel = nil
	switch {
	case err != nil && fetchCtx.Err() != nil && errors.Is(err, context.Canceled):
		// cancelled fetches leave the previous state in place
		logger.Debug("query fetch cancelled")
	case err != nil:
		q.status = cache.StatusError
		q.err = err
		logger.Debug("query fetch failed", "error", err)
	default:
		c.store.Set(q.hash, data)
		q.status = cache.StatusSuccess
		q.err = nil
		q.updatedAt = c.now()
		q.invalidated = false
	}
	q.mu.Unlock()

	c.notify(q)
	return data, err
}

// background fetches q without blocking the caller. Errors end up in the
// query state.
func (c *QueryClient) background(ctx context.Context, q *query, spec *querySpec) {
	go func() {
		if _, err := c.execute(ctx, q, spec, false); err != nil {
			c.logger.Debug("background fetch failed", "key", q.key.String(), "error", err)
		}
	}()
}

func (c *QueryClient) fetchSpec(ctx context.Context, spec *querySpec) (any, error) {
	if spec.fetch == nil {
		return nil, cache.ErrNoFetcher
	}
	q := c.ensureQuery(spec.key)
	q.setSpec(spec, false)

	st := c.stateOf(q, c.staleTime(spec))
	if st.HasData && !st.Stale {
		return st.Data, nil
	}
	return c.execute(ctx, q, spec, false)
}

// Fetch returns fresh data for opts.Key, fetching when the cached data is
// missing or stale.
func (c *QueryClient) Fetch(ctx context.Context, opts cache.QueryOptions) (any, error) {
	return c.fetchSpec(ctx, specFromQuery(opts))
}

// Prefetch warms the cache for opts.Key.
func (c *QueryClient) Prefetch(ctx context.Context, opts cache.QueryOptions) error {
	_, err := c.Fetch(ctx, opts)
	return err
}

// FetchInfinite is Fetch for paginated queries.
func (c *QueryClient) FetchInfinite(ctx context.Context, opts cache.InfiniteQueryOptions) (cache.InfiniteData, error) {
	v, err := c.fetchSpec(ctx, specFromInfinite(opts))
	if err != nil {
		return cache.InfiniteData{}, err
	}
	return asInfinite(v), nil
}

// PrefetchInfinite warms the cache for a paginated query.
func (c *QueryClient) PrefetchInfinite(ctx context.Context, opts cache.InfiniteQueryOptions) error {
	_, err := c.FetchInfinite(ctx, opts)
	return err
}

// EnsureData returns cached data regardless of staleness and fetches only
// when there is none. Misses go through sturdyc's GetOrFetch so early
// refreshes, when configured, keep the entry warm.
func (c *QueryClient) EnsureData(ctx context.Context, opts cache.QueryOptions) (any, error) {
	return c.ensureSpec(ctx, specFromQuery(opts))
}

// EnsureInfiniteData is EnsureData for paginated queries.
func (c *QueryClient) EnsureInfiniteData(ctx context.Context, opts cache.InfiniteQueryOptions) (cache.InfiniteData, error) {
	v, err := c.ensureSpec(ctx, specFromInfinite(opts))
	if err != nil {
		return cache.InfiniteData{}, err
	}
	return asInfinite(v), nil
}

func (c *QueryClient) ensureSpec(ctx context.Context, spec *querySpec) (any, error) {
	if spec.fetch == nil {
		return nil, cache.ErrNoFetcher
	}
	q := c.ensureQuery(spec.key)
	q.setSpec(spec, false)

	return c.store.GetOrFetch(ctx, q.hash, func(ctx context.Context) (any, error) {
		return c.execute(ctx, q, spec, true)
	})
}

// GetData returns the data cached for key.
func (c *QueryClient) GetData(key cache.Key) (any, bool) {
	return c.store.Get(key.Hash())
}

// SetData writes updater's result for key and marks it fresh. A nil result
// leaves the cache untouched. Updates of one key are serialized, so updater
// must not call back into the client for that key.
func (c *QueryClient) SetData(key cache.Key, updater cache.Updater) any {
	q := c.ensureQuery(key)

	q.mu.Lock()
	old, ok := c.store.Get(q.hash)
	next := updater(old, ok)
	if next == nil {
		q.mu.Unlock()
		return old
	}
	c.store.Set(q.hash, next)
	q.status = cache.StatusSuccess
	q.err = nil
	q.updatedAt = c.now()
	q.invalidated = false
	q.mu.Unlock()

	c.notify(q)
	return next
}

// GetState returns the state of the query registered for key.
func (c *QueryClient) GetState(key cache.Key) (cache.QueryState, bool) {
	q, ok := c.queries.Load(key.Hash())
	if !ok {
		return cache.QueryState{}, false
	}
	return c.stateOf(q, c.staleTime(q.lastSpec())), true
}

func (c *QueryClient) match(filter cache.Key, filters cache.Filters) []*query {
	var out []*query
	c.queries.Range(func(_ string, q *query) bool {
		if !q.key.Matches(filter, filters.Exact) {
			return true
		}
		if filters.Predicate != nil && !filters.Predicate(c.stateOf(q, c.staleTime(q.lastSpec()))) {
			return true
		}
		out = append(out, q)
		return true
	})
	return out
}

// refetchAll fetches each query with the spec picked by specFor, at most
// RefetchConcurrency at a time.
func (c *QueryClient) refetchAll(ctx context.Context, queries []*query, specFor func(*query) *querySpec) error {
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.RefetchConcurrency)

	for _, q := range queries {
		spec := specFor(q)
		if spec == nil || spec.disabled || spec.fetch == nil {
			continue
		}
		q := q
		g.Go(func() error {
			_, err := c.execute(ctx, q, spec, true)
			return err
		})
	}
	return g.Wait()
}

// Invalidate marks every matching query stale and refetches those with an
// enabled observer. Refetch failures are recorded in the query state, not returned.
func (c *QueryClient) Invalidate(ctx context.Context, filter cache.Key, filters cache.Filters) error {
	matched := c.match(filter, filters)
	for _, q := range matched {
		q.invalidate()
		c.notify(q)
	}
	c.logger.Debug("invalidated queries", "filter", filter.String(), "count", len(matched))

	if err := c.refetchAll(ctx, matched, (*query).activeSpec); err != nil {
		c.logger.Debug("refetch after invalidate failed", "filter", filter.String(), "error", err)
	}
	return nil
}

// Refetch fetches every matching query that has known, enabled options.
func (c *QueryClient) Refetch(ctx context.Context, filter cache.Key, filters cache.Filters) error {
	matched := c.match(filter, filters)
	return c.refetchAll(ctx, matched, func(q *query) *querySpec {
		if spec := q.activeSpec(); spec != nil {
			return spec
		}
		return q.lastSpec()
	})
}

// Reset drops the data of every matching query and refetches those with an
// enabled observer.
func (c *QueryClient) Reset(ctx context.Context, filter cache.Key, filters cache.Filters) error {
	matched := c.match(filter, filters)
	for _, q := range matched {
		q.cancelFetch()

		q.mu.Lock()
		c.store.Delete(q.hash)
		q.status = cache.StatusPending
		q.err = nil
		q.updatedAt = time.Time{}
		q.invalidated = false
		q.mu.Unlock()

		c.notify(q)
	}
	return c.refetchAll(ctx, matched, (*query).activeSpec)
}

// Cancel aborts in-flight fetches of every matching query.
func (c *QueryClient) Cancel(_ context.Context, filter cache.Key, filters cache.Filters) error {
	for _, q := range c.match(filter, filters) {
		if q.cancelFetch() {
			c.logger.Debug("cancelled query fetch", "key", q.key.String())
		}
	}
	return nil
}

// IsFetching counts matching queries with a fetch in flight.
func (c *QueryClient) IsFetching(filter cache.Key) int {
	n := 0
	for _, q := range c.match(filter, cache.Filters{}) {
		if q.isFetching() {
			n++
		}
	}
	return n
}

// Size returns the number of entries held by the data store.
func (c *QueryClient) Size() int {
	return c.store.Size()
}

var _ cache.QueryCache = (*QueryClient)(nil)
