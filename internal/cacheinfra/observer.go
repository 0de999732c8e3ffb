package cacheinfra

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/reactive"
	"github.com/google/uuid"
)

// queryObserver follows one query at a time. New options move it to the
// query of their key; the observer itself, its id and its state store
// stay the same.
type queryObserver struct {
	id     string
	client *QueryClient
	ctx    context.Context
	state  *reactive.Store[cache.QueryState]

	mu          sync.Mutex
	q           *query
	spec        *querySpec
	previous    any
	hasPrevious bool
	closed      bool
	stopOptions func()
}

func (c *QueryClient) newObserver(ctx context.Context) *queryObserver {
	o := &queryObserver{
		id:     uuid.NewString(),
		client: c,
		// observer fetches outlive the registering call; Close cancels them
		ctx:   context.WithoutCancel(ctx),
		state: reactive.Writable(cache.QueryState{Status: cache.StatusPending}),
	}
	c.observers.Store(o.id, o)
	return o
}

// RegisterQuery creates an observer driven by opts. Every value opts emits
// moves the observer to the key of that value.
func (c *QueryClient) RegisterQuery(ctx context.Context, opts reactive.Readable[cache.QueryOptions]) (cache.QueryHandle, error) {
	if opts == nil {
		return nil, errors.New("cacheinfra: query options are required")
	}
	if initial := opts.Get(); initial.Fetch == nil && !initial.Disabled {
		return nil, cache.ErrNoFetcher
	}

	o := c.newObserver(ctx)
	stop := opts.Subscribe(func(v cache.QueryOptions) {
		o.setOptions(specFromQuery(v))
	})
	o.attach(stop)
	return o, nil
}

// RegisterInfiniteQuery is RegisterQuery for paginated queries.
func (c *QueryClient) RegisterInfiniteQuery(ctx context.Context, opts reactive.Readable[cache.InfiniteQueryOptions]) (cache.InfiniteQueryHandle, error) {
	if opts == nil {
		return nil, errors.New("cacheinfra: query options are required")
	}
	if initial := opts.Get(); initial.Fetch == nil && !initial.Disabled {
		return nil, cache.ErrNoFetcher
	}

	o := c.newObserver(ctx)
	stop := opts.Subscribe(func(v cache.InfiniteQueryOptions) {
		o.setOptions(specFromInfinite(v))
	})
	o.attach(stop)
	return &infiniteObserver{queryObserver: o}, nil
}

// Observer returns the live observer registered under id.
func (c *QueryClient) Observer(id string) (cache.QueryHandle, bool) {
	o, ok := c.observers.Load(id)
	if !ok {
		return nil, false
	}
	return o, true
}

func (o *queryObserver) attach(stop func()) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		stop()
		return
	}
	o.stopOptions = stop
	o.mu.Unlock()
}

func (o *queryObserver) setOptions(spec *querySpec) {
	c := o.client

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	prev := o.q
	q := c.ensureQuery(spec.key)
	o.q = q
	o.spec = spec
	o.mu.Unlock()

	q.setSpec(spec, true)
	if prev != q {
		if prev != nil {
			prev.removeObserver(o.id)
		}
		q.addObserver(o)

		// a Close that ran since the unlock already detached from q
		o.mu.Lock()
		closed := o.closed
		o.mu.Unlock()
		if closed {
			q.removeObserver(o.id)
			return
		}
	}

	st := o.publish()
	if !spec.disabled && st.Stale && !st.Fetching && spec.fetch != nil {
		c.background(o.ctx, q, spec)
	}
}

func (o *queryObserver) currentSpec() *querySpec {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.spec
}

func (o *queryObserver) current() (*query, *querySpec, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q, o.spec, o.closed
}

// publish pushes the observed state to subscribers and returns it.
func (o *queryObserver) publish() cache.QueryState {
	q, spec, closed := o.current()
	if q == nil || closed {
		return o.state.Get()
	}

	st := o.client.stateOf(q, o.client.staleTime(spec))
	keepPrevious := spec.keepPrevious || o.client.cfg.KeepPreviousData

	o.mu.Lock()
	if st.HasData {
		o.previous = st.Data
		o.hasPrevious = true
	} else if keepPrevious && o.hasPrevious {
		st.Data = o.previous
		st.HasData = true
		st.Placeholder = true
	}
	o.mu.Unlock()

	o.state.Set(st)
	return st
}

func (o *queryObserver) ID() string {
	return o.id
}

func (o *queryObserver) Key() cache.Key {
	_, spec, _ := o.current()
	if spec == nil {
		return cache.Key{}
	}
	return spec.key
}

func (o *queryObserver) State() cache.QueryState {
	return o.state.Get()
}

func (o *queryObserver) Subscribe(listener func(cache.QueryState)) func() {
	return o.state.Subscribe(listener)
}

// Refetch fetches the observed query now, regardless of staleness.
func (o *queryObserver) Refetch(ctx context.Context) (cache.QueryState, error) {
	q, spec, closed := o.current()
	if closed {
		return o.State(), cache.ErrClosed
	}
	if _, err := o.client.execute(ctx, q, spec, true); err != nil {
		return o.State(), err
	}
	return o.State(), nil
}

// Close detaches the observer. Option changes delivered afterwards are ignored.
func (o *queryObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	q, spec, stop := o.q, o.spec, o.stopOptions
	o.stopOptions = nil
	o.mu.Unlock()

	if stop != nil {
		stop()
	}
	o.client.observers.Delete(o.id)
	if q == nil {
		return
	}
	if left := q.removeObserver(o.id); left == 0 && spec != nil && spec.abortOnClose {
		q.cancelFetch()
	}
}

var _ cache.QueryHandle = (*queryObserver)(nil)
