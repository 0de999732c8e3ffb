package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/reactive"
	"github.com/goliatone/go-rpc-cache/transport"
)

type handler func(ctx context.Context, c call) (any, error)

type dispatchTable map[string]handler

// procedureOperations go to the transport, possibly through a cache registration.
var procedureOperations = []string{
	cache.OpQuery,
	cache.OpInfiniteQuery,
	cache.OpQueryOptions,
	cache.OpInfiniteQueryOptions,
	cache.OpMutation,
	cache.OpSubscription,
}

// utilityOperations act on the cache directly.
var utilityOperations = []string{
	cache.OpGetKey,
	cache.OpFetch,
	cache.OpPrefetch,
	cache.OpFetchInfinite,
	cache.OpPrefetchInfinite,
	cache.OpEnsureData,
	cache.OpEnsureInfiniteData,
	cache.OpSetData,
	cache.OpSetInfiniteData,
	cache.OpGetData,
	cache.OpGetInfiniteData,
	cache.OpGetState,
	cache.OpInvalidate,
	cache.OpRefetch,
	cache.OpReset,
	cache.OpCancel,
}

func operationNames() []any {
	names := make([]any, 0, len(procedureOperations)+len(utilityOperations))
	for _, op := range procedureOperations {
		names = append(names, op)
	}
	for _, op := range utilityOperations {
		names = append(names, op)
	}
	return names
}

func (p *Proxy) buildTables() {
	p.procedures = dispatchTable{
		cache.OpQuery:                p.query,
		cache.OpInfiniteQuery:        p.infiniteQuery,
		cache.OpQueryOptions:         p.queryOptionsOp,
		cache.OpInfiniteQueryOptions: p.infiniteQueryOptionsOp,
		cache.OpMutation:             p.mutation,
		cache.OpSubscription:         p.subscription,
	}
	p.utilities = dispatchTable{
		cache.OpGetKey:             p.getKey,
		cache.OpFetch:              p.fetch,
		cache.OpPrefetch:           p.prefetch,
		cache.OpFetchInfinite:      p.fetchInfinite,
		cache.OpPrefetchInfinite:   p.prefetchInfinite,
		cache.OpEnsureData:         p.ensureData,
		cache.OpEnsureInfiniteData: p.ensureInfiniteData,
		cache.OpSetData:            p.setData,
		cache.OpSetInfiniteData:    p.setInfiniteData,
		cache.OpGetData:            p.getData,
		cache.OpGetInfiniteData:    p.getInfiniteData,
		cache.OpGetState:           p.getState,
		cache.OpInvalidate:         p.invalidate,
		cache.OpRefetch:            p.refetch,
		cache.OpReset:              p.reset,
		cache.OpCancel:             p.cancel,
	}
}

// lookup finds the handler of op. Paths reached through the alias consult
// the utility table first.
func (p *Proxy) lookup(op string, alias bool) (handler, bool) {
	tables := [2]dispatchTable{p.procedures, p.utilities}
	if alias {
		tables[0], tables[1] = tables[1], tables[0]
	}
	for _, table := range tables {
		if h, ok := table[op]; ok {
			return h, true
		}
	}
	return nil, false
}

func (p *Proxy) dispatch(ctx context.Context, c call) (any, error) {
	dotted := c.path.Dotted()
	h, ok := p.lookup(c.op, c.alias)
	if !ok {
		p.logger.Error("proxy unsupported operation", "path", dotted, "operation", c.op)
		return nil, &UnsupportedOperationError{Path: dotted, Operation: c.op}
	}

	start := time.Now()
	result, err := h(ctx, c)
	p.metrics.record(ctx, dotted, c.op, time.Since(start), err)
	if err != nil {
		p.logger.Debug("proxy dispatch failed", "path", dotted, "operation", c.op, "error", err)
		return nil, err
	}
	p.logger.Debug("proxy dispatch", "path", dotted, "operation", c.op)
	return result, nil
}

func (p *Proxy) key(c call, input any, kind cache.OperationKind) cache.Key {
	key := cache.DeriveKey(c.path, input, kind)
	p.logger.Debug("proxy key", "path", c.path.Dotted(), "operation", c.op, "key", key.String())
	return key
}

func (p *Proxy) staleTime(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return p.cfg.StaleTime
}

func (p *Proxy) buildQuery(path cache.Path, input any, cfg QueryConfig) cache.QueryOptions {
	dotted := path.Dotted()
	callOpts := transport.CallOptions{Tags: cfg.Tags}
	return cache.QueryOptions{
		Key: cache.DeriveKey(path, input, cache.KindQuery),
		Fetch: func(ctx context.Context) (any, error) {
			return p.transport.Call(ctx, cache.KindQuery, dotted, input, callOpts)
		},
		Disabled:         cfg.Disabled,
		StaleTime:        p.staleTime(cfg.StaleTime),
		KeepPreviousData: cfg.KeepPreviousData || p.cfg.KeepPreviousData,
		AbortOnClose:     cfg.AbortOnClose || p.cfg.AbortOnClose,
		Meta:             cfg.Meta,
	}
}

// buildInfinite injects the page cursor into input for every page fetch.
// The key is derived from input without the cursor.
func (p *Proxy) buildInfinite(path cache.Path, input any, cfg InfiniteConfig) cache.InfiniteQueryOptions {
	dotted := path.Dotted()
	callOpts := transport.CallOptions{Tags: cfg.Tags}
	next := cfg.GetNextCursor
	if next == nil {
		next = defaultNextCursor
	}
	return cache.InfiniteQueryOptions{
		Key: cache.DeriveKey(path, input, cache.KindInfinite),
		Fetch: func(ctx context.Context, cursor any) (any, error) {
			paged, err := cache.WithCursor(input, cursor)
			if err != nil {
				return nil, fmt.Errorf("proxy: %s: %w", dotted, err)
			}
			return p.transport.Call(ctx, cache.KindInfinite, dotted, paged, callOpts)
		},
		InitialPageParam: cfg.InitialCursor,
		GetNextPageParam: next,
		Disabled:         cfg.Disabled,
		StaleTime:        p.staleTime(cfg.StaleTime),
		KeepPreviousData: cfg.KeepPreviousData || p.cfg.KeepPreviousData,
		AbortOnClose:     cfg.AbortOnClose || p.cfg.AbortOnClose,
		Meta:             cfg.Meta,
	}
}

func checkPageable(c call, input any, cfg InfiniteConfig) error {
	if _, err := cache.WithCursor(input, cfg.InitialCursor); err != nil {
		return fmt.Errorf("proxy: %s: %w", c.path.Dotted(), err)
	}
	return nil
}

// bind returns the options of a registration. Reactive inputs yield a store
// that rebuilds the options on every emission of the input.
func bind[T any](input any, src reactive.Source, build func(any) T) reactive.Readable[T] {
	if src == nil {
		return reactive.Static(build(input))
	}
	return reactive.Derive(reactive.FromSource(src), build)
}

func (p *Proxy) query(ctx context.Context, c call) (any, error) {
	cfg, err := optionArg[QueryConfig](c, 1)
	if err != nil {
		return nil, err
	}
	input, src := c.input()
	p.key(c, input, cache.KindQuery)

	return p.cache.RegisterQuery(ctx, bind(input, src, func(in any) cache.QueryOptions {
		return p.buildQuery(c.path, in, cfg)
	}))
}

func (p *Proxy) infiniteQuery(ctx context.Context, c call) (any, error) {
	cfg, err := optionArg[InfiniteConfig](c, 1)
	if err != nil {
		return nil, err
	}
	input, src := c.input()
	if err := checkPageable(c, input, cfg); err != nil {
		return nil, err
	}
	p.key(c, input, cache.KindInfinite)

	return p.cache.RegisterInfiniteQuery(ctx, bind(input, src, func(in any) cache.InfiniteQueryOptions {
		return p.buildInfinite(c.path, in, cfg)
	}))
}

func (p *Proxy) queryOptionsOp(_ context.Context, c call) (any, error) {
	cfg, err := optionArg[QueryConfig](c, 1)
	if err != nil {
		return nil, err
	}
	input, _ := c.input()
	return p.buildQuery(c.path, input, cfg), nil
}

func (p *Proxy) infiniteQueryOptionsOp(_ context.Context, c call) (any, error) {
	cfg, err := optionArg[InfiniteConfig](c, 1)
	if err != nil {
		return nil, err
	}
	input, _ := c.input()
	if err := checkPageable(c, input, cfg); err != nil {
		return nil, err
	}
	return p.buildInfinite(c.path, input, cfg), nil
}

func (p *Proxy) mutation(_ context.Context, c call) (any, error) {
	cfg, err := optionArg[MutationConfig](c, 0)
	if err != nil {
		return nil, err
	}
	dotted := c.path.Dotted()
	callOpts := transport.CallOptions{Tags: cfg.Tags}

	opts := cache.MutationOptions{
		Key: p.key(c, nil, cache.KindMutation),
		Mutate: func(ctx context.Context, input any) (any, error) {
			return p.transport.Call(ctx, cache.KindMutation, dotted, input, callOpts)
		},
		OnSuccess: cfg.OnSuccess,
		OnError:   cfg.OnError,
		Meta:      cfg.Meta,
	}
	if hook := p.cfg.OnMutationSuccess; hook != nil {
		path := c.path.Clone()
		opts.OnSuccess = func(ctx context.Context, data, input any) error {
			return hook(ctx, MutationSuccessEvent{
				OriginalFn: func(ctx context.Context) error {
					if cfg.OnSuccess == nil {
						return nil
					}
					return cfg.OnSuccess(ctx, data, input)
				},
				Cache: p.cache,
				Meta:  cfg.Meta,
				Path:  path,
				Input: input,
				Data:  data,
			})
		}
	}
	return p.cache.RegisterMutation(opts)
}

// subscription goes straight to the transport. Streams are never cached.
func (p *Proxy) subscription(ctx context.Context, c call) (any, error) {
	observer, err := optionArg[transport.SubscriptionObserver](c, 1)
	if err != nil {
		return nil, err
	}
	input, _ := c.input()
	return p.transport.Subscribe(ctx, c.path.Dotted(), input, observer)
}

func (p *Proxy) getKey(_ context.Context, c call) (any, error) {
	kind, err := kindArg(c, 1)
	if err != nil {
		return nil, err
	}
	input, _ := c.input()
	return p.key(c, input, kind), nil
}

func (p *Proxy) fetch(ctx context.Context, c call) (any, error) {
	cfg, err := optionArg[QueryConfig](c, 1)
	if err != nil {
		return nil, err
	}
	input, _ := c.input()
	p.key(c, input, cache.KindQuery)
	return p.cache.Fetch(ctx, p.buildQuery(c.path, input, cfg))
}

func (p *Proxy) prefetch(ctx context.Context, c call) (any, error) {
	cfg, err := optionArg[QueryConfig](c, 1)
	if err != nil {
		return nil, err
	}
	input, _ := c.input()
	p.key(c, input, cache.KindQuery)
	return nil, p.cache.Prefetch(ctx, p.buildQuery(c.path, input, cfg))
}

func (p *Proxy) ensureData(ctx context.Context, c call) (any, error) {
	cfg, err := optionArg[QueryConfig](c, 1)
	if err != nil {
		return nil, err
	}
	input, _ := c.input()
	p.key(c, input, cache.KindQuery)
	return p.cache.EnsureData(ctx, p.buildQuery(c.path, input, cfg))
}

func (p *Proxy) infiniteArgs(c call) (any, InfiniteConfig, error) {
	cfg, err := optionArg[InfiniteConfig](c, 1)
	if err != nil {
		return nil, cfg, err
	}
	input, _ := c.input()
	if err := checkPageable(c, input, cfg); err != nil {
		return nil, cfg, err
	}
	p.key(c, input, cache.KindInfinite)
	return input, cfg, nil
}

func (p *Proxy) fetchInfinite(ctx context.Context, c call) (any, error) {
	input, cfg, err := p.infiniteArgs(c)
	if err != nil {
		return nil, err
	}
	return p.cache.FetchInfinite(ctx, p.buildInfinite(c.path, input, cfg))
}

func (p *Proxy) prefetchInfinite(ctx context.Context, c call) (any, error) {
	input, cfg, err := p.infiniteArgs(c)
	if err != nil {
		return nil, err
	}
	return nil, p.cache.PrefetchInfinite(ctx, p.buildInfinite(c.path, input, cfg))
}

func (p *Proxy) ensureInfiniteData(ctx context.Context, c call) (any, error) {
	input, cfg, err := p.infiniteArgs(c)
	if err != nil {
		return nil, err
	}
	return p.cache.EnsureInfiniteData(ctx, p.buildInfinite(c.path, input, cfg))
}

func (p *Proxy) setData(_ context.Context, c call) (any, error) {
	input, _ := c.input()
	return p.cache.SetData(p.key(c, input, cache.KindQuery), toUpdater(c.arg(1))), nil
}

func (p *Proxy) setInfiniteData(_ context.Context, c call) (any, error) {
	input, _ := c.input()
	return p.cache.SetData(p.key(c, input, cache.KindInfinite), toUpdater(c.arg(1))), nil
}

// getData returns nil when nothing is cached for the key.
func (p *Proxy) getData(_ context.Context, c call) (any, error) {
	input, _ := c.input()
	data, _ := p.cache.GetData(p.key(c, input, cache.KindQuery))
	return data, nil
}

func (p *Proxy) getInfiniteData(_ context.Context, c call) (any, error) {
	input, _ := c.input()
	data, _ := p.cache.GetData(p.key(c, input, cache.KindInfinite))
	return data, nil
}

// getState reports an idle state for keys the cache does not know.
func (p *Proxy) getState(_ context.Context, c call) (any, error) {
	kind, err := kindArg(c, 1)
	if err != nil {
		return nil, err
	}
	if kind == cache.KindAny {
		kind = cache.KindQuery
	}
	input, _ := c.input()
	key := p.key(c, input, kind)
	if state, ok := p.cache.GetState(key); ok {
		return state, nil
	}
	return cache.QueryState{Key: key, Status: cache.StatusIdle}, nil
}

// filterArgs builds the catch-all key of the path so that every entry at or
// below it matches.
func (p *Proxy) filterArgs(c call) (cache.Key, cache.Filters, error) {
	filters, err := optionArg[cache.Filters](c, 1)
	if err != nil {
		return cache.Key{}, filters, err
	}
	input, _ := c.input()
	return p.key(c, input, cache.KindAny), filters, nil
}

func (p *Proxy) invalidate(ctx context.Context, c call) (any, error) {
	key, filters, err := p.filterArgs(c)
	if err != nil {
		return nil, err
	}
	return nil, p.cache.Invalidate(ctx, key, filters)
}

func (p *Proxy) refetch(ctx context.Context, c call) (any, error) {
	key, filters, err := p.filterArgs(c)
	if err != nil {
		return nil, err
	}
	return nil, p.cache.Refetch(ctx, key, filters)
}

func (p *Proxy) reset(ctx context.Context, c call) (any, error) {
	key, filters, err := p.filterArgs(c)
	if err != nil {
		return nil, err
	}
	return nil, p.cache.Reset(ctx, key, filters)
}

func (p *Proxy) cancel(ctx context.Context, c call) (any, error) {
	key, filters, err := p.filterArgs(c)
	if err != nil {
		return nil, err
	}
	return nil, p.cache.Cancel(ctx, key, filters)
}
