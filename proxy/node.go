package proxy

import (
	"context"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/transport"
)

// Node is one position in the procedure namespace. Nodes are cheap values
// created on demand; nothing is registered until an operation is called.
type Node struct {
	proxy *Proxy
	path  cache.Path
	utils bool
}

// Path returns the node below n at segments. At the root, a leading alias
// segment is stripped and marks the node as reached through the alias.
func (n *Node) Path(segments ...string) *Node {
	utils := n.utils
	if len(n.path) == 0 && !utils && len(segments) > 0 && segments[0] == n.proxy.cfg.Alias {
		utils = true
		segments = segments[1:]
	}
	return &Node{
		proxy: n.proxy,
		path:  n.path.Append(segments...),
		utils: utils,
	}
}

// Segments returns a copy of the node path.
func (n *Node) Segments() cache.Path {
	return n.path.Clone()
}

// Dotted returns the procedure identifier passed to the transport.
func (n *Node) Dotted() string {
	return n.path.Dotted()
}

// Call dispatches op at this node. args[0] is the input for operations that
// take one; a reactive.Source input is unwrapped to its current value.
func (n *Node) Call(ctx context.Context, op string, args ...any) (any, error) {
	return n.proxy.dispatch(ctx, call{
		path:  n.path.Clone(),
		op:    op,
		args:  args,
		alias: n.utils,
	})
}

func callAs[T any](ctx context.Context, n *Node, op string, args ...any) (T, error) {
	result, err := n.Call(ctx, op, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return cache.As[T](result)
}

// Query registers a live query. input may be a reactive value, in which
// case the handle follows it.
func (n *Node) Query(ctx context.Context, input any, cfg QueryConfig) (cache.QueryHandle, error) {
	return callAs[cache.QueryHandle](ctx, n, cache.OpQuery, input, cfg)
}

func (n *Node) InfiniteQuery(ctx context.Context, input any, cfg InfiniteConfig) (cache.InfiniteQueryHandle, error) {
	return callAs[cache.InfiniteQueryHandle](ctx, n, cache.OpInfiniteQuery, input, cfg)
}

// QueryOptions returns the options Query would register, see Proxy.Queries.
func (n *Node) QueryOptions(ctx context.Context, input any, cfg QueryConfig) (cache.QueryOptions, error) {
	return callAs[cache.QueryOptions](ctx, n, cache.OpQueryOptions, input, cfg)
}

func (n *Node) InfiniteQueryOptions(ctx context.Context, input any, cfg InfiniteConfig) (cache.InfiniteQueryOptions, error) {
	return callAs[cache.InfiniteQueryOptions](ctx, n, cache.OpInfiniteQueryOptions, input, cfg)
}

// Mutation registers a mutation bound to this procedure.
func (n *Node) Mutation(ctx context.Context, cfg MutationConfig) (cache.MutationHandle, error) {
	return callAs[cache.MutationHandle](ctx, n, cache.OpMutation, cfg)
}

// Subscribe opens a stream. Stream data is never cached.
func (n *Node) Subscribe(ctx context.Context, input any, observer transport.SubscriptionObserver) (transport.Unsubscribable, error) {
	return callAs[transport.Unsubscribable](ctx, n, cache.OpSubscription, input, observer)
}

// GetKey returns the cache key of input for kind.
func (n *Node) GetKey(ctx context.Context, input any, kind cache.OperationKind) (cache.Key, error) {
	return callAs[cache.Key](ctx, n, cache.OpGetKey, input, kind)
}

func (n *Node) Fetch(ctx context.Context, input any, cfg QueryConfig) (any, error) {
	return n.Call(ctx, cache.OpFetch, input, cfg)
}

func (n *Node) Prefetch(ctx context.Context, input any, cfg QueryConfig) error {
	_, err := n.Call(ctx, cache.OpPrefetch, input, cfg)
	return err
}

func (n *Node) FetchInfinite(ctx context.Context, input any, cfg InfiniteConfig) (cache.InfiniteData, error) {
	return callAs[cache.InfiniteData](ctx, n, cache.OpFetchInfinite, input, cfg)
}

func (n *Node) PrefetchInfinite(ctx context.Context, input any, cfg InfiniteConfig) error {
	_, err := n.Call(ctx, cache.OpPrefetchInfinite, input, cfg)
	return err
}

// EnsureData returns cached data, fetching only when nothing is cached.
func (n *Node) EnsureData(ctx context.Context, input any, cfg QueryConfig) (any, error) {
	return n.Call(ctx, cache.OpEnsureData, input, cfg)
}

func (n *Node) EnsureInfiniteData(ctx context.Context, input any, cfg InfiniteConfig) (cache.InfiniteData, error) {
	return callAs[cache.InfiniteData](ctx, n, cache.OpEnsureInfiniteData, input, cfg)
}

// SetData writes data for input. updater is a cache.Updater, a
// func(old any) any or the new value itself.
func (n *Node) SetData(ctx context.Context, input any, updater any) (any, error) {
	return n.Call(ctx, cache.OpSetData, input, updater)
}

func (n *Node) SetInfiniteData(ctx context.Context, input any, updater any) (any, error) {
	return n.Call(ctx, cache.OpSetInfiniteData, input, updater)
}

// GetData returns the cached data of input, or nil.
func (n *Node) GetData(ctx context.Context, input any) (any, error) {
	return n.Call(ctx, cache.OpGetData, input)
}

func (n *Node) GetInfiniteData(ctx context.Context, input any) (cache.InfiniteData, error) {
	return callAs[cache.InfiniteData](ctx, n, cache.OpGetInfiniteData, input)
}

func (n *Node) GetState(ctx context.Context, input any) (cache.QueryState, error) {
	return callAs[cache.QueryState](ctx, n, cache.OpGetState, input)
}

// Invalidate marks every entry at or below this path stale and refetches
// the observed ones. A nil input matches all inputs.
func (n *Node) Invalidate(ctx context.Context, input any, filters cache.Filters) error {
	_, err := n.Call(ctx, cache.OpInvalidate, input, filters)
	return err
}

func (n *Node) Refetch(ctx context.Context, input any, filters cache.Filters) error {
	_, err := n.Call(ctx, cache.OpRefetch, input, filters)
	return err
}

func (n *Node) Reset(ctx context.Context, input any, filters cache.Filters) error {
	_, err := n.Call(ctx, cache.OpReset, input, filters)
	return err
}

func (n *Node) Cancel(ctx context.Context, input any, filters cache.Filters) error {
	_, err := n.Call(ctx, cache.OpCancel, input, filters)
	return err
}
