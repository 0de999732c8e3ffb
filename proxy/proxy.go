package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/reactive"
	"github.com/goliatone/go-rpc-cache/transport"
)

// Proxy resolves procedure paths to cache-backed transport calls.
//
// A Proxy holds no query state of its own: every handle it returns belongs
// to the cache, and several proxies may share one cache and transport.
type Proxy struct {
	transport transport.Transport
	cache     cache.QueryCache
	cfg       Config
	logger    *slog.Logger
	metrics   *dispatchMetrics

	procedures dispatchTable
	utilities  dispatchTable
}

// New creates a Proxy over a transport and a query cache.
func New(t transport.Transport, c cache.QueryCache, opts ...Option) (*Proxy, error) {
	if t == nil {
		return nil, ErrMissingTransport
	}
	if c == nil {
		return nil, ErrMissingCache
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("proxy: invalid config: %w", err)
	}

	metrics, err := newDispatchMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("proxy: create metrics: %w", err)
	}

	p := &Proxy{
		transport: t,
		cache:     c,
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   metrics,
	}
	p.buildTables()
	return p, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Transport returns the transport the proxy calls.
func (p *Proxy) Transport() transport.Transport {
	return p.transport
}

// Cache returns the shared query cache.
func (p *Proxy) Cache() cache.QueryCache {
	return p.cache
}

// Config returns a copy of the proxy settings.
func (p *Proxy) Config() Config {
	return p.cfg
}

// Root returns the node of the router root. Operations on it apply to the
// whole cache, e.g. Root().Invalidate(ctx, nil, cache.Filters{}).
func (p *Proxy) Root() *Node {
	return &Node{proxy: p}
}

// Utils returns the alias node. Paths below it resolve exactly like paths
// below the root but consult the utility operations first.
func (p *Proxy) Utils() *Node {
	return &Node{proxy: p, utils: true}
}

// Path returns the node at segments. A leading alias segment is stripped.
func (p *Proxy) Path(segments ...string) *Node {
	return p.Root().Path(segments...)
}

// Resolve dispatches an access path whose last segment is the operation
// name, e.g. []string{"users", "byId", "query"}.
func (p *Proxy) Resolve(ctx context.Context, access []string, args ...any) (any, error) {
	if len(access) == 0 {
		return nil, &UnsupportedOperationError{}
	}
	last := len(access) - 1
	return p.Path(access[:last]...).Call(ctx, access[last], args...)
}

// Queries registers several queries at once, typically built with the
// queryOptions operation. Handles registered before a failure are closed.
func (p *Proxy) Queries(ctx context.Context, opts ...cache.QueryOptions) ([]cache.QueryHandle, error) {
	handles := make([]cache.QueryHandle, 0, len(opts))
	for _, o := range opts {
		handle, err := p.cache.RegisterQuery(ctx, reactive.Static(o))
		if err != nil {
			for _, h := range handles {
				h.Close()
			}
			return nil, fmt.Errorf("proxy: register %s: %w", o.Key.Path.Dotted(), err)
		}
		handles = append(handles, handle)
	}
	return handles, nil
}
