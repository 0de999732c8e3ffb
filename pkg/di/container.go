package di

import (
	"log/slog"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/internal/cacheinfra"
	"github.com/goliatone/go-rpc-cache/proxy"
	"github.com/goliatone/go-rpc-cache/transport"
)

// Container wires the query client, the transport and the namespace proxy.
// It holds one instance of each, shared by everything built from it.
type Container struct {
	queryClient   *cacheinfra.QueryClient
	transport     transport.Transport
	proxy         *proxy.Proxy
	keySerializer cache.KeySerializer
	config        cache.Config
}

// Option configures the container.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	proxyOptions []proxy.Option
}

// WithLogger sets the logger shared by the query client and the proxy.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProxyOptions forwards options to proxy.New.
func WithProxyOptions(opts ...proxy.Option) Option {
	return func(o *options) {
		o.proxyOptions = append(o.proxyOptions, opts...)
	}
}

// NewContainer creates the query client from config and a proxy over it
// and t. The query client is the cache of the proxy.
func NewContainer(config cache.Config, t transport.Transport, opts ...Option) (*Container, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var clientOpts []cacheinfra.Option
	proxyOpts := o.proxyOptions
	if o.logger != nil {
		clientOpts = append(clientOpts, cacheinfra.WithLogger(o.logger))
		proxyOpts = append([]proxy.Option{proxy.WithLogger(o.logger)}, proxyOpts...)
	}

	queryClient, err := cacheinfra.NewQueryClient(config, clientOpts...)
	if err != nil {
		return nil, err
	}

	p, err := proxy.New(t, queryClient, proxyOpts...)
	if err != nil {
		return nil, err
	}

	return &Container{
		queryClient:   queryClient,
		transport:     t,
		proxy:         p,
		keySerializer: cache.NewDefaultKeySerializer(),
		config:        config,
	}, nil
}

// NewContainerWithDefaults creates a container with cache.DefaultConfig.
func NewContainerWithDefaults(t transport.Transport, opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), t, opts...)
}

// QueryClient returns the query client, e.g. to Dehydrate it.
func (c *Container) QueryClient() *cacheinfra.QueryClient {
	return c.queryClient
}

// Cache returns the query client as the cache interface.
func (c *Container) Cache() cache.QueryCache {
	return c.queryClient
}

func (c *Container) Transport() transport.Transport {
	return c.transport
}

// Proxy returns the namespace proxy.
func (c *Container) Proxy() *proxy.Proxy {
	return c.proxy
}

// KeySerializer returns the serializer producing the canonical key strings.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}
