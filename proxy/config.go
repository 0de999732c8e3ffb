package proxy

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-rpc-cache/cache"
	"go.opentelemetry.io/otel/metric"
)

// DefaultAlias is the root segment that selects the utility dispatch table.
const DefaultAlias = "utils"

var aliasPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MutationSuccessEvent is handed to the proxy-wide mutation success hook.
type MutationSuccessEvent struct {
	// OriginalFn runs the OnSuccess callback of the mutation itself. The
	// hook decides whether and when to call it.
	OriginalFn func(ctx context.Context) error
	Cache      cache.QueryCache
	Meta       map[string]any

	Path  cache.Path
	Input any
	Data  any
}

// MutationSuccessHook intercepts successful mutations of every path, e.g.
// to invalidate related queries in one place.
type MutationSuccessHook func(ctx context.Context, event MutationSuccessEvent) error

// Config holds proxy-wide settings.
type Config struct {
	// Alias is the root segment stripped before dispatch. Paths under it
	// consult the utility table first.
	Alias string

	// StaleTime and KeepPreviousData are defaults for queries that do not set them.
	StaleTime        time.Duration
	KeepPreviousData bool

	// AbortOnClose cancels in-flight fetches when the last handle of a query closes.
	AbortOnClose bool

	OnMutationSuccess MutationSuccessHook

	Logger *slog.Logger
	Meter  metric.Meter
}

// Option configures the proxy.
type Option func(*Config)

// WithAlias changes the utility alias segment.
func WithAlias(alias string) Option {
	return func(c *Config) {
		c.Alias = alias
	}
}

// WithStaleTime sets the default stale time of queries.
func WithStaleTime(d time.Duration) Option {
	return func(c *Config) {
		c.StaleTime = d
	}
}

// WithKeepPreviousData makes reactive queries keep their last data while a
// new input loads.
func WithKeepPreviousData(keep bool) Option {
	return func(c *Config) {
		c.KeepPreviousData = keep
	}
}

// WithAbortOnClose cancels in-flight fetches of queries whose handles all closed.
func WithAbortOnClose(abort bool) Option {
	return func(c *Config) {
		c.AbortOnClose = abort
	}
}

// WithMutationSuccess installs a hook that runs after every successful mutation.
func WithMutationSuccess(hook MutationSuccessHook) Option {
	return func(c *Config) {
		c.OnMutationSuccess = hook
	}
}

// WithLogger sets the logger used for dispatch events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMeter sets the meter used for dispatch metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *Config) {
		c.Meter = meter
	}
}

func defaultConfig() Config {
	return Config{
		Alias:  DefaultAlias,
		Logger: discardLogger(),
		Meter:  defaultMeter(),
	}
}

// Validate checks the proxy settings. The alias must be an identifier that
// does not collide with an operation name.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Alias,
			validation.Required,
			validation.Match(aliasPattern),
			validation.NotIn(operationNames()...),
		),
		validation.Field(&c.StaleTime, validation.Min(time.Duration(0))),
		validation.Field(&c.Logger, validation.NotNil),
		validation.Field(&c.Meter, validation.NotNil),
	)
}
