package cacheinfra

import (
	"io"
	"log/slog"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/viccon/sturdyc"
)

// Option configures a QueryClient.
type Option func(*QueryClient)

// WithLogger sets the logger used for fetch lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *QueryClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for staleness.
func WithClock(now func() time.Time) Option {
	return func(c *QueryClient) {
		if now != nil {
			c.now = now
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sturdycOptions maps the optional parts of cfg to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func sturdycOptions(cfg cache.Config) []sturdyc.Option {
	var options []sturdyc.Option

	if cfg.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			cfg.EarlyRefresh.MinAsyncRefreshTime,
			cfg.EarlyRefresh.MaxAsyncRefreshTime,
			cfg.EarlyRefresh.SyncRefreshTime,
			cfg.EarlyRefresh.RetryBaseDelay,
		))
	}

	if cfg.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	return options
}

func newStore(cfg cache.Config) *sturdyc.Client[any] {
	return sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		sturdycOptions(cfg)...,
	)
}
