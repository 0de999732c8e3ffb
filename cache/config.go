package cache

import (
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the configuration for the query cache backend.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int `yaml:"capacity"`

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int `yaml:"num_shards"`

	// TTL is how long fetched data is retained. Once it elapses the data is
	// dropped and the next read fetches again.
	// Must be greater than 0.
	TTL time.Duration `yaml:"ttl"`

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int `yaml:"eviction_percentage"`

	// EarlyRefresh configures background refreshes for EnsureData reads.
	// If nil, early refresh is disabled.
	EarlyRefresh *EarlyRefreshConfig `yaml:"early_refresh"`

	// MissingRecordStorage enables storage for missing record flags.
	MissingRecordStorage bool `yaml:"missing_record_storage"`

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration `yaml:"eviction_interval"`

	// StaleTime is how long fetched data counts as fresh. Fresh data is served
	// by Fetch without calling the fetch function again. Zero means data is
	// stale as soon as it arrives.
	StaleTime time.Duration `yaml:"stale_time"`

	// KeepPreviousData makes observers keep showing the last data they had
	// while a new key loads.
	KeepPreviousData bool `yaml:"keep_previous_data"`

	// RefetchConcurrency bounds the number of fetches started at once by
	// Invalidate, Refetch and Reset. Must be greater than 0.
	RefetchConcurrency int `yaml:"refetch_concurrency"`
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration `yaml:"min_async_refresh_time"`
	MaxAsyncRefreshTime time.Duration `yaml:"max_async_refresh_time"`
	SyncRefreshTime     time.Duration `yaml:"sync_refresh_time"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:             10000,
		NumShards:            256,
		TTL:                  5 * time.Minute,
		EvictionPercentage:   10,
		EarlyRefresh:         nil,
		MissingRecordStorage: false,
		EvictionInterval:     0,
		StaleTime:            0,
		KeepPreviousData:     false,
		RefetchConcurrency:   8,
	}
}

// LoadConfigYAML reads a YAML document on top of DefaultConfig and validates
// the result. Durations accept Go duration strings such as "30s".
func LoadConfigYAML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.StaleTime < 0 {
		return &ConfigError{Field: "StaleTime", Message: "must be non-negative"}
	}

	if c.RefetchConcurrency <= 0 {
		return &ConfigError{Field: "RefetchConcurrency", Message: "must be greater than 0"}
	}

	if c.EarlyRefresh != nil {
		if c.EarlyRefresh.MinAsyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.MinAsyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.MaxAsyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.MaxAsyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.SyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.SyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.RetryBaseDelay < 0 {
			return &ConfigError{Field: "EarlyRefresh.RetryBaseDelay", Message: "must be non-negative"}
		}
	}

	return nil
}
