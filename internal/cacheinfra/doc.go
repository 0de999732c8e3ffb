// Package cacheinfra implements cache.QueryCache on top of sturdyc.
//
// Fetched data is stored in a sturdyc client keyed by cache.Key.Hash, so
// capacity, sharding, TTL and eviction come from cache.Config. Next to the
// data the QueryClient keeps per-key bookkeeping (status, error, freshness,
// in-flight cancel func) and the observers created by RegisterQuery.
//
// Fetches of the same key are coalesced with singleflight. Invalidate,
// Refetch and Reset fan out through an errgroup bounded by
// Config.RefetchConcurrency.
//
// Dehydrate and Hydrate move successful queries between clients as a
// msgpack snapshot, e.g. to prefetch on a server and ship the result.
package cacheinfra
