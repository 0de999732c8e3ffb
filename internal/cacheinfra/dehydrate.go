package cacheinfra

import (
	"fmt"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/vmihailenco/msgpack/v5"
)

type dehydratedQuery struct {
	Path      []string  `msgpack:"path"`
	Input     any       `msgpack:"input,omitempty"`
	Kind      string    `msgpack:"kind"`
	Data      any       `msgpack:"data"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

type dehydratedState struct {
	Queries []dehydratedQuery `msgpack:"queries"`
}

// Dehydrate encodes every successful query with data, so a client created
// elsewhere can start from it. Data must be encodable by msgpack.
func (c *QueryClient) Dehydrate() ([]byte, error) {
	var state dehydratedState
	c.queries.Range(func(_ string, q *query) bool {
		data, ok := c.store.Get(q.hash)
		if !ok {
			return true
		}

		q.mu.Lock()
		status, updatedAt := q.status, q.updatedAt
		q.mu.Unlock()
		if status != cache.StatusSuccess {
			return true
		}

		entry := dehydratedQuery{
			Path:      []string(q.key.Path),
			Kind:      string(q.key.Kind),
			Data:      data,
			UpdatedAt: updatedAt,
		}
		if q.key.HasInput() {
			entry.Input = cache.Normalize(q.key.Input)
		}
		state.Queries = append(state.Queries, entry)
		return true
	})

	out, err := msgpack.Marshal(&state)
	if err != nil {
		return nil, fmt.Errorf("cacheinfra: dehydrate: %w", err)
	}
	return out, nil
}

// Hydrate loads a Dehydrate snapshot. Entries older than what the client
// already holds are skipped.
func (c *QueryClient) Hydrate(snapshot []byte) error {
	var state dehydratedState
	if err := msgpack.Unmarshal(snapshot, &state); err != nil {
		return fmt.Errorf("cacheinfra: hydrate: %w", err)
	}

	for _, entry := range state.Queries {
		key := cache.DeriveKey(cache.NewPath(entry.Path...), entry.Input, cache.OperationKind(entry.Kind))
		data := entry.Data
		if key.Kind == cache.KindInfinite {
			data = decodeInfinite(data)
		}

		q := c.ensureQuery(key)
		q.mu.Lock()
		_, has := c.store.Get(q.hash)
		if has && !entry.UpdatedAt.After(q.updatedAt) {
			q.mu.Unlock()
			continue
		}
		c.store.Set(q.hash, data)
		q.status = cache.StatusSuccess
		q.err = nil
		q.updatedAt = entry.UpdatedAt
		q.invalidated = false
		q.mu.Unlock()

		c.notify(q)
	}
	return nil
}

func decodeInfinite(v any) cache.InfiniteData {
	m, ok := v.(map[string]any)
	if !ok {
		return asInfinite(v)
	}
	pages, _ := m["pages"].([]any)
	params, _ := m["page_params"].([]any)
	return cache.InfiniteData{Pages: pages, PageParams: params}
}
