package cacheinfra

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagedOptions(calls *atomic.Int32) cache.InfiniteQueryOptions {
	return cache.InfiniteQueryOptions{
		Key: cache.DeriveKey(cache.NewPath("posts", "list"), map[string]any{"limit": 10}, cache.KindInfinite),
		Fetch: func(ctx context.Context, pageParam any) (any, error) {
			calls.Add(1)
			return fmt.Sprintf("page-%v", pageParam), nil
		},
		InitialPageParam: 0,
		GetNextPageParam: func(lastPage any, allPages []any) (any, bool) {
			if len(allPages) >= 3 {
				return nil, false
			}
			return len(allPages), true
		},
	}
}

func TestQueryClient_FetchInfinite(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32

	data, err := client.FetchInfinite(context.Background(), pagedOptions(&calls))
	require.NoError(t, err)

	assert.Equal(t, []any{"page-0"}, data.Pages)
	assert.Equal(t, []any{0}, data.PageParams)

	require.NoError(t, client.PrefetchInfinite(context.Background(), pagedOptions(&calls)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryClient_EnsureInfiniteData(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32

	for i := 0; i < 2; i++ {
		data, err := client.EnsureInfiniteData(context.Background(), pagedOptions(&calls))
		require.NoError(t, err)
		assert.Equal(t, []any{"page-0"}, data.Pages)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestInfiniteQuery_FetchNextPage(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32

	handle, err := client.RegisterInfiniteQuery(context.Background(), reactive.Static(pagedOptions(&calls)))
	require.NoError(t, err)
	defer handle.Close()

	waitFor(t, func() bool { return handle.State().HasData })
	waitFor(t, func() bool { return client.IsFetching(filterKey()) == 0 })
	assert.True(t, handle.HasNextPage())

	state, err := handle.FetchNextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"page-0", "page-1"}, state.Data.(cache.InfiniteData).Pages)

	state, err = handle.FetchNextPage(context.Background())
	require.NoError(t, err)
	data := state.Data.(cache.InfiniteData)
	assert.Equal(t, []any{"page-0", "page-1", "page-2"}, data.Pages)
	assert.Equal(t, []any{0, 1, 2}, data.PageParams)
	assert.False(t, handle.HasNextPage())

	state, err = handle.FetchNextPage(context.Background())
	require.NoError(t, err)
	assert.Len(t, state.Data.(cache.InfiniteData).Pages, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInfiniteQuery_RefetchKeepsPageCount(t *testing.T) {
	client, _ := newTestClient(t)
	var calls atomic.Int32

	handle, err := client.RegisterInfiniteQuery(context.Background(), reactive.Static(pagedOptions(&calls)))
	require.NoError(t, err)
	defer handle.Close()

	waitFor(t, func() bool { return handle.State().HasData })
	waitFor(t, func() bool { return client.IsFetching(filterKey()) == 0 })
	_, err = handle.FetchNextPage(context.Background())
	require.NoError(t, err)

	state, err := handle.Refetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []any{"page-0", "page-1"}, state.Data.(cache.InfiniteData).Pages)
	assert.Equal(t, int32(4), calls.Load())
}
