package cacheinfra

import (
	"context"
	"errors"

	"github.com/goliatone/go-rpc-cache/cache"
)

var errNotInfinite = errors.New("cacheinfra: query is not paginated")

func asInfinite(v any) cache.InfiniteData {
	switch data := v.(type) {
	case cache.InfiniteData:
		return data
	case *cache.InfiniteData:
		if data != nil {
			return *data
		}
	}
	return cache.InfiniteData{}
}

func (c *QueryClient) infiniteData(hash string) cache.InfiniteData {
	v, ok := c.store.Get(hash)
	if !ok {
		return cache.InfiniteData{}
	}
	return asInfinite(v)
}

func nextPageParam(opts cache.InfiniteQueryOptions, data cache.InfiniteData) (any, bool) {
	if opts.GetNextPageParam == nil || len(data.Pages) == 0 {
		return nil, false
	}
	return opts.GetNextPageParam(data.Pages[len(data.Pages)-1], data.Pages)
}

// fetchPages loads as many pages as existing holds, starting over from the
// initial page param. Later params are recomputed from the fresh pages so a
// changed first page does not leave stale cursors behind.
func fetchPages(ctx context.Context, opts cache.InfiniteQueryOptions, existing cache.InfiniteData) (cache.InfiniteData, error) {
	count := len(existing.Pages)
	if count == 0 {
		count = 1
	}

	out := cache.InfiniteData{
		Pages:      make([]any, 0, count),
		PageParams: make([]any, 0, count),
	}
	param := opts.InitialPageParam
	for i := 0; i < count; i++ {
		if i > 0 {
			next, ok := nextPageParam(opts, out)
			if !ok {
				break
			}
			param = next
		}

		page, err := opts.Fetch(ctx, param)
		if err != nil {
			return cache.InfiniteData{}, err
		}
		out.Pages = append(out.Pages, page)
		out.PageParams = append(out.PageParams, param)
	}
	return out, nil
}

// infiniteObserver adds page navigation to a query observer.
type infiniteObserver struct {
	*queryObserver
}

// FetchNextPage appends the page after the last one. Without data it loads
// the first page; without a next page param it returns the current state.
func (o *infiniteObserver) FetchNextPage(ctx context.Context) (cache.QueryState, error) {
	q, spec, closed := o.current()
	if closed {
		return o.State(), cache.ErrClosed
	}
	if spec == nil || spec.infinite == nil {
		return o.State(), errNotInfinite
	}

	c := o.client
	if _, ok := c.store.Get(q.hash); !ok {
		_, err := c.execute(ctx, q, spec, false)
		return o.State(), err
	}

	opts := *spec.infinite
	_, err, _ := c.group.Do(q.hash+"#next", func() (any, error) {
		existing := c.infiniteData(q.hash)
		next, ok := nextPageParam(opts, existing)
		if !ok {
			return existing, nil
		}
		return c.track(ctx, q, func(ctx context.Context) (any, error) {
			page, err := opts.Fetch(ctx, next)
			if err != nil {
				return nil, err
			}
			return cache.InfiniteData{
				Pages:      append(append([]any(nil), existing.Pages...), page),
				PageParams: append(append([]any(nil), existing.PageParams...), next),
			}, nil
		})
	})
	return o.State(), err
}

// HasNextPage reports whether GetNextPageParam yields another page.
func (o *infiniteObserver) HasNextPage() bool {
	q, spec, _ := o.current()
	if q == nil || spec == nil || spec.infinite == nil {
		return false
	}
	_, ok := nextPageParam(*spec.infinite, o.client.infiniteData(q.hash))
	return ok
}

var _ cache.InfiniteQueryHandle = (*infiniteObserver)(nil)
