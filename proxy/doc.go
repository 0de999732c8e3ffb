// Package proxy exposes a procedure router as a tree of cache-backed operations.
//
// A Node stands for a position in the procedure namespace. Calling an
// operation on it derives the cache key from the node path, the input and
// the operation kind, then dispatches either to the transport (query,
// infiniteQuery, mutation, subscription) or straight to the cache (getKey,
// fetch, setData, invalidate and friends):
//
//	p, _ := proxy.New(router, client)
//	users := p.Path("users", "byId")
//	handle, _ := users.Query(ctx, map[string]any{"id": 5}, proxy.QueryConfig{})
//	defer handle.Close()
//	_ = p.Path("users").Invalidate(ctx, nil, cache.Filters{})
//
// Resolve does the same for an access path whose last segment is the
// operation name, which is how generated or dynamic callers reach it.
//
// When the input of query or infiniteQuery is a reactive value, the
// registered options follow it: every emitted input rebuilds the key and the
// fetch closure and moves the same handle to the new key.
//
// A leading alias segment ("utils" by default) is stripped from every path,
// so p.Path("utils", "users") and p.Path("users") address the same entries.
package proxy
