// Package cache defines cache keys for remote procedures and the interfaces
// a query cache must implement to back the namespace proxy.
//
// # Keys
//
// A Key is derived from the procedure path, the call input and the operation
// kind:
//
//	cache.DeriveKey(cache.NewPath("users", "byId"), map[string]any{"id": 5}, cache.KindQuery)
//	// [["users","byId"], {input: {id: 5}, type: "query"}]
//
//	cache.DeriveKey(cache.NewPath("users"), nil, cache.KindAny)
//	// [["users"]]
//
//	cache.DeriveKey(nil, nil, cache.KindAny)
//	// []
//
// Input and kind are only present when known, which makes keys prefix
// matchable: a key without input and kind selects every entry below its path,
// and the root key selects everything. Mutation keys never carry input, only
// the mutation marker.
//
// Inputs are compared by value. Normalize reduces them to maps, lists and
// scalars (structs by their JSON field names), and the default KeySerializer
// writes the result with sorted map keys:
//
//	path[2]:{users,byId}::input=map[1]:{"id"=5}::type=query
//
// Functions and channels inside inputs are keyed by their address, which is
// only stable within a process.
//
// # Query cache
//
// QueryCache is implemented by internal/cacheinfra on top of sturdyc. Its
// registration functions take a reactive.Readable of options so a single
// observer can follow a changing input.
//
// # Pagination
//
// Paginated queries inject the page cursor into the input with WithCursor.
// Inputs must be maps, structs or CursorSetter values; anything else fails
// with ErrInputNotPageable.
package cache
