// Package transport defines how the namespace proxy reaches remote
// procedures, and ships LocalRouter, an in-process implementation used by
// tests and examples.
//
//	router := transport.NewLocalRouter().
//		Query("users.byId", func(ctx context.Context, input any) (any, error) {
//			return store.User(input)
//		}).
//		Mutation("users.create", createUser)
//
//	out, err := router.Call(ctx, cache.KindQuery, "users.byId", map[string]any{"id": 5}, transport.CallOptions{})
package transport
