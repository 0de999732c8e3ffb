// Package reactive provides subscribable value containers.
//
// A Store holds a value, notifies subscribers when it changes and can start
// and stop an upstream subscription lazily, the way UI stores do. Derive
// builds a read-only store computed from another one; the query adapter uses
// it to turn a changing input into changing query options without
// re-creating the query observer.
//
//	input := reactive.Writable(map[string]any{"id": 1})
//	handle, _ := rpc.Path("users", "byId").Query(input)
//	input.Set(map[string]any{"id": 2}) // same handle, new key
package reactive
