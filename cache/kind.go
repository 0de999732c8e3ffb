package cache

// OperationKind tags what a call does with a procedure.
type OperationKind string

const (
	// KindAny is the catch-all used by filters and meta operations that
	// target every kind of entry under a path.
	KindAny OperationKind = "any"
	// KindQuery is a plain read.
	KindQuery OperationKind = "query"
	// KindInfinite is a read-paginated query driven by a cursor.
	KindInfinite OperationKind = "infinite"
	// KindMutation is a write.
	KindMutation OperationKind = "mutation"
	// KindSubscription is a stream. Streams are never cached.
	KindSubscription OperationKind = "subscription"
)

// Operation names understood by the namespace proxy.
const (
	OpQuery                = "query"
	OpInfiniteQuery        = "infiniteQuery"
	OpQueryOptions         = "queryOptions"
	OpInfiniteQueryOptions = "infiniteQueryOptions"
	OpMutation             = "mutation"
	OpSubscription         = "subscription"

	OpGetKey             = "getKey"
	OpFetch              = "fetch"
	OpPrefetch           = "prefetch"
	OpFetchInfinite      = "fetchInfinite"
	OpPrefetchInfinite   = "prefetchInfinite"
	OpEnsureData         = "ensureData"
	OpEnsureInfiniteData = "ensureInfiniteData"
	OpSetData            = "setData"
	OpSetInfiniteData    = "setInfiniteData"
	OpGetData            = "getData"
	OpGetInfiniteData    = "getInfiniteData"
	OpGetState           = "getState"
	OpInvalidate         = "invalidate"
	OpRefetch            = "refetch"
	OpReset              = "reset"
	OpCancel             = "cancel"
)

var operationKinds = map[string]OperationKind{
	OpQuery:                KindQuery,
	OpInfiniteQuery:        KindInfinite,
	OpQueryOptions:         KindQuery,
	OpInfiniteQueryOptions: KindInfinite,
	OpMutation:             KindMutation,
	OpSubscription:         KindSubscription,

	OpGetKey:             KindAny,
	OpFetch:              KindQuery,
	OpPrefetch:           KindQuery,
	OpFetchInfinite:      KindInfinite,
	OpPrefetchInfinite:   KindInfinite,
	OpEnsureData:         KindQuery,
	OpEnsureInfiniteData: KindInfinite,
	OpSetData:            KindQuery,
	OpSetInfiniteData:    KindInfinite,
	OpGetData:            KindQuery,
	OpGetInfiniteData:    KindInfinite,
	OpGetState:           KindQuery,
	OpInvalidate:         KindAny,
	OpRefetch:            KindAny,
	OpReset:              KindAny,
	OpCancel:             KindAny,
}

// KindForOperation returns the operation kind implied by an operation name.
// The boolean is false for names the proxy does not know.
func KindForOperation(op string) (OperationKind, bool) {
	kind, ok := operationKinds[op]
	return kind, ok
}

// IsValid reports whether k is one of the declared kinds.
func (k OperationKind) IsValid() bool {
	switch k {
	case KindAny, KindQuery, KindInfinite, KindMutation, KindSubscription:
		return true
	default:
		return false
	}
}

func (k OperationKind) String() string {
	if k == "" {
		return string(KindAny)
	}
	return string(k)
}
