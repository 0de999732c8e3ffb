package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/goliatone/go-rpc-cache/internal/cacheinfra"
	"github.com/goliatone/go-rpc-cache/reactive"
	"github.com/goliatone/go-rpc-cache/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router *transport.LocalRouter
	client *cacheinfra.QueryClient
	proxy  *Proxy

	userCalls atomic.Int32
	release   chan struct{}

	mu      sync.Mutex
	cursors []any
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{release: make(chan struct{})}
	f.router = transport.NewLocalRouter().
		Query("users.byId", func(ctx context.Context, input any) (any, error) {
			f.userCalls.Add(1)
			id := inputField(input, "id")
			if id == "slow" {
				select {
				case <-f.release:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return "user-" + id, nil
		}).
		Query("users.list", func(context.Context, any) (any, error) {
			return []string{"user-1", "user-2"}, nil
		}).
		Query("a.b.c", func(context.Context, any) (any, error) { return "abc", nil }).
		Query("a.x", func(context.Context, any) (any, error) { return "ax", nil }).
		Query("posts.feed", func(_ context.Context, input any) (any, error) {
			page := input.(map[string]any)
			f.mu.Lock()
			f.cursors = append(f.cursors, page[cache.CursorField])
			f.mu.Unlock()

			cursor, _ := page[cache.CursorField].(int)
			out := map[string]any{"items": []int{cursor, cursor + 1}}
			if cursor+2 < 6 {
				out[NextCursorField] = cursor + 2
			}
			return out, nil
		}).
		Mutation("users.rename", func(_ context.Context, input any) (any, error) {
			return "renamed-" + inputField(input, "name"), nil
		}).
		Subscription("clock.ticks", func(_ context.Context, _ any, emit func(any)) error {
			for i := 1; i <= 3; i++ {
				emit(i)
			}
			return nil
		})

	cfg := cache.DefaultConfig()
	client, err := cacheinfra.NewQueryClient(cfg)
	require.NoError(t, err)
	f.client = client

	opts = append([]Option{WithStaleTime(time.Minute)}, opts...)
	p, err := New(f.router, client, opts...)
	require.NoError(t, err)
	f.proxy = p
	return f
}

func inputField(input any, name string) string {
	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	return fmt.Sprint(m[name])
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	client, err := cacheinfra.NewQueryClient(cache.DefaultConfig())
	require.NoError(t, err)

	_, err = New(nil, client)
	assert.ErrorIs(t, err, ErrMissingTransport)

	_, err = New(transport.NewLocalRouter(), nil)
	assert.ErrorIs(t, err, ErrMissingCache)
}

func TestNew_ValidatesConfig(t *testing.T) {
	client, err := cacheinfra.NewQueryClient(cache.DefaultConfig())
	require.NoError(t, err)
	router := transport.NewLocalRouter()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "empty alias", opt: WithAlias("")},
		{name: "alias with dot", opt: WithAlias("a.b")},
		{name: "alias starting with digit", opt: WithAlias("1utils")},
		{name: "alias shadowing an operation", opt: WithAlias(cache.OpInvalidate)},
		{name: "negative stale time", opt: WithStaleTime(-time.Second)},
		{name: "nil logger", opt: WithLogger(nil)},
		{name: "nil meter", opt: WithMeter(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(router, client, tt.opt)
			assert.Error(t, err)
		})
	}

	p, err := New(router, client, WithAlias("ctx"))
	require.NoError(t, err)
	assert.Equal(t, "ctx", p.Config().Alias)
}

func TestDispatchTables_CoverEveryOperation(t *testing.T) {
	f := newFixture(t)
	for _, name := range operationNames() {
		op := name.(string)
		_, ok := f.proxy.lookup(op, false)
		assert.True(t, ok, op)
		_, ok = f.proxy.lookup(op, true)
		assert.True(t, ok, op)

		_, known := cache.KindForOperation(op)
		assert.True(t, known, op)
	}
	assert.Len(t, f.proxy.procedures, len(procedureOperations))
	assert.Len(t, f.proxy.utilities, len(utilityOperations))
}

func TestGetKey_Deterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	first, err := byID.GetKey(ctx, map[string]any{"id": 1}, cache.KindQuery)
	require.NoError(t, err)
	second, err := f.proxy.Resolve(ctx, []string{"users", "byId", cache.OpGetKey}, map[string]any{"id": 1}, cache.KindQuery)
	require.NoError(t, err)
	assert.True(t, first.Equal(second.(cache.Key)))
	assert.Equal(t, cache.DeriveKey(cache.NewPath("users", "byId"), map[string]any{"id": 1}, cache.KindQuery).String(), first.String())

	paged, err := byID.GetKey(ctx, map[string]any{"id": 1}, cache.KindInfinite)
	require.NoError(t, err)
	assert.False(t, first.Equal(paged))

	mutation, err := byID.GetKey(ctx, map[string]any{"id": 1}, cache.KindMutation)
	require.NoError(t, err)
	assert.False(t, first.Equal(mutation))
	assert.False(t, mutation.HasInput())

	_, err = byID.Call(ctx, cache.OpGetKey, nil, "bogus")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

type treeNode struct {
	ID     int       `json:"id"`
	Parent *treeNode `json:"parent"`
}

func TestGetKey_CyclicInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	n := &treeNode{ID: 5}
	n.Parent = n

	key, err := byID.GetKey(ctx, n, cache.KindQuery)
	require.NoError(t, err)
	assert.Contains(t, key.String(), `"parent"="cycle:*proxy.treeNode"`)

	m := &treeNode{ID: 5}
	m.Parent = m
	again, err := byID.GetKey(ctx, m, cache.KindQuery)
	require.NoError(t, err)
	assert.True(t, key.Equal(again))

	require.NoError(t, f.proxy.Path("users").Invalidate(ctx, n, cache.Filters{}))
}

func TestGetKey_RootAndPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.proxy.Root().GetKey(ctx, nil, cache.KindAny)
	require.NoError(t, err)
	assert.Equal(t, []any{}, root.Tuple())

	ab, err := f.proxy.Path("a", "b").GetKey(ctx, nil, cache.KindAny)
	require.NoError(t, err)
	assert.Equal(t, []any{[]string{"a", "b"}}, ab.Tuple())
}

func TestResolve_UnsupportedOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Resolve(ctx, []string{"users", "byId", "explode"})
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	var unsupported *UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "users.byId", unsupported.Path)
	assert.Equal(t, "explode", unsupported.Operation)
	assert.Contains(t, err.Error(), "users.byId")

	_, err = f.proxy.Resolve(ctx, nil)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	_, err = f.proxy.Utils().Call(ctx, "explode")
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestResolve_AliasIsTransparent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	viaAlias, err := f.proxy.Resolve(ctx, []string{DefaultAlias, "users", "byId", cache.OpGetKey}, map[string]any{"id": 1})
	require.NoError(t, err)
	direct, err := f.proxy.Resolve(ctx, []string{"users", "byId", cache.OpGetKey}, map[string]any{"id": 1})
	require.NoError(t, err)
	assert.True(t, viaAlias.(cache.Key).Equal(direct.(cache.Key)))

	node := f.proxy.Path(DefaultAlias, "users", "byId")
	assert.Equal(t, "users.byId", node.Dotted())
	assert.True(t, node.utils)
	assert.Equal(t, "users.byId", f.proxy.Utils().Path("users", "byId").Dotted())

	// only the root segment is an alias
	assert.Equal(t, "users.utils", f.proxy.Path("users", DefaultAlias).Dotted())

	data, err := f.proxy.Resolve(ctx, []string{DefaultAlias, "a", "x", cache.OpFetch})
	require.NoError(t, err)
	assert.Equal(t, "ax", data)
	cached, err := f.proxy.Path("a", "x").GetData(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "ax", cached)
}

func TestResolve_CustomAlias(t *testing.T) {
	f := newFixture(t, WithAlias("ctx"))
	ctx := context.Background()

	viaAlias, err := f.proxy.Resolve(ctx, []string{"ctx", "users", cache.OpGetKey})
	require.NoError(t, err)
	assert.Equal(t, []any{[]string{"users"}}, viaAlias.(cache.Key).Tuple())

	assert.Equal(t, "utils.users", f.proxy.Path(DefaultAlias, "users").Dotted())
}

func TestQuery_GetDataRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	handle, err := byID.Query(ctx, map[string]any{"id": 1}, QueryConfig{})
	require.NoError(t, err)
	defer handle.Close()

	waitFor(t, func() bool { return handle.State().Status == cache.StatusSuccess })

	data, err := byID.GetData(ctx, map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "user-1", data)
	assert.Equal(t, handle.State().Data, data)

	missing, err := byID.GetData(ctx, map[string]any{"id": 99})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestQuery_IdempotentKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	first, err := byID.Query(ctx, map[string]any{"id": 1}, QueryConfig{})
	require.NoError(t, err)
	defer first.Close()
	second, err := byID.Query(ctx, map[string]any{"id": 1}, QueryConfig{})
	require.NoError(t, err)
	defer second.Close()

	assert.True(t, first.Key().Equal(second.Key()))
	assert.NotEqual(t, first.ID(), second.ID())
	waitFor(t, func() bool { return second.State().Status == cache.StatusSuccess })
}

func TestQuery_ReactiveInputResync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	input := reactive.Writable[any](map[string]any{"id": 1})
	handle, err := byID.Query(ctx, input, QueryConfig{})
	require.NoError(t, err)
	defer handle.Close()
	waitFor(t, func() bool { return handle.State().Data == "user-1" })

	input.Set(map[string]any{"id": 2})

	want := cache.DeriveKey(byID.Segments(), map[string]any{"id": 2}, cache.KindQuery)
	assert.True(t, handle.Key().Equal(want))
	waitFor(t, func() bool { return handle.State().Data == "user-2" })

	live, ok := f.client.Observer(handle.ID())
	require.True(t, ok)
	assert.Same(t, handle, live)
}

func TestQuery_ReactiveKeepsPreviousData(t *testing.T) {
	f := newFixture(t, WithKeepPreviousData(true))
	ctx := context.Background()

	input := reactive.Writable[any](map[string]any{"id": 1})
	handle, err := f.proxy.Path("users", "byId").Query(ctx, input, QueryConfig{})
	require.NoError(t, err)
	defer handle.Close()
	waitFor(t, func() bool { return handle.State().Data == "user-1" })

	input.Set(map[string]any{"id": "slow"})

	state := handle.State()
	assert.Equal(t, "user-1", state.Data)
	assert.True(t, state.Placeholder)

	close(f.release)
	waitFor(t, func() bool {
		st := handle.State()
		return st.Data == "user-slow" && !st.Placeholder
	})
}

func TestQuery_EmissionAfterCloseIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := reactive.Writable[any](map[string]any{"id": 1})
	handle, err := f.proxy.Path("users", "byId").Query(ctx, input, QueryConfig{})
	require.NoError(t, err)
	waitFor(t, func() bool { return handle.State().Status == cache.StatusSuccess })
	before := handle.Key()

	handle.Close()
	assert.Equal(t, 0, input.Subscribers())

	input.Set(map[string]any{"id": 3})
	assert.True(t, handle.Key().Equal(before))
	assert.Equal(t, int32(1), f.userCalls.Load())
}

func TestQuery_DisabledWaitsForRefetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.proxy.Path("users", "byId").Query(ctx, map[string]any{"id": 4}, QueryConfig{Disabled: true})
	require.NoError(t, err)
	defer handle.Close()
	assert.Equal(t, int32(0), f.userCalls.Load())

	state, err := handle.Refetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-4", state.Data)
}

func TestQuery_InvalidConfigArgument(t *testing.T) {
	f := newFixture(t)
	_, err := f.proxy.Path("users", "byId").Call(context.Background(), cache.OpQuery, nil, "fast")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cfg := &QueryConfig{Disabled: true}
	handle, err := f.proxy.Path("users", "byId").Call(context.Background(), cache.OpQuery, nil, cfg)
	require.NoError(t, err)
	handle.(cache.QueryHandle).Close()
}

func TestInvalidate_PrefixSubsumption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Path("a", "b", "c").Fetch(ctx, nil, QueryConfig{})
	require.NoError(t, err)
	_, err = f.proxy.Path("a", "x").Fetch(ctx, nil, QueryConfig{})
	require.NoError(t, err)

	require.NoError(t, f.proxy.Path("a", "b").Invalidate(ctx, nil, cache.Filters{}))

	abc, err := f.proxy.Path("a", "b", "c").GetState(ctx, nil)
	require.NoError(t, err)
	assert.True(t, abc.Stale)

	ax, err := f.proxy.Path("a", "x").GetState(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ax.Stale)
}

func TestInvalidate_NamespaceMarksEntriesStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	_, err := byID.Fetch(ctx, map[string]any{"id": 5}, QueryConfig{})
	require.NoError(t, err)
	state, err := byID.GetState(ctx, map[string]any{"id": 5})
	require.NoError(t, err)
	require.False(t, state.Stale)

	_, err = f.proxy.Resolve(ctx, []string{"users", cache.OpInvalidate}, nil, cache.Filters{})
	require.NoError(t, err)

	state, err = byID.GetState(ctx, map[string]any{"id": 5})
	require.NoError(t, err)
	assert.True(t, state.Stale)

	_, err = byID.Fetch(ctx, map[string]any{"id": 5}, QueryConfig{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.userCalls.Load())
}

func TestInvalidate_RefetchesObservedQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.proxy.Path("users", "byId").Query(ctx, map[string]any{"id": 5}, QueryConfig{})
	require.NoError(t, err)
	defer handle.Close()
	waitFor(t, func() bool { return handle.State().Status == cache.StatusSuccess })

	require.NoError(t, f.proxy.Path("users").Invalidate(ctx, nil, cache.Filters{}))
	assert.Equal(t, int32(2), f.userCalls.Load())
	assert.False(t, handle.State().Stale)
}

func TestReset_DropsData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := f.proxy.Path("users", "list")

	_, err := list.Fetch(ctx, nil, QueryConfig{})
	require.NoError(t, err)

	require.NoError(t, f.proxy.Root().Reset(ctx, nil, cache.Filters{}))

	data, err := list.GetData(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRefetchAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	_, err := byID.Fetch(ctx, map[string]any{"id": 1}, QueryConfig{})
	require.NoError(t, err)
	require.NoError(t, byID.Refetch(ctx, map[string]any{"id": 1}, cache.Filters{}))
	assert.Equal(t, int32(2), f.userCalls.Load())

	go func() {
		_, _ = byID.Fetch(ctx, map[string]any{"id": "slow"}, QueryConfig{})
	}()
	waitFor(t, func() bool { return f.client.IsFetching(cache.DeriveKey(byID.Segments(), nil, cache.KindAny)) == 1 })

	require.NoError(t, byID.Cancel(ctx, nil, cache.Filters{}))
	waitFor(t, func() bool { return f.client.IsFetching(cache.DeriveKey(byID.Segments(), nil, cache.KindAny)) == 0 })
}

func TestSetData_Updaters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")
	input := map[string]any{"id": 7}

	got, err := byID.SetData(ctx, input, "seeded")
	require.NoError(t, err)
	assert.Equal(t, "seeded", got)

	got, err = byID.SetData(ctx, input, func(old any) any { return old.(string) + "+1" })
	require.NoError(t, err)
	assert.Equal(t, "seeded+1", got)

	got, err = byID.SetData(ctx, input, cache.Updater(func(old any, ok bool) any {
		if !ok {
			return nil
		}
		return old.(string) + "+2"
	}))
	require.NoError(t, err)
	assert.Equal(t, "seeded+1+2", got)

	data, err := byID.EnsureData(ctx, input, QueryConfig{})
	require.NoError(t, err)
	assert.Equal(t, "seeded+1+2", data)
	assert.Equal(t, int32(0), f.userCalls.Load())

	state, err := byID.GetState(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, cache.StatusSuccess, state.Status)

	unknown, err := byID.GetState(ctx, map[string]any{"id": 404})
	require.NoError(t, err)
	assert.Equal(t, cache.StatusIdle, unknown.Status)
}

func TestFetch_CollaboratorErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	_, err := f.proxy.Path("nope").Fetch(context.Background(), nil, QueryConfig{})
	require.Error(t, err)

	var procErr *transport.ProcedureError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "nope", procErr.Path)
	assert.ErrorIs(t, err, transport.ErrProcedureNotFound)
}

func TestPrefetchThenQueryUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	require.NoError(t, byID.Prefetch(ctx, map[string]any{"id": 8}, QueryConfig{}))
	handle, err := byID.Query(ctx, map[string]any{"id": 8}, QueryConfig{})
	require.NoError(t, err)
	defer handle.Close()

	assert.Equal(t, "user-8", handle.State().Data)
	assert.Equal(t, int32(1), f.userCalls.Load())
}

func TestQueries_BatchRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byID := f.proxy.Path("users", "byId")

	var opts []cache.QueryOptions
	for _, id := range []int{1, 2} {
		o, err := byID.QueryOptions(ctx, map[string]any{"id": id}, QueryConfig{})
		require.NoError(t, err)
		opts = append(opts, o)
	}

	handles, err := f.proxy.Queries(ctx, opts...)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	for i, h := range handles {
		h := h
		waitFor(t, func() bool { return h.State().Status == cache.StatusSuccess })
		assert.Equal(t, fmt.Sprintf("user-%d", i+1), h.State().Data)
		h.Close()
	}

	_, err = f.proxy.Queries(ctx, opts[0], cache.QueryOptions{Key: opts[1].Key})
	assert.ErrorIs(t, err, cache.ErrNoFetcher)
}

func TestRootAccessors(t *testing.T) {
	f := newFixture(t)
	assert.Same(t, f.router, f.proxy.Transport())
	assert.Same(t, f.client, f.proxy.Cache())
	assert.Empty(t, f.proxy.Root().Segments())
}

func TestMetricsUseNoopMeterByDefault(t *testing.T) {
	f := newFixture(t)
	_, err := f.proxy.Path("users", "byId").GetKey(context.Background(), nil, cache.KindAny)
	assert.NoError(t, err)
	assert.NotNil(t, f.proxy.metrics)
}

func TestUnsupportedOperationError_Message(t *testing.T) {
	err := &UnsupportedOperationError{Operation: "boom"}
	assert.Contains(t, err.Error(), "router root")
	assert.True(t, errors.Is(err, ErrUnsupportedOperation))
}
